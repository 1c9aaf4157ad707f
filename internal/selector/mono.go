package selector

// Mono gives each melodic channel one part and the drum channel eight.
// Channel c (1-based) plays on part c; drum note n plays on part 10 when
// n%8 == 0 and on part 16+n%8 otherwise.
type Mono struct {
	base
}

func NewMono(sink HandleSink, opts ...Option) *Mono {
	m := &Mono{}
	m.init(sink, monoLayout{}, opts)
	return m
}

type monoLayout struct{}

func (monoLayout) partCount() int { return MonoPartCount }

func (monoLayout) channelParts(ch int) []int {
	if ch != drumIndex {
		return []int{ch + 1}
	}
	parts := make([]int, DrumParts)
	for n := range parts {
		parts[n] = drumPart(n)
	}
	return parts
}

func (monoLayout) notePart(ch, note int) int {
	if ch != drumIndex {
		return ch + 1
	}
	return drumPart(note % DrumParts)
}

func drumPart(n int) int {
	if n == 0 {
		return DrumChannel
	}
	return Channels + n
}
