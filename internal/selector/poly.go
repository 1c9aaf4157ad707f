package selector

// Poly gives every channel a block of eight parts. A note plays on the part
// at note%8 within its channel's block, so two held notes with the same
// residue share a part.
type Poly struct {
	base
}

func NewPoly(sink HandleSink, opts ...Option) *Poly {
	p := &Poly{}
	p.init(sink, polyLayout{}, opts)
	return p
}

type polyLayout struct{}

func (polyLayout) partCount() int { return PolyPartCount }

func (polyLayout) channelParts(ch int) []int {
	parts := make([]int, VoicesPerChannel)
	for i := range parts {
		parts[i] = ch*VoicesPerChannel + i + 1
	}
	return parts
}

func (polyLayout) notePart(ch, note int) int {
	return ch*VoicesPerChannel + note%VoicesPerChannel + 1
}
