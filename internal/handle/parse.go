package handle

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

var ErrSyntax = errors.New("handle: syntax error")

// resolver tries to interpret a TYPE identifier as one enumeration.
type resolver func(name string) (int, bool)

func namesResolver(names []string) resolver {
	return func(name string) (int, bool) {
		for i, n := range names {
			if n == name {
				return i, true
			}
		}
		return 0, false
	}
}

func operatorResolver(name string) (int, bool) {
	if !strings.HasPrefix(name, "op") {
		return 0, false
	}
	n, err := strconv.Atoi(name[2:])
	if err != nil || n < 0 || n >= Operators {
		return 0, false
	}
	return n << operatorShift, true
}

var (
	resolveVibrate    = namesResolver(vibrateNames)
	resolvePortamento = namesResolver(portamentoNames)
	resolveEnvelope   = namesResolver(envelopeNames)
	resolveWaveform   = namesResolver(waveformNames)
	resolveEdit       = namesResolver(editNames)

	// Tried in order after the kind's own enumeration; first match wins.
	fallbackResolvers = []resolver{
		resolveVibrate,
		resolvePortamento,
		resolveEnvelope,
		resolveWaveform,
		resolveEdit,
		operatorResolver,
	}
)

func resolversFor(kind Kind) []resolver {
	var own []resolver
	switch kind {
	case KindVibrate:
		own = []resolver{resolveVibrate}
	case KindPortamento:
		own = []resolver{resolvePortamento}
	case KindEnvelope:
		own = []resolver{resolveEnvelope}
	case KindWaveform:
		own = []resolver{resolveWaveform}
	case KindEditWaveform:
		own = []resolver{resolveEdit, operatorResolver}
	}
	return append(own, fallbackResolvers...)
}

// Parse parses one mini-language line: PART NAME [TYPE] [VALUE].
// PART "." repeats previousPart.
func Parse(line string, previousPart int) (Handle, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 4 {
		return Handle{}, syntaxError(fmt.Sprintf("expected 2-4 tokens, got %d", len(fields)))
	}

	part := previousPart
	if fields[0] != "." {
		p, err := strconv.Atoi(fields[0])
		if err != nil || p < 0 {
			return Handle{}, syntaxError(fmt.Sprintf("invalid part %q", fields[0]))
		}
		part = p
	}

	kind, ok := ParseKind(fields[1])
	if !ok {
		return Handle{}, fault.Wrap(ErrUnknownKind,
			fmsg.With(fmt.Sprintf("command %q", fields[1])),
			ftag.With(ftag.InvalidArgument))
	}

	var typeTok, valueTok string
	switch len(fields) {
	case 3:
		if kind.takesType() {
			typeTok = fields[2]
		} else {
			valueTok = fields[2]
		}
	case 4:
		typeTok, valueTok = fields[2], fields[3]
	}

	var data1 int
	if typeTok != "" {
		v, err := parseType(typeTok, resolversFor(kind))
		if err != nil {
			return Handle{}, err
		}
		data1 = v
	}
	var data2 float64
	if valueTok != "" {
		v, err := strconv.ParseFloat(valueTok, 64)
		if err != nil {
			return Handle{}, syntaxError(fmt.Sprintf("invalid value %q", valueTok))
		}
		data2 = v
	}

	h, err := Decode(part, kind, data1, data2)
	if err != nil {
		return Handle{}, fault.Wrap(err, ftag.With(ftag.InvalidArgument))
	}
	return h, nil
}

// parseType ORs together a comma-separated list of integers and identifiers.
func parseType(tok string, resolvers []resolver) (int, error) {
	var out int
	for _, item := range strings.Split(tok, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			return 0, syntaxError(fmt.Sprintf("empty type in %q", tok))
		}
		if n, err := strconv.ParseInt(item, 0, 32); err == nil {
			out |= int(n)
			continue
		}
		matched := false
		for _, r := range resolvers {
			if v, ok := r(item); ok {
				out |= v
				matched = true
				break
			}
		}
		if !matched {
			return 0, syntaxError(fmt.Sprintf("unknown type %q", item))
		}
	}
	return out, nil
}

// ParseLines parses a block of lines. Blank lines and lines starting with
// '#' are skipped. A leading "." resolves against the previous line's part.
func ParseLines(text string) ([]Handle, error) {
	var (
		out  []Handle
		prev int
		n    int
	)
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		h, err := Parse(line, prev)
		if err != nil {
			return nil, fault.Wrap(err, fmsg.With(fmt.Sprintf("line %d", n)))
		}
		prev = h.Part
		out = append(out, h)
	}
	if err := sc.Err(); err != nil {
		return nil, fault.Wrap(err, fmsg.With("reading handles"))
	}
	return out, nil
}

func syntaxError(msg string) error {
	return fault.Wrap(ErrSyntax, fmsg.With(msg), ftag.With(ftag.InvalidArgument))
}
