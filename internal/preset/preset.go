// Package preset holds program and drum presets and loads them from YAML.
package preset

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"gopkg.in/yaml.v3"

	"github.com/cbegin/midisynth-go/internal/handle"
)

// Any matches every bank select value.
const Any = -1

var ErrOutOfRange = errors.New("preset: value out of range")

// ProgramPreset is applied on program change. Init is pushed when the
// program is selected and Final when it is replaced.
type ProgramPreset struct {
	Number int
	MSB    int
	LSB    int
	Init   []handle.Handle
	Final  []handle.Handle
}

// DrumPreset is applied on a drum note. The drum part is retuned to Note
// after being triggered.
type DrumPreset struct {
	Number int
	Note   int
	Init   []handle.Handle
}

type programKey struct {
	number, msb, lsb int
}

// Set is an immutable-after-load collection of presets.
type Set struct {
	programs map[programKey]*ProgramPreset
	drums    map[int]*DrumPreset
}

func NewSet() *Set {
	return &Set{
		programs: map[programKey]*ProgramPreset{},
		drums:    map[int]*DrumPreset{},
	}
}

// AddProgram registers p, replacing any preset with the same key.
func (s *Set) AddProgram(p ProgramPreset) {
	s.programs[programKey{p.Number, p.MSB, p.LSB}] = &p
}

func (s *Set) AddDrum(d DrumPreset) {
	s.drums[d.Number] = &d
}

// Program looks up (number, msb, lsb) and falls back to (number, Any, Any).
func (s *Set) Program(number, msb, lsb int) (*ProgramPreset, bool) {
	if s == nil {
		return nil, false
	}
	if p, ok := s.programs[programKey{number, msb, lsb}]; ok {
		return p, true
	}
	p, ok := s.programs[programKey{number, Any, Any}]
	return p, ok
}

func (s *Set) Drum(number int) (*DrumPreset, bool) {
	if s == nil {
		return nil, false
	}
	d, ok := s.drums[number]
	return d, ok
}

func (s *Set) Len() (programs, drums int) {
	if s == nil {
		return 0, 0
	}
	return len(s.programs), len(s.drums)
}

type fileFormat struct {
	Programs []programEntry `yaml:"programs"`
	Drums    []drumEntry    `yaml:"drums"`
}

type programEntry struct {
	Number int    `yaml:"number"`
	MSB    *int   `yaml:"msb"`
	LSB    *int   `yaml:"lsb"`
	Init   string `yaml:"init"`
	Final  string `yaml:"final"`
}

type drumEntry struct {
	Number int    `yaml:"number"`
	Note   int    `yaml:"note"`
	Init   string `yaml:"init"`
}

//go:embed default.yaml
var defaultYAML []byte

// Default returns the built-in preset set.
func Default() *Set {
	s, err := Load(bytes.NewReader(defaultYAML))
	if err != nil {
		panic(fmt.Sprintf("preset: built-in presets: %v", err))
	}
	return s
}

// LoadFile reads a YAML preset file.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		tag := ftag.Internal
		if errors.Is(err, fs.ErrNotExist) {
			tag = ftag.NotFound
		}
		return nil, fault.Wrap(err, fmsg.With("opening preset file"), ftag.With(tag))
	}
	defer f.Close()
	return Load(f)
}

// Load decodes YAML presets from r. An empty document yields an empty set.
func Load(r io.Reader) (*Set, error) {
	var doc fileFormat
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fault.Wrap(err, fmsg.With("decoding presets"), ftag.With(ftag.InvalidArgument))
	}

	s := NewSet()
	for i, e := range doc.Programs {
		p, err := e.build()
		if err != nil {
			return nil, fault.Wrap(err, fmsg.With(fmt.Sprintf("program entry %d", i)), ftag.With(ftag.InvalidArgument))
		}
		s.AddProgram(p)
	}
	for i, e := range doc.Drums {
		d, err := e.build()
		if err != nil {
			return nil, fault.Wrap(err, fmsg.With(fmt.Sprintf("drum entry %d", i)), ftag.With(ftag.InvalidArgument))
		}
		s.AddDrum(d)
	}
	return s, nil
}

func (e programEntry) build() (ProgramPreset, error) {
	p := ProgramPreset{Number: e.Number, MSB: Any, LSB: Any}
	if err := checkRange("number", e.Number); err != nil {
		return p, err
	}
	for _, b := range []struct {
		name string
		src  *int
		dst  *int
	}{{"msb", e.MSB, &p.MSB}, {"lsb", e.LSB, &p.LSB}} {
		if b.src == nil {
			continue
		}
		if err := checkRange(b.name, *b.src); err != nil {
			return p, err
		}
		*b.dst = *b.src
	}
	var err error
	if p.Init, err = handle.ParseLines(e.Init); err != nil {
		return p, fault.Wrap(err, fmsg.With("init"))
	}
	if p.Final, err = handle.ParseLines(e.Final); err != nil {
		return p, fault.Wrap(err, fmsg.With("final"))
	}
	return p, nil
}

func (e drumEntry) build() (DrumPreset, error) {
	d := DrumPreset{Number: e.Number, Note: e.Note}
	if err := checkRange("number", e.Number); err != nil {
		return d, err
	}
	if err := checkRange("note", e.Note); err != nil {
		return d, err
	}
	var err error
	if d.Init, err = handle.ParseLines(e.Init); err != nil {
		return d, fault.Wrap(err, fmsg.With("init"))
	}
	return d, nil
}

func checkRange(name string, v int) error {
	if v < 0 || v > 127 {
		return fmt.Errorf("%w: %s %d", ErrOutOfRange, name, v)
	}
	return nil
}
