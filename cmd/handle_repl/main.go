package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/cbegin/midisynth-go"
	"github.com/cbegin/midisynth-go/internal/handle"
)

type env struct {
	player   *midisynth.Player
	lastPart int
}

type command struct {
	name  string
	usage string
	arity int
	run   func(*env, []string) error
}

var commands = []command{
	{"play", ":play FILE", 1, func(e *env, args []string) error { return e.player.PlayFile(args[0]) }},
	{"stop", ":stop", 0, func(e *env, _ []string) error { return e.player.Stop() }},
	{"volume", ":volume V", 1, func(e *env, args []string) error {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return err
		}
		return e.player.SetMasterVolume(v)
	}},
	{"seek", ":seek TICK", 1, func(e *env, args []string) error {
		t, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return err
		}
		e.player.Seek(t)
		return nil
	}},
}

// eval runs a ":" command or pushes one handle line.
func (e *env) eval(line string) error {
	if name, ok := strings.CutPrefix(line, ":"); ok {
		fields := strings.Fields(name)
		if len(fields) == 0 {
			return errors.New("empty command")
		}
		for _, cmd := range commands {
			if cmd.name != fields[0] {
				continue
			}
			if len(fields)-1 != cmd.arity {
				return fmt.Errorf("usage: %s", cmd.usage)
			}
			return cmd.run(e, fields[1:])
		}
		return fmt.Errorf("unknown command: %s", fields[0])
	}
	h, err := handle.Parse(line, e.lastPart)
	if err != nil {
		return err
	}
	e.lastPart = h.Part
	e.player.Push(h)
	return nil
}

func repl(e *env) error {
	rl, err := readline.New("> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			fmt.Println(err)
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == ":quit" {
			return nil
		}
		if err := e.eval(line); err != nil {
			fmt.Println(err)
		}
	}
}

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 44100, "output sample rate")
		modeName   = flag.String("mode", "mono", "part layout: mono|poly")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	mode, err := midisynth.ParseMode(*modeName)
	if err != nil {
		logger.Error("invalid flags", "error", err)
		os.Exit(2)
	}
	pl, err := midisynth.NewPlayer(*sampleRate, midisynth.WithMode(mode), midisynth.WithLogger(logger))
	if err != nil {
		logger.Error("creating player", "error", err)
		os.Exit(1)
	}
	if err := pl.Open(); err != nil {
		logger.Error("opening audio", "error", err)
		os.Exit(1)
	}
	defer pl.Stop()

	fmt.Println("enter handles as PART NAME [TYPE] [VALUE], e.g. \"1 noteon 60 0.8\"; :quit to exit")
	if err := repl(&env{player: pl}); err != nil {
		logger.Error("repl", "error", err)
	}
}
