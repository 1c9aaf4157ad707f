package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cbegin/midisynth-go"
	"github.com/cbegin/midisynth-go/internal/preset"
	"github.com/cbegin/midisynth-go/internal/smf"
)

func main() {
	var (
		sampleRate  = flag.Int("sample-rate", 44100, "output sample rate")
		modeName    = flag.String("mode", "poly", "part layout: mono|poly")
		presetPath  = flag.String("presets", "", "YAML preset file (default: built-in presets)")
		outPath     = flag.String("out", "", "render to this WAV file instead of playing")
		loop        = flag.Bool("loop", false, "loop playback; use with -loops to count then stop")
		loops       = flag.Int("loops", 3, "when -loop, stop after N loops (0 = loop forever)")
		volume      = flag.Float64("volume", 1.0, "master volume scalar")
		tempo       = flag.Float64("tempo", 1.0, "tempo factor")
		maxDuration = flag.Duration("max-duration", 10*time.Minute, "with -out, longest render")
		debug       = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	fail := func(msg string, err error) {
		logger.Error(msg, "error", err)
		os.Exit(1)
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: play_midi [flags] FILE.mid")
		flag.PrintDefaults()
		os.Exit(2)
	}
	mode, err := midisynth.ParseMode(*modeName)
	if err != nil {
		fail("invalid flags", err)
	}
	opts := []midisynth.Option{
		midisynth.WithMode(mode),
		midisynth.WithLogger(logger),
		midisynth.WithLoopPlayback(*loop),
		midisynth.WithTempoFactor(*tempo),
		midisynth.WithMasterVolume(*volume),
	}
	if *presetPath != "" {
		set, err := preset.LoadFile(*presetPath)
		if err != nil {
			fail("loading presets", err)
		}
		opts = append(opts, midisynth.WithPresets(set))
	}

	seq, err := smf.ReadFile(flag.Arg(0))
	if err != nil {
		fail("reading midi file", err)
	}

	if *outPath != "" {
		start := time.Now()
		samples, err := midisynth.Render(seq, *sampleRate, append(opts, midisynth.WithMaxDuration(*maxDuration))...)
		if err != nil {
			fail("rendering", err)
		}
		if err := midisynth.WriteWAVFile(*outPath, samples, *sampleRate); err != nil {
			fail("writing wav", err)
		}
		logger.Info("rendered", "file", *outPath,
			"seconds", float64(len(samples))/2/float64(*sampleRate),
			"took", time.Since(start))
		return
	}

	pl, err := midisynth.NewPlayer(*sampleRate, opts...)
	if err != nil {
		fail("creating player", err)
	}
	ch := pl.Watch()
	if err := pl.Play(seq); err != nil {
		fail("starting playback", err)
	}
	loopCount := 0
	for event := range ch {
		switch event.Kind {
		case midisynth.EventPlaybackEnded:
			fmt.Println("playback completed")
			goto done
		case midisynth.EventLoopCompleted:
			loopCount++
			fmt.Printf("loop %d completed\n", loopCount)
			if *loop && *loops > 0 && loopCount >= *loops {
				pl.Stop()
			}
		case midisynth.EventFault:
			fail("playback failed", event.Err)
		}
	}
done:
	pl.Wait()
}
