// Package assistant assembles the lending voice assistant from its
// configuration: audio devices, providers, backend, sessions, and the
// conversation pipeline, plus the interactive voice and text loops.
package assistant

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lenddesk/voicepipe/internal/config"
	"github.com/lenddesk/voicepipe/internal/log"
	"github.com/lenddesk/voicepipe/pkg/audioio"
	"github.com/lenddesk/voicepipe/pkg/segment"
	"github.com/lenddesk/voicepipe/pkg/session"
	"github.com/lenddesk/voicepipe/pkg/voice"
)

// App is the assembled assistant.
type App struct {
	cfg      *config.Config
	sessions *session.Store
	pipeline *voice.Pipeline
	source   audioio.Source
	sink     audioio.Sink

	in  io.Reader
	out io.Writer
}

// New validates the configuration and creates an unassembled app.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		cfg: cfg,
		in:  os.Stdin,
		out: os.Stdout,
	}, nil
}

// Init constructs the providers, audio devices, and pipeline.
func (a *App) Init() error {
	logger := log.L()

	a.sessions = session.NewStore(
		session.WithLanguageConfig(languageConfig(a.cfg)),
		session.WithLogger(logger),
	)

	recognizer, err := buildRecognizer(a.cfg, logger)
	if err != nil {
		return fmt.Errorf("assistant: recognizer: %w", err)
	}
	synthesizer, err := buildSynthesizer(a.cfg, logger)
	if err != nil {
		return fmt.Errorf("assistant: synthesizer: %w", err)
	}
	streamer, err := buildBackend(a.cfg, logger)
	if err != nil {
		return fmt.Errorf("assistant: backend: %w", err)
	}

	audioCfg := audioConfig(a.cfg)
	a.source, err = audioio.NewSource(audioCfg, logger)
	if err != nil {
		return fmt.Errorf("assistant: audio source: %w", err)
	}
	a.sink, err = audioio.NewSink(audioCfg, logger)
	if err != nil {
		return fmt.Errorf("assistant: audio sink: %w", err)
	}

	a.pipeline, err = voice.New(voice.Config{
		Source: a.source,
		Sink:   a.sink,
		Segmenter: segment.Config{
			SilenceThreshold:     a.cfg.Segmenter.SilenceThreshold,
			SilenceDuration:      a.cfg.Segmenter.SilenceDuration.Std(),
			MinUtteranceDuration: a.cfg.Segmenter.MinUtteranceDuration.Std(),
		},
		Recognizer:  recognizer,
		Synthesizer: synthesizer,
		Backend:     streamer,
		Sessions:    a.sessions,
		SendHistory: true,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("assistant: pipeline: %w", err)
	}

	log.Info("assistant initialized",
		"asr", a.cfg.ASR.Provider,
		"tts", a.cfg.TTS.Provider,
		"backend", a.cfg.Backend.URL != "",
	)
	return nil
}

// Run drives the interactive mode loop until the context ends or the
// user exits.
func (a *App) Run(ctx context.Context) error {
	fmt.Fprintln(a.out, "Lending voice assistant. Commands: /voice, /text, /exit")

	scanner := bufio.NewScanner(a.in)
	mode := "text"
	fmt.Fprint(a.out, "> ")

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/exit":
			return nil
		case line == "/voice":
			if err := a.voiceTurns(ctx, scanner); err != nil {
				fmt.Fprintf(a.out, "voice mode failed: %v\n", err)
			}
			mode = "text"
		case line == "/text":
			mode = "text"
		case line == "":
		default:
			if mode == "text" {
				a.textTurn(ctx, line)
			}
		}
		fmt.Fprint(a.out, "> ")
	}
	return scanner.Err()
}

// textTurn runs one typed turn and prints the paced reply.
func (a *App) textTurn(ctx context.Context, text string) {
	chunks, err := a.pipeline.Converse(ctx, text)
	if err != nil {
		fmt.Fprintf(a.out, "turn failed: %v\n", err)
		return
	}
	a.printChunks(chunks)
}

// voiceTurns runs capture until the user presses Enter.
func (a *App) voiceTurns(ctx context.Context, scanner *bufio.Scanner) error {
	if err := a.pipeline.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Listening. Press Enter to return to text mode.")

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.printChunks(a.pipeline.Events())
	}()

	scanner.Scan()
	if err := a.pipeline.Stop(); err != nil {
		return err
	}
	<-done

	metrics := a.pipeline.Metrics().Average()
	fmt.Fprintln(a.out, "Latency: "+metrics.FormatLatency())
	return nil
}

// printChunks renders a turn stream to the console.
func (a *App) printChunks(chunks <-chan voice.StreamChunk) {
	for chunk := range chunks {
		switch chunk.Kind {
		case voice.KindTranscript:
			if chunk.IsFinal {
				fmt.Fprintf(a.out, "[you, %s] %s\n", chunk.Language, chunk.Text)
			}
		case voice.KindPartialText:
			fmt.Fprint(a.out, chunk.Text)
		case voice.KindFinalText:
			fmt.Fprintln(a.out)
		case voice.KindError:
			fmt.Fprintf(a.out, "error: %v\n", chunk.Err)
		}
	}
}

// Shutdown releases devices and providers.
func (a *App) Shutdown() {
	if a.source != nil {
		a.source.Close()
	}
	if a.sink != nil {
		a.sink.Close()
	}
	log.Info("assistant shut down")
}

// Sessions exposes the session store, used by the gateway binary.
func (a *App) Sessions() *session.Store {
	return a.sessions
}
