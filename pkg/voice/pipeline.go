package voice

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lenddesk/voicepipe/pkg/audioio"
	"github.com/lenddesk/voicepipe/pkg/backend"
	"github.com/lenddesk/voicepipe/pkg/segment"
	"github.com/lenddesk/voicepipe/pkg/session"
	"github.com/lenddesk/voicepipe/pkg/tts"
)

// stopGrace bounds how long Stop waits for an in-flight turn before
// cancelling it outright.
const stopGrace = 5 * time.Second

// Pipeline drives conversation turns end to end.
type Pipeline struct {
	cfg     Config
	metrics *MetricsCollector

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	sess    *session.Session

	stopping atomic.Bool
	done     chan struct{}
	events   chan StreamChunk
}

// New creates a pipeline from the given collaborators.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Logger = logger.With("component", "voice.pipeline")

	return &Pipeline{
		cfg:     cfg,
		metrics: NewMetricsCollector(),
	}, nil
}

// Start begins voice mode: capture runs until Stop and every detected
// utterance becomes a turn on the Events stream.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.cfg.validateVoiceMode(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)

	if err := p.cfg.Source.Start(ctx); err != nil {
		cancel()
		return err
	}
	if p.cfg.Sink != nil {
		if err := p.cfg.Sink.Start(ctx); err != nil {
			p.cfg.Source.Stop()
			cancel()
			return err
		}
	}

	p.sess = p.cfg.Sessions.GetOrCreate(p.cfg.SessionID)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.events = make(chan StreamChunk, 32)
	p.started = true

	seg := segment.New(p.cfg.Segmenter, p.cfg.Logger)
	utterances := seg.Run(ctx.Done(), p.cfg.Source.Frames())
	go p.run(ctx, utterances)

	p.cfg.Logger.Info("pipeline started", "session_id", p.sess.ID())
	return nil
}

// Events returns the voice-mode progress stream. The channel closes
// after Stop once the last turn has drained.
func (p *Pipeline) Events() <-chan StreamChunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events
}

// SessionID returns the active conversation's identifier, creating
// the session on first use.
func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess == nil {
		p.sess = p.cfg.Sessions.GetOrCreate(p.cfg.SessionID)
	}
	return p.sess.ID()
}

// Metrics returns the per-turn latency collector.
func (p *Pipeline) Metrics() *MetricsCollector {
	return p.metrics
}

// run consumes utterances until the source closes.
func (p *Pipeline) run(ctx context.Context, utterances <-chan *segment.Utterance) {
	defer close(p.done)
	defer close(p.events)

	for utt := range utterances {
		p.metrics.MarkSpeechEnd()
		p.runTurn(ctx, utt)
	}
	p.cfg.Logger.Info("capture ended")
}

// runTurn transcribes one utterance and, unless the pipeline is
// stopping, streams the assistant's reply.
func (p *Pipeline) runTurn(ctx context.Context, utt *segment.Utterance) {
	// The reply loop and the audio relay both emit; the lock keeps
	// sequence numbers matching delivery order.
	var emitMu sync.Mutex
	seq := 0
	emit := func(c StreamChunk) bool {
		emitMu.Lock()
		defer emitMu.Unlock()
		c.Seq = seq
		c.SessionID = p.sess.ID()
		seq++
		select {
		case p.events <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	events, err := p.cfg.Recognizer.Transcribe(ctx, utt)
	if err != nil {
		p.cfg.Logger.Error("transcription failed to start", "error", err)
		emit(StreamChunk{Kind: KindError, Err: err})
		return
	}

	// The transcription stream is always drained to completion, even
	// while stopping, so the provider's goroutines end cleanly.
	var finalText string
	for ev := range events {
		if ev.Err != nil {
			emit(StreamChunk{Kind: KindError, Err: ev.Err})
			return
		}
		if ev.IsFinal {
			finalText = ev.Text
			break
		}
		emit(StreamChunk{Kind: KindTranscript, Text: ev.Text})
	}
	for range events {
	}

	if finalText == "" {
		p.cfg.Logger.Debug("empty transcript, skipping turn", "utterance_id", utt.ID)
		return
	}

	lang := p.sess.DetectLanguage(finalText)
	p.metrics.MarkTranscript()
	emit(StreamChunk{Kind: KindTranscript, Text: finalText, IsFinal: true, Language: lang})

	if err := p.cfg.Sessions.AppendTurn(p.sess.ID(), session.RoleUser, finalText); err != nil {
		p.cfg.Logger.Error("append user turn failed", "error", err)
	}

	if p.stopping.Load() {
		p.cfg.Logger.Debug("stopping, reply suppressed", "utterance_id", utt.ID)
		return
	}
	p.respond(ctx, finalText, emit)
}

// respond streams the backend reply, feeding paced text into synthesis
// while relaying both text and audio to the caller.
func (p *Pipeline) respond(ctx context.Context, userText string, emit func(StreamChunk) bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := backend.Request{
		Text:      userText,
		SessionID: p.sess.BackendID(),
	}
	if p.cfg.SendHistory {
		history, err := p.cfg.Sessions.History(p.sess.ID())
		if err == nil {
			for _, t := range history {
				req.History = append(req.History, backend.HistoryTurn{Role: t.Role, Content: t.Content})
			}
		}
	}

	chunks, err := p.cfg.Backend.StreamMessage(ctx, req)
	if err != nil {
		emit(StreamChunk{Kind: KindError, Err: err})
		return
	}

	texts := make(chan string, 8)
	textsOpen := true
	closeTexts := func() {
		if textsOpen {
			close(texts)
			textsOpen = false
		}
	}
	defer closeTexts()

	audio, err := p.cfg.Synthesizer.StreamText(ctx, texts)
	if err != nil {
		// No consumer exists now, so stop feeding text into the
		// channel or the turn would wedge once it fills.
		p.cfg.Logger.Error("synthesis failed to start", "error", err)
		audio = nil
		closeTexts()
	}

	format := tts.FormatOf(p.cfg.Synthesizer)

	audioDone := make(chan struct{})
	go func() {
		defer close(audioDone)
		if audio == nil {
			return
		}
		if p.cfg.Sink != nil {
			// Idempotent; covers text-mode turns where Start never ran.
			if err := p.cfg.Sink.Start(ctx); err != nil {
				p.cfg.Logger.Warn("playback unavailable", "error", err)
			}
		}
		for pcm := range audio {
			p.metrics.MarkFirstAudio()
			if !emit(StreamChunk{Kind: KindAudio, Audio: pcm}) {
				return
			}
			if p.cfg.Sink != nil && len(pcm) > 0 {
				out := pcm
				// Synthesis may run at a higher rate than the sink.
				if sinkRate := p.cfg.Sink.Config().SampleRate; format.IsPCM() && sinkRate > 0 && format.SampleRate() != sinkRate {
					out = audioio.ResampleBytes(pcm, format.SampleRate(), sinkRate)
				}
				if err := p.cfg.Sink.Write(ctx, out); err != nil {
					p.cfg.Logger.Error("playback write failed", "error", err)
				}
			}
		}
	}()

	for chunk := range chunks {
		switch chunk.Kind {
		case backend.KindPartial:
			p.metrics.MarkFirstReply()
			if !emit(StreamChunk{Kind: KindPartialText, Text: chunk.Text}) {
				return
			}
			if textsOpen {
				select {
				case texts <- chunk.Text:
				case <-ctx.Done():
					return
				}
			}

		case backend.KindFinal:
			if chunk.SessionID != "" {
				p.cfg.Sessions.AdoptBackendID(p.sess.ID(), chunk.SessionID)
			}
			if err := p.cfg.Sessions.AppendTurn(p.sess.ID(), session.RoleAssistant, chunk.Text); err != nil {
				p.cfg.Logger.Error("append assistant turn failed", "error", err)
			}
			emit(StreamChunk{Kind: KindFinalText, Text: chunk.Text})

		case backend.KindError:
			// Abandon synthesis rather than waiting for it.
			emit(StreamChunk{Kind: KindError, Err: chunk.Err})
			cancel()
			return
		}
	}

	closeTexts()
	select {
	case <-audioDone:
	case <-ctx.Done():
		return
	}

	if p.cfg.Sink != nil {
		if err := p.cfg.Sink.Flush(ctx); err != nil && ctx.Err() == nil {
			p.cfg.Logger.Error("playback flush failed", "error", err)
		}
	}
	p.metrics.MarkTurnDone()
}

// Converse runs one text-mode turn. The returned stream carries the
// paced reply text, the final reply, and synthesized audio.
func (p *Pipeline) Converse(ctx context.Context, text string) (<-chan StreamChunk, error) {
	p.mu.Lock()
	if p.sess == nil {
		p.sess = p.cfg.Sessions.GetOrCreate(p.cfg.SessionID)
	}
	sess := p.sess
	p.mu.Unlock()

	lang := sess.DetectLanguage(text)
	p.cfg.Logger.Debug("text turn", "session_id", sess.ID(), "language", lang)

	if err := p.cfg.Sessions.AppendTurn(sess.ID(), session.RoleUser, text); err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, 32)
	go func() {
		defer close(out)
		var emitMu sync.Mutex
		seq := 0
		emit := func(c StreamChunk) bool {
			emitMu.Lock()
			defer emitMu.Unlock()
			c.Seq = seq
			c.SessionID = sess.ID()
			seq++
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		p.respond(ctx, text, emit)
	}()
	return out, nil
}

// Stop ends voice mode: frame production stops, the in-flight
// transcription is awaited, and any synthesis still running after the
// grace period is cancelled.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	p.started = false
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	p.stopping.Store(true)
	defer p.stopping.Store(false)

	if err := p.cfg.Source.Stop(); err != nil {
		p.cfg.Logger.Warn("source stop failed", "error", err)
	}

	select {
	case <-done:
	case <-time.After(stopGrace):
		p.cfg.Logger.Warn("stop grace period elapsed, cancelling turn")
	}
	cancel()
	<-done

	if p.cfg.Sink != nil {
		if err := p.cfg.Sink.Stop(); err != nil {
			p.cfg.Logger.Warn("sink stop failed", "error", err)
		}
	}

	p.cfg.Logger.Info("pipeline stopped")
	return nil
}
