package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lenddesk/voicepipe/pkg/asr"
	"github.com/lenddesk/voicepipe/pkg/audioio"
	"github.com/lenddesk/voicepipe/pkg/backend"
	"github.com/lenddesk/voicepipe/pkg/segment"
	"github.com/lenddesk/voicepipe/pkg/session"
	"github.com/lenddesk/voicepipe/pkg/tts"
)

// speechScript builds a capture script for one utterance: ~1s of voiced
// frames followed by enough silence to close it.
func speechScript() [][]int16 {
	voiced := make([]int16, 1024)
	for i := range voiced {
		voiced[i] = 1000
	}
	var blocks [][]int16
	for i := 0; i < 16; i++ {
		blocks = append(blocks, voiced)
	}
	for i := 0; i < 20; i++ {
		blocks = append(blocks, make([]int16, 1024))
	}
	return blocks
}

type testPipeline struct {
	pipeline *Pipeline
	sessions *session.Store
	recog    *asr.Mock
	synth    *tts.Mock
	sink     *audioio.MockSink
	source   *audioio.MockSource
}

func newTestPipeline(t *testing.T, mutate func(*Config)) *testPipeline {
	t.Helper()

	cfg := audioio.DefaultConfig()
	tp := &testPipeline{
		sessions: session.NewStore(),
		recog:    asr.NewMock("what is p2p lending"),
		synth:    tts.NewMock(),
		sink:     audioio.NewMockSink(cfg, nil),
		source:   audioio.NewMockSource(cfg, nil, audioio.WithScript(speechScript())),
	}

	pcfg := Config{
		Source:      tp.source,
		Sink:        tp.sink,
		Segmenter:   segment.DefaultConfig(),
		Recognizer:  tp.recog,
		Synthesizer: tp.synth,
		Backend:     backend.NewFallback(backend.WithPacingDelay(time.Millisecond)),
		Sessions:    tp.sessions,
	}
	if mutate != nil {
		mutate(&pcfg)
	}

	p, err := New(pcfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	tp.pipeline = p
	return tp
}

func collect(t *testing.T, ch <-chan StreamChunk) []StreamChunk {
	t.Helper()
	var out []StreamChunk
	timeout := time.After(10 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, chunk)
		case <-timeout:
			t.Fatal("timed out draining stream")
		}
	}
}

func byKind(chunks []StreamChunk, kind ChunkKind) []StreamChunk {
	var out []StreamChunk
	for _, c := range chunks {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func TestPipelineVoiceTurn(t *testing.T) {
	tp := newTestPipeline(t, nil)
	p := tp.pipeline

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	chunks := collect(t, p.Events())
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	transcripts := byKind(chunks, KindTranscript)
	if len(transcripts) == 0 {
		t.Fatal("no transcript chunks")
	}
	final := transcripts[len(transcripts)-1]
	if !final.IsFinal {
		t.Error("last transcript not final")
	}
	if final.Text != "what is p2p lending" {
		t.Errorf("transcript = %q", final.Text)
	}
	if final.Language != "en" {
		t.Errorf("language = %q, want en", final.Language)
	}

	partials := byKind(chunks, KindPartialText)
	if len(partials) == 0 {
		t.Fatal("no reply partials")
	}
	for _, c := range partials {
		if !strings.HasSuffix(c.Text, "\n") {
			t.Errorf("partial %q missing newline suffix", c.Text)
		}
	}

	finals := byKind(chunks, KindFinalText)
	if len(finals) != 1 {
		t.Fatalf("got %d final_text chunks, want 1", len(finals))
	}
	if !strings.Contains(finals[0].Text, "peer-to-peer") {
		t.Errorf("final reply = %q", finals[0].Text)
	}

	if len(byKind(chunks, KindAudio)) == 0 {
		t.Error("no audio chunks")
	}
	if len(byKind(chunks, KindError)) != 0 {
		t.Error("unexpected error chunks")
	}
	if len(tp.sink.Chunks()) == 0 {
		t.Error("sink received no audio")
	}

	// Every chunk belongs to the same session, with in-order sequence
	// numbers.
	sid := chunks[0].SessionID
	if sid == "" {
		t.Fatal("chunk missing session id")
	}
	for i, c := range chunks {
		if c.SessionID != sid {
			t.Errorf("chunk %d session id = %q", i, c.SessionID)
		}
		if c.Seq != i {
			t.Errorf("chunk %d seq = %d", i, c.Seq)
		}
	}

	history, err := tp.sessions.History(sid)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want user and assistant turns", len(history))
	}
	if history[0].Role != session.RoleUser || history[0].Content != "what is p2p lending" {
		t.Errorf("user turn = %+v", history[0])
	}
	if history[1].Role != session.RoleAssistant || history[1].Content != finals[0].Text {
		t.Errorf("assistant turn role=%q", history[1].Role)
	}

	avg := p.Metrics().Average()
	if avg.TotalLatency <= 0 {
		t.Error("metrics recorded no completed turn")
	}
}

func TestPipelineConverse(t *testing.T) {
	tp := newTestPipeline(t, nil)
	p := tp.pipeline

	ch, err := p.Converse(context.Background(), "what are the risks")
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	chunks := collect(t, ch)

	finals := byKind(chunks, KindFinalText)
	if len(finals) != 1 {
		t.Fatalf("got %d final_text chunks, want 1", len(finals))
	}
	if !strings.Contains(finals[0].Text, "credit default risk") {
		t.Errorf("final reply = %q", finals[0].Text)
	}
	if len(byKind(chunks, KindTranscript)) != 0 {
		t.Error("text turn produced transcript chunks")
	}
	if len(byKind(chunks, KindAudio)) == 0 {
		t.Error("text turn produced no audio")
	}

	// A second turn reuses the session and extends its history.
	ch, err = p.Converse(context.Background(), "tell me the benefits")
	if err != nil {
		t.Fatalf("second converse: %v", err)
	}
	collect(t, ch)

	history, err := tp.sessions.History(p.SessionID())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 4 {
		t.Errorf("history length = %d, want 4", len(history))
	}
}

func TestPipelineSendHistory(t *testing.T) {
	var gotHistory [][]backend.HistoryTurn
	capture := &captureStreamer{
		inner: backend.NewFallback(backend.WithPacingDelay(time.Millisecond)),
		onRequest: func(req backend.Request) {
			gotHistory = append(gotHistory, req.History)
		},
	}

	tp := newTestPipeline(t, func(cfg *Config) {
		cfg.Backend = capture
		cfg.SendHistory = true
	})

	ch, err := tp.pipeline.Converse(context.Background(), "first question")
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	collect(t, ch)

	ch, err = tp.pipeline.Converse(context.Background(), "second question")
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	collect(t, ch)

	if len(gotHistory) != 2 {
		t.Fatalf("backend saw %d requests, want 2", len(gotHistory))
	}
	// The first request carries the just-appended user turn; the second
	// also carries the first assistant reply.
	if len(gotHistory[0]) != 1 {
		t.Errorf("first request history = %d turns, want 1", len(gotHistory[0]))
	}
	if len(gotHistory[1]) != 3 {
		t.Errorf("second request history = %d turns, want 3", len(gotHistory[1]))
	}
}

func TestPipelineTranscriptionError(t *testing.T) {
	wantErr := errors.New("recognition service down")
	tp := newTestPipeline(t, func(cfg *Config) {
		cfg.Recognizer = &asr.Mock{
			TranscribeFunc: func(ctx context.Context, utt *segment.Utterance) (<-chan asr.TranscriptEvent, error) {
				return nil, wantErr
			},
		}
	})
	p := tp.pipeline

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	chunks := collect(t, p.Events())
	_ = p.Stop()

	errs := byKind(chunks, KindError)
	if len(errs) != 1 {
		t.Fatalf("got %d error chunks, want 1", len(errs))
	}
	if !errors.Is(errs[0].Err, wantErr) {
		t.Errorf("error = %v", errs[0].Err)
	}
	if len(byKind(chunks, KindFinalText)) != 0 {
		t.Error("reply streamed despite failed transcription")
	}
}

func TestPipelineEmptyTranscriptSkipsTurn(t *testing.T) {
	tp := newTestPipeline(t, func(cfg *Config) {
		cfg.Recognizer = asr.NewMock("")
	})
	p := tp.pipeline

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	chunks := collect(t, p.Events())
	_ = p.Stop()

	if len(chunks) != 0 {
		t.Errorf("empty transcript produced %d chunks: %+v", len(chunks), chunks)
	}
}

func TestPipelineLifecycle(t *testing.T) {
	t.Run("stop before start", func(t *testing.T) {
		tp := newTestPipeline(t, nil)
		if err := tp.pipeline.Stop(); !errors.Is(err, ErrNotStarted) {
			t.Errorf("got %v, want ErrNotStarted", err)
		}
	})

	t.Run("double start", func(t *testing.T) {
		tp := newTestPipeline(t, nil)
		if err := tp.pipeline.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := tp.pipeline.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("got %v, want ErrAlreadyStarted", err)
		}
		collect(t, tp.pipeline.Events())
		_ = tp.pipeline.Stop()
	})

	t.Run("voice mode requires source and recognizer", func(t *testing.T) {
		tp := newTestPipeline(t, func(cfg *Config) {
			cfg.Source = nil
			cfg.Recognizer = nil
		})
		if err := tp.pipeline.Start(context.Background()); err == nil {
			t.Error("start accepted without a source")
		}
	})

	t.Run("missing backend rejected", func(t *testing.T) {
		_, err := New(Config{
			Synthesizer: tts.NewMock(),
			Sessions:    session.NewStore(),
		})
		if err == nil {
			t.Error("config without backend accepted")
		}
	})
}

func TestPipelineSessionID(t *testing.T) {
	tp := newTestPipeline(t, nil)
	id := tp.pipeline.SessionID()
	if id == "" {
		t.Fatal("empty session id")
	}
	if tp.pipeline.SessionID() != id {
		t.Error("session id changed between calls")
	}
	if _, err := tp.sessions.Get(id); err != nil {
		t.Errorf("session not registered in store: %v", err)
	}
}

func TestPipelinePlaybackResample(t *testing.T) {
	tp := newTestPipeline(t, nil)
	tp.synth.OutputFormat = tts.EncodingPCM24

	ch, err := tp.pipeline.Converse(context.Background(), "what is p2p lending")
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	chunks := collect(t, ch)

	for _, c := range byKind(chunks, KindAudio) {
		if len(c.Audio) != 640 {
			t.Fatalf("emitted audio chunk = %d bytes, want provider-rate 640", len(c.Audio))
		}
	}

	written := tp.sink.Chunks()
	if len(written) == 0 {
		t.Fatal("no audio reached the sink")
	}
	// 320 samples at 24kHz resample to 213 at the sink's 16kHz.
	for i, w := range written {
		if len(w) != 426 {
			t.Errorf("sink chunk %d = %d bytes, want 426", i, len(w))
		}
	}
}

func TestPipelineSynthesisStartFailure(t *testing.T) {
	partials := make([]string, 12)
	for i := range partials {
		partials[i] = fmt.Sprintf("piece %d.", i)
	}
	tp := newTestPipeline(t, func(cfg *Config) {
		cfg.Backend = &scriptedStreamer{partials: partials, final: "full reply"}
	})
	tp.synth.StreamTextFunc = func(ctx context.Context, texts <-chan string) (<-chan []byte, error) {
		return nil, errors.New("synthesizer offline")
	}

	ch, err := tp.pipeline.Converse(context.Background(), "what is p2p lending")
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	chunks := collect(t, ch)

	if got := len(byKind(chunks, KindPartialText)); got != 12 {
		t.Errorf("partial chunks = %d, want 12", got)
	}
	finals := byKind(chunks, KindFinalText)
	if len(finals) != 1 || finals[0].Text != "full reply" {
		t.Fatalf("final chunks = %+v", finals)
	}
	if len(byKind(chunks, KindAudio)) != 0 {
		t.Error("audio produced by a failed synthesizer")
	}
}

// scriptedStreamer replays a fixed set of reply chunks.
type scriptedStreamer struct {
	partials []string
	final    string
}

func (s *scriptedStreamer) StreamMessage(ctx context.Context, req backend.Request) (<-chan backend.Chunk, error) {
	out := make(chan backend.Chunk)
	go func() {
		defer close(out)
		for _, text := range s.partials {
			select {
			case out <- backend.Chunk{Kind: backend.KindPartial, Text: text}:
			case <-ctx.Done():
				return
			}
		}
		out <- backend.Chunk{Kind: backend.KindFinal, Text: s.final}
	}()
	return out, nil
}

func (s *scriptedStreamer) Close() error { return nil }

// captureStreamer records each request before delegating.
type captureStreamer struct {
	inner     backend.Streamer
	onRequest func(backend.Request)
}

func (c *captureStreamer) StreamMessage(ctx context.Context, req backend.Request) (<-chan backend.Chunk, error) {
	c.onRequest(req)
	return c.inner.StreamMessage(ctx, req)
}

func (c *captureStreamer) Close() error { return c.inner.Close() }
