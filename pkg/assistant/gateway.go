package assistant

import (
	"log/slog"

	"github.com/lenddesk/voicepipe/internal/config"
	"github.com/lenddesk/voicepipe/internal/log"
	"github.com/lenddesk/voicepipe/pkg/session"
	"github.com/lenddesk/voicepipe/pkg/tts"
	"github.com/lenddesk/voicepipe/pkg/voice"
)

// GatewayBuilder assembles text-mode pipelines for gateway clients.
// The session store and synthesizer are shared across clients; each
// client gets its own backend connection so one slow conversation
// cannot stall another.
type GatewayBuilder struct {
	cfg      *config.Config
	logger   *slog.Logger
	sessions *session.Store
	synth    tts.Provider
}

// NewGatewayBuilder validates the configuration and constructs the
// shared collaborators.
func NewGatewayBuilder(cfg *config.Config) (*GatewayBuilder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := log.L()

	synth, err := buildSynthesizer(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &GatewayBuilder{
		cfg:    cfg,
		logger: logger,
		sessions: session.NewStore(
			session.WithLanguageConfig(languageConfig(cfg)),
			session.WithLogger(logger),
		),
		synth: synth,
	}, nil
}

// TextPipeline builds a pipeline bound to the given session, creating
// a new session when the id is empty or unknown.
func (b *GatewayBuilder) TextPipeline(sessionID string) (*voice.Pipeline, error) {
	streamer, err := buildBackend(b.cfg, b.logger)
	if err != nil {
		return nil, err
	}

	return voice.New(voice.Config{
		Synthesizer: b.synth,
		Backend:     streamer,
		Sessions:    b.sessions,
		SessionID:   sessionID,
		SendHistory: true,
		Logger:      b.logger,
	})
}

// Sessions exposes the shared session store.
func (b *GatewayBuilder) Sessions() *session.Store {
	return b.sessions
}
