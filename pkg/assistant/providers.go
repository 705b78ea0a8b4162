package assistant

import (
	"fmt"
	"log/slog"

	"github.com/lenddesk/voicepipe/internal/config"
	"github.com/lenddesk/voicepipe/pkg/asr"
	"github.com/lenddesk/voicepipe/pkg/audioio"
	"github.com/lenddesk/voicepipe/pkg/backend"
	"github.com/lenddesk/voicepipe/pkg/language"
	"github.com/lenddesk/voicepipe/pkg/tts"
)

// buildRecognizer constructs the configured speech-to-text provider.
// Selection is explicit; a live provider with missing credentials is
// rejected at config validation, never silently degraded.
func buildRecognizer(cfg *config.Config, logger *slog.Logger) (asr.Provider, error) {
	switch cfg.ASR.Provider {
	case "elevenlabs":
		return asr.NewElevenLabsWS(
			asr.WithAPIKey(cfg.ASR.APIKey),
			asr.WithModel(cfg.ASR.Model),
			asr.WithLanguage(cfg.ASR.Language),
			asr.WithLanguages(cfg.ASR.Languages),
			asr.WithSampleRate(cfg.Audio.SampleRate),
			asr.WithLogger(logger),
		)
	case "elevenlabs-rest":
		return asr.NewElevenLabsREST(
			asr.WithAPIKey(cfg.ASR.APIKey),
			asr.WithModel(cfg.ASR.Model),
			asr.WithLanguage(cfg.ASR.Language),
			asr.WithLanguages(cfg.ASR.Languages),
			asr.WithLogger(logger),
		)
	case "whisper":
		return asr.NewWhisper(
			asr.WithAPIKey(cfg.ASR.APIKey),
			asr.WithLanguage(cfg.ASR.Language),
			asr.WithLogger(logger),
		)
	case "stub":
		return asr.NewStub(), nil
	default:
		return nil, fmt.Errorf("unknown ASR provider %q", cfg.ASR.Provider)
	}
}

// buildSynthesizer constructs the configured text-to-speech provider.
// Live providers are chained with the stub so a turn always completes
// even if synthesis fails outright.
func buildSynthesizer(cfg *config.Config, logger *slog.Logger) (tts.Provider, error) {
	switch cfg.TTS.Provider {
	case "elevenlabs":
		p, err := tts.NewElevenLabsWS(
			tts.WithAPIKey(cfg.TTS.APIKey),
			tts.WithVoice(cfg.TTS.VoiceID),
			tts.WithModel(cfg.TTS.Model),
			tts.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return tts.NewChain(logger, p, tts.NewStub())
	case "openai":
		p, err := tts.NewOpenAI(
			tts.WithAPIKey(cfg.TTS.APIKey),
			tts.WithVoice(cfg.TTS.VoiceID),
			tts.WithModel(cfg.TTS.Model),
			tts.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return tts.NewChain(logger, p, tts.NewStub())
	case "stub":
		return tts.NewStub(), nil
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", cfg.TTS.Provider)
	}
}

// buildBackend wraps the live client with the canned-reply fallback.
func buildBackend(cfg *config.Config, logger *slog.Logger) (backend.Streamer, error) {
	opts := []backend.Option{
		backend.WithAPIKey(cfg.Backend.APIKey),
		backend.WithPacingDelay(cfg.Backend.PacingDelay.Std()),
		backend.WithChunkWords(cfg.Backend.ChunkWords),
		backend.WithLogger(logger),
	}

	client, err := backend.NewClient(cfg.Backend.URL, opts...)
	if err != nil {
		return nil, err
	}
	fallback := backend.NewFallback(opts...)
	return backend.NewFailover(client, fallback, logger), nil
}

// audioConfig converts the assistant audio settings to device config.
func audioConfig(cfg *config.Config) audioio.Config {
	ac := audioio.DefaultConfig()
	ac.SampleRate = cfg.Audio.SampleRate
	ac.Channels = cfg.Audio.Channels
	ac.BlockSize = cfg.Audio.BlockSize
	ac.Device = cfg.Audio.Device
	if cfg.Audio.Device == "mock" {
		ac.Backend = audioio.BackendMock
		ac.Device = ""
	}
	if cfg.Audio.QueueSeconds > 0 && cfg.Audio.BlockSize > 0 {
		ac.QueueFrames = int(cfg.Audio.QueueSeconds * float64(cfg.Audio.SampleRate) / float64(cfg.Audio.BlockSize))
	}
	return ac
}

// languageConfig converts the assistant language settings.
func languageConfig(cfg *config.Config) language.Config {
	lc := language.DefaultConfig()
	if cfg.Languages.Default != "" {
		lc.Default = cfg.Languages.Default
	}
	if cfg.Languages.HistorySize > 0 {
		lc.HistorySize = cfg.Languages.HistorySize
	}
	return lc
}
