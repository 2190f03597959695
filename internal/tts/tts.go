package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"toolbox/internal/config"
)

// DefaultVoice is the canonical fallback voice. It is used when an essay
// carries no voice and substituted for voices the active provider does not
// know.
const DefaultVoice = "Matthew"

// Synthesizer converts essay text to MP3 audio bytes.
type Synthesizer interface {
	// Synthesize returns raw MP3 bytes for the given text and voice.
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)

	// Name returns the provider name (e.g. "polly", "openai").
	Name() string
}

// NewSynthesizer creates the synthesis provider selected by configuration.
// Polly is the default.
func NewSynthesizer(ctx context.Context, cfg *config.Config, log *logrus.Logger) (Synthesizer, error) {
	provider := strings.ToLower(cfg.TTSProvider)
	if provider == "" {
		provider = "polly"
		log.Info("TTS_PROVIDER not set, defaulting to polly")
	}

	switch provider {
	case "polly":
		return NewPollyProvider(ctx, cfg.AWSRegion, log)
	case "openai":
		return NewOpenAIProvider(cfg.OpenAIKey, log)
	default:
		return nil, fmt.Errorf("unsupported TTS provider: %s. Supported: polly, openai", provider)
	}
}
