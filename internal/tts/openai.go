package tts

import (
	"context"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// openaiVoices maps the dashboard voice ids onto the closest OpenAI voices.
// Anything unmapped falls back to the default voice's mapping.
var openaiVoices = map[string]openai.SpeechVoice{
	"Matthew": openai.VoiceOnyx,
	"Joanna":  openai.VoiceNova,
	"Ruth":    openai.VoiceShimmer,
	"Stephen": openai.VoiceEcho,
	"Amy":     openai.VoiceFable,
	"Brian":   openai.VoiceAlloy,
}

// OpenAIProvider synthesizes speech through the OpenAI speech endpoint. It
// is the alternate provider for environments without AWS credentials.
type OpenAIProvider struct {
	client *openai.Client
	log    *logrus.Logger
}

// NewOpenAIProvider creates an OpenAI-backed synthesizer.
func NewOpenAIProvider(apiKey string, log *logrus.Logger) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai TTS provider")
	}

	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		log:    log,
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Synthesize converts text to MP3 bytes.
func (p *OpenAIProvider) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	voice, ok := openaiVoices[voiceID]
	if !ok {
		voice = openaiVoices[DefaultVoice]
	}

	p.log.WithFields(logrus.Fields{"voice": string(voice), "length": len(text)}).
		Info("synthesizing speech")

	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio stream: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesis provider returned empty audio")
	}

	return audio, nil
}
