package tts

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/sirupsen/logrus"
)

// longFormVoices are eligible for the speech-markup synthesis mode.
var longFormVoices = map[string]bool{
	"Matthew": true,
	"Joanna":  true,
	"Lupe":    true,
	"Ruth":    true,
	"Stephen": true,
	"Kevin":   true,
}

// generativeVoices require the generative engine.
var generativeVoices = map[string]bool{
	"Stephen":  true,
	"Brian":    true,
	"Amy":      true,
	"Arthur":   true,
	"Emma":     true,
	"Danielle": true,
	"Kajal":    true,
}

// voiceSelection is the resolved synthesis plan for a requested voice.
type voiceSelection struct {
	voice    string
	engine   types.Engine
	longForm bool
}

// resolveVoice picks the engine for a voice. Generative voices use the
// generative engine. Everything else runs on neural, and a voice that is in
// neither set is silently replaced by the default voice rather than failing.
func resolveVoice(voiceID string) voiceSelection {
	if voiceID == "" {
		voiceID = DefaultVoice
	}

	if generativeVoices[voiceID] {
		return voiceSelection{
			voice:    voiceID,
			engine:   types.EngineGenerative,
			longForm: longFormVoices[voiceID],
		}
	}

	if !longFormVoices[voiceID] {
		voiceID = DefaultVoice
	}

	return voiceSelection{
		voice:    voiceID,
		engine:   types.EngineNeural,
		longForm: longFormVoices[voiceID],
	}
}

// PollyProvider synthesizes speech through Amazon Polly.
type PollyProvider struct {
	client *polly.Client
	log    *logrus.Logger
}

// NewPollyProvider creates a Polly-backed synthesizer. Credentials come from
// the default AWS chain (environment variables in deployment).
func NewPollyProvider(ctx context.Context, region string, log *logrus.Logger) (*PollyProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return &PollyProvider{
		client: polly.NewFromConfig(awsCfg),
		log:    log,
	}, nil
}

// Name returns the provider name.
func (p *PollyProvider) Name() string {
	return "polly"
}

// Synthesize converts text to MP3 bytes. Long-form voices get the text
// wrapped in speech-markup root tags and the markup-aware synthesis mode.
func (p *PollyProvider) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	sel := resolveVoice(voiceID)

	input := &polly.SynthesizeSpeechInput{
		Engine:       sel.engine,
		OutputFormat: types.OutputFormatMp3,
		VoiceId:      types.VoiceId(sel.voice),
		Text:         aws.String(text),
		TextType:     types.TextTypeText,
	}
	if sel.longForm {
		input.Text = aws.String("<speak>" + text + "</speak>")
		input.TextType = types.TextTypeSsml
	}

	p.log.WithFields(logrus.Fields{
		"voice":     sel.voice,
		"engine":    string(sel.engine),
		"long_form": sel.longForm,
		"length":    len(text),
	}).Info("synthesizing speech")

	startTime := time.Now()
	out, err := p.client.SynthesizeSpeech(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	if out.AudioStream == nil {
		return nil, fmt.Errorf("synthesis provider returned no audio stream")
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio stream: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesis provider returned empty audio")
	}

	p.log.WithFields(logrus.Fields{
		"voice":    sel.voice,
		"size":     len(audio),
		"duration": time.Since(startTime).String(),
	}).Info("synthesis complete")

	return audio, nil
}
