// Package speech synthesizes narration audio with Google Cloud Text-to-Speech.
package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"

	"github.com/ternarybob/marketcast/internal/common"
)

// ErrEmptyText is returned for a blank chunk; the API rejects those
var ErrEmptyText = errors.New("nothing to synthesize")

// GoogleSynthesizer implements interfaces.Synthesizer over the TTS REST API
type GoogleSynthesizer struct {
	service *texttospeech.Service
	config  common.SpeechConfig
	logger  arbor.ILogger
}

// NewGoogleSynthesizer creates a synthesizer. Pass CredentialOptions (or
// test endpoint options) in opts.
func NewGoogleSynthesizer(ctx context.Context, config common.SpeechConfig, logger arbor.ILogger, opts ...option.ClientOption) (*GoogleSynthesizer, error) {
	service, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}
	return &GoogleSynthesizer{
		service: service,
		config:  config,
		logger:  logger,
	}, nil
}

// CredentialOptions resolves credentials in priority order: inline JSON
// (GCP_CREDENTIALS_JSON), speech.credentials_file, then application default
// credentials.
func CredentialOptions(ctx context.Context, config common.SpeechConfig) ([]option.ClientOption, error) {
	var (
		creds *google.Credentials
		err   error
	)

	switch {
	case config.CredentialsJSON != "":
		creds, err = google.CredentialsFromJSON(ctx, []byte(config.CredentialsJSON), texttospeech.CloudPlatformScope)
	case config.CredentialsFile != "":
		var data []byte
		data, err = os.ReadFile(config.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, texttospeech.CloudPlatformScope)
	default:
		creds, err = google.FindDefaultCredentials(ctx, texttospeech.CloudPlatformScope)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Google credentials: %w", err)
	}

	return []option.ClientOption{option.WithCredentials(creds)}, nil
}

// Synthesize converts text to audio in the configured encoding
func (s *GoogleSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	request := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: s.config.LanguageCode,
			Name:         s.config.VoiceName,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding: s.config.AudioEncoding,
			SpeakingRate:  s.config.SpeakingRate,
		},
	}

	start := time.Now()
	resp, err := s.service.Text.Synthesize(request).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode audio content: %w", err)
	}

	s.logger.Debug().
		Int("text_bytes", len(text)).
		Int("audio_bytes", len(audio)).
		Dur("elapsed", time.Since(start)).
		Msg("Synthesized chunk")
	return audio, nil
}
