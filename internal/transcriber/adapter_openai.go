package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // empty uses the public API
	Model      string
	Language   string
	SampleRate int
}

// OpenAIAdapter transcribes complete recordings with the Whisper API.
type OpenAIAdapter struct {
	client *openai.Client
	config OpenAIConfig
}

func NewOpenAIAdapter(config OpenAIConfig) *OpenAIAdapter {
	if config.Model == "" {
		config.Model = openai.Whisper1
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	clientCfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientCfg),
		config: config,
	}
}

func (a *OpenAIAdapter) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	path, err := tempWav(pcm, a.config.SampleRate, 1)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	req := openai.AudioRequest{
		Model:    a.config.Model,
		FilePath: path,
		Language: whisperLanguage(a.config.Language),
	}

	start := time.Now()
	resp, err := a.client.CreateTranscription(ctx, req)
	duration := time.Since(start)
	if err != nil {
		log.Printf("openai-adapter: API call failed after %v: %v", duration, err)
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai transcription: %w", statusError("openai", apiErr.HTTPStatusCode))
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", fmt.Errorf("openai transcription: %w", statusError("openai", reqErr.HTTPStatusCode))
		}
		return "", fmt.Errorf("openai transcription: %w", err)
	}

	log.Printf("openai-adapter: transcribed %d bytes in %v", len(pcm), duration)
	return resp.Text, nil
}

// whisperLanguage reduces a locale such as "it-IT" to the ISO-639-1 code Whisper expects.
func whisperLanguage(locale string) string {
	for i, r := range locale {
		if r == '-' || r == '_' {
			return locale[:i]
		}
	}
	return locale
}
