package config

import (
	"os"
	"strings"

	"github.com/leonardotrapani/voicepad/internal/clipboard"
	"github.com/leonardotrapani/voicepad/internal/recording"
	"github.com/leonardotrapani/voicepad/internal/speech"
)

func (c *Config) ToRecordingConfig() recording.Config {
	return recording.Config{
		SampleRate:        c.Recording.SampleRate,
		Channels:          c.Recording.Channels,
		Format:            c.Recording.Format,
		BufferSize:        c.Recording.BufferSize,
		Device:            c.Recording.Device,
		ChannelBufferSize: c.Recording.ChannelBufferSize,
	}
}

func (c *Config) ToClipboardConfig() clipboard.Config {
	return clipboard.Config{
		Backends: append([]string(nil), c.Clipboard.Backends...),
		Timeout:  c.Clipboard.Timeout,
	}
}

// ToSpeechConfig returns the handle settings: single utterance, one
// alternative, the configured or platform locale.
func (c *Config) ToSpeechConfig() speech.Config {
	cfg := speech.DefaultConfig()
	cfg.InterimResults = c.Speech.InterimResults
	if c.Speech.Locale != "" {
		cfg.Locale = c.Speech.Locale
	}
	return cfg
}

func (c *Config) ToMicrophone() speech.Microphone {
	return speech.Microphone{
		Config:         c.ToRecordingConfig(),
		VoiceThreshold: c.Speech.VoiceThreshold,
		SilenceTimeout: c.Speech.SilenceTimeout,
		MaxSession:     c.Speech.MaxSession,
	}
}

// Capabilities builds every known backend from the config. speech.Detect
// picks among them in Speech.Backends order.
func (c *Config) Capabilities() map[string]speech.Capability {
	return c.CapabilitiesFor(c.ToMicrophone())
}

// CapabilitiesFor is Capabilities with the audio input replaced by mic.
func (c *Config) CapabilitiesFor(mic speech.Microphone) map[string]speech.Capability {
	dg := c.Providers["deepgram"]
	oa := c.Providers["openai"]

	return map[string]speech.Capability{
		"deepgram": &speech.Deepgram{
			APIKey:   c.APIKey("deepgram"),
			URL:      dg.URL,
			Model:    dg.Model,
			Keywords: dg.Keywords,
			Mic:      mic,
		},
		"openai": &speech.OpenAI{
			APIKey:  c.APIKey("openai"),
			BaseURL: oa.URL,
			Model:   oa.Model,
			Mic:     mic,
		},
		"exec": &speech.Exec{
			Command: c.Speech.ExecCommand,
			Mic:     mic,
		},
		"scripted": &speech.Scripted{
			Phrases:  c.Speech.Script,
			Interval: c.Speech.ScriptInterval,
		},
	}
}

// APIKey returns the key for a provider: config first, then
// <PROVIDER>_API_KEY from the environment.
func (c *Config) APIKey(provider string) string {
	if p, ok := c.Providers[provider]; ok && p.APIKey != "" {
		return p.APIKey
	}
	return os.Getenv(EnvVarForProvider(provider))
}

func EnvVarForProvider(provider string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
}
