package config

import (
	"fmt"
	"slices"
)

var (
	knownBackends     = []string{"deepgram", "openai", "exec", "scripted"}
	knownClipboards   = []string{"wl-copy", "system"}
	knownNotification = []string{"desktop", "beeep", "log", "none"}
)

func (c *Config) Validate() error {
	if len(c.Speech.Backends) == 0 {
		return fmt.Errorf("invalid speech.backends: empty")
	}
	for _, b := range c.Speech.Backends {
		if !slices.Contains(knownBackends, b) {
			return fmt.Errorf("invalid speech.backends: unknown backend %q", b)
		}
	}
	if c.Speech.SilenceTimeout <= 0 {
		return fmt.Errorf("invalid speech.silence_timeout: %v", c.Speech.SilenceTimeout)
	}
	if c.Speech.MaxSession <= 0 {
		return fmt.Errorf("invalid speech.max_session: %v", c.Speech.MaxSession)
	}
	if c.Speech.VoiceThreshold <= 0 || c.Speech.VoiceThreshold >= 1 {
		return fmt.Errorf("invalid speech.voice_threshold: %v (must be between 0 and 1)", c.Speech.VoiceThreshold)
	}

	if c.Recording.SampleRate <= 0 {
		return fmt.Errorf("invalid recording.sample_rate: %d", c.Recording.SampleRate)
	}
	if c.Recording.Channels != 1 {
		return fmt.Errorf("invalid recording.channels: %d (only mono is supported)", c.Recording.Channels)
	}
	if c.Recording.BufferSize <= 0 {
		return fmt.Errorf("invalid recording.buffer_size: %d", c.Recording.BufferSize)
	}
	if c.Recording.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid recording.channel_buffer_size: %d", c.Recording.ChannelBufferSize)
	}
	if c.Recording.Format != "s16" {
		return fmt.Errorf("invalid recording.format: %q (only s16 is supported)", c.Recording.Format)
	}

	if len(c.Clipboard.Backends) == 0 {
		return fmt.Errorf("invalid clipboard.backends: empty")
	}
	for _, b := range c.Clipboard.Backends {
		if !slices.Contains(knownClipboards, b) {
			return fmt.Errorf("invalid clipboard.backends: unknown backend %q", b)
		}
	}
	if c.Clipboard.Timeout <= 0 {
		return fmt.Errorf("invalid clipboard.timeout: %v", c.Clipboard.Timeout)
	}

	if !slices.Contains(knownNotification, c.Notifications.Type) {
		return fmt.Errorf("invalid notifications.type: %q", c.Notifications.Type)
	}
	return nil
}
