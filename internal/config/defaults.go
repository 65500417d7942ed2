package config

import "time"

func DefaultConfig() *Config {
	return &Config{
		Speech: SpeechConfig{
			Backends:       []string{"deepgram", "openai", "exec"},
			InterimResults: true,
			SilenceTimeout: 5 * time.Second,
			MaxSession:     60 * time.Second,
			VoiceThreshold: 0.02,
			ScriptInterval: 200 * time.Millisecond,
		},
		Recording: RecordingConfig{
			SampleRate:        16000,
			Channels:          1,
			Format:            "s16",
			BufferSize:        8192,
			ChannelBufferSize: 30,
		},
		Clipboard: ClipboardConfig{
			Backends: []string{"wl-copy", "system"},
			Timeout:  3 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
		Providers: map[string]ProviderConfig{
			"deepgram": {Model: "nova-3"},
			"openai":   {Model: "whisper-1"},
		},
	}
}
