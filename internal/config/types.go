package config

import "time"

type Config struct {
	Speech        SpeechConfig              `toml:"speech"`
	Recording     RecordingConfig           `toml:"recording"`
	Clipboard     ClipboardConfig           `toml:"clipboard"`
	Notifications NotificationsConfig       `toml:"notifications"`
	Metrics       MetricsConfig             `toml:"metrics"`
	Providers     map[string]ProviderConfig `toml:"providers"`
}

// SpeechConfig selects and tunes the recognition backend. The backend is
// chosen once when the daemon starts.
type SpeechConfig struct {
	Backends       []string      `toml:"backends"` // tried in order
	Locale         string        `toml:"locale"`   // empty = from the environment
	InterimResults bool          `toml:"interim_results"`
	SilenceTimeout time.Duration `toml:"silence_timeout"`
	MaxSession     time.Duration `toml:"max_session"`
	VoiceThreshold float64       `toml:"voice_threshold"`
	ExecCommand    string        `toml:"exec_command"`
	Script         []string      `toml:"script"`
	ScriptInterval time.Duration `toml:"script_interval"`
}

// ProviderConfig holds credentials and model choice for a hosted backend.
type ProviderConfig struct {
	APIKey   string   `toml:"api_key"`
	Model    string   `toml:"model"`
	URL      string   `toml:"url"`
	Keywords []string `toml:"keywords"`
}

type RecordingConfig struct {
	SampleRate        int    `toml:"sample_rate"`
	Channels          int    `toml:"channels"`
	Format            string `toml:"format"`
	BufferSize        int    `toml:"buffer_size"`
	Device            string `toml:"device"`
	ChannelBufferSize int    `toml:"channel_buffer_size"`
}

type ClipboardConfig struct {
	Backends []string      `toml:"backends"`
	Timeout  time.Duration `toml:"timeout"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "beeep", "log", "none"
}

type MetricsConfig struct {
	Listen string `toml:"listen"` // empty disables the endpoint
}
