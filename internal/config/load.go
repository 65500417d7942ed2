package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

var ErrConfigNotFound = errors.New("config not found")

// GetConfigDir returns $XDG_CONFIG_HOME/voicepad, creating it if needed.
func GetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	dir := filepath.Join(configDir, "voicepad")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the user's config, writing the defaults first when none exists.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Printf("Config: no config file found at %s, creating with defaults", configPath)
		if err := SaveDefaultConfig(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}
	return LoadFile(configPath)
}

// LoadFile parses path over the defaults. A .env file next to it is loaded
// into the environment first; variables already set win.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
	}

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Config: failed to load %s: %v", envPath, err)
		}
	}

	log.Printf("Config: loading configuration from %s", path)
	config := DefaultConfig()
	config.Providers = nil
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	config.applyProviderDefaults()

	return config, nil
}

// applyProviderDefaults fills provider fields the file left empty.
func (c *Config) applyProviderDefaults() {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for name, def := range DefaultConfig().Providers {
		p := c.Providers[name]
		if p.Model == "" {
			p.Model = def.Model
		}
		c.Providers[name] = p
	}
}

// Save writes c to path as TOML.
func Save(c *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := toml.NewEncoder(file).Encode(c); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Rename(tmp, path)
}

func SaveDefaultConfig(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(defaultConfigContent); err != nil {
		return fmt.Errorf("failed to write config content: %w", err)
	}
	return nil
}

const defaultConfigContent = `# voicepad configuration
# Notification and clipboard changes apply immediately; the speech backend
# is chosen when the daemon starts.

[speech]
  backends = ["deepgram", "openai", "exec"]  # tried in order, first usable wins
  locale = ""                  # BCP 47 tag, empty = from LANG
  interim_results = true       # show partial hypotheses while listening
  silence_timeout = "5s"       # no speech for this long ends the session
  max_session = "60s"          # hard cap on a single session
  voice_threshold = 0.02       # RMS level (0..1) counted as speech
  exec_command = ""            # external recognizer for the "exec" backend
  script = []                  # phrases replayed by the "scripted" backend
  script_interval = "200ms"

[recording]
  sample_rate = 16000
  channels = 1
  format = "s16"
  buffer_size = 8192
  device = ""                  # PipeWire target, empty = default microphone
  channel_buffer_size = 30

[clipboard]
  backends = ["wl-copy", "system"]
  timeout = "3s"

[notifications]
  enabled = true
  type = "desktop"             # "desktop", "beeep", "log", "none"

[metrics]
  listen = ""                  # e.g. "127.0.0.1:9464", empty disables

# API keys may also come from DEEPGRAM_API_KEY / OPENAI_API_KEY or a .env
# file in this directory.
[providers.deepgram]
  api_key = ""
  model = "nova-3"

[providers.openai]
  api_key = ""
  model = "whisper-1"
`
