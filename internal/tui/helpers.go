package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/leonardotrapani/voicepad/internal/config"
)

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

func contains(list []string, v string) bool {
	return slices.Contains(list, v)
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("use a duration like 5s or 1m")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

// orderedBackends lists the configured backends first, then the rest.
func orderedBackends(current []string) []string {
	out := make([]string, 0, len(SpeechBackends))
	for _, name := range current {
		if contains(SpeechBackends, name) && !contains(out, name) {
			out = append(out, name)
		}
	}
	for _, name := range SpeechBackends {
		if !contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// orderedSelection keeps the previous order for entries that stay selected
// and appends new ones in selection order.
func orderedSelection(previous, selected []string) []string {
	out := make([]string, 0, len(selected))
	for _, name := range previous {
		if contains(selected, name) {
			out = append(out, name)
		}
	}
	for _, name := range selected {
		if !contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func setAPIKey(cfg *config.Config, provider, key string) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]config.ProviderConfig)
	}
	p := cfg.Providers[provider]
	p.APIKey = strings.TrimSpace(key)
	cfg.Providers[provider] = p
}

func keyDescription(provider, key string) string {
	if key != "" {
		return "Currently: " + maskAPIKey(key)
	}
	return fmt.Sprintf("Empty uses %s from the environment", config.EnvVarForProvider(provider))
}

func formatSpeechLabel(cfg *config.Config) string {
	return fmt.Sprintf("Speech: %s", strings.Join(cfg.Speech.Backends, " -> "))
}

func formatKeysLabel(cfg *config.Config) string {
	var set []string
	for _, provider := range []string{"deepgram", "openai"} {
		if cfg.APIKey(provider) != "" {
			set = append(set, provider)
		}
	}
	if len(set) == 0 {
		return "API Keys: none"
	}
	return "API Keys: " + strings.Join(set, ", ")
}

func formatClipboardLabel(cfg *config.Config) string {
	return fmt.Sprintf("Clipboard: %s", strings.Join(cfg.Clipboard.Backends, " -> "))
}

func formatNotificationsLabel(cfg *config.Config) string {
	if !cfg.Notifications.Enabled {
		return "Notifications: disabled"
	}
	return fmt.Sprintf("Notifications: %s", cfg.Notifications.Type)
}

func formatMetricsLabel(cfg *config.Config) string {
	if cfg.Metrics.Listen == "" {
		return "Metrics: disabled"
	}
	return "Metrics: " + cfg.Metrics.Listen
}

func summaryLines(cfg *config.Config) string {
	locale := cfg.Speech.Locale
	if locale == "" {
		locale = "from LANG"
	}
	lines := []string{
		fmt.Sprintf("  %s %s", StyleLabel.Render("Backends:"), strings.Join(cfg.Speech.Backends, " -> ")),
		fmt.Sprintf("  %s %s", StyleLabel.Render("Locale:"), locale),
		fmt.Sprintf("  %s silence %s, max %s", StyleLabel.Render("Sessions:"), cfg.Speech.SilenceTimeout, cfg.Speech.MaxSession),
	}
	for _, provider := range []string{"deepgram", "openai"} {
		if key := cfg.Providers[provider].APIKey; key != "" {
			lines = append(lines, fmt.Sprintf("  %s %s", StyleLabel.Render(provider+" key:"), maskAPIKey(key)))
		}
	}
	lines = append(lines,
		fmt.Sprintf("  %s %s", StyleLabel.Render("Clipboard:"), strings.Join(cfg.Clipboard.Backends, " -> ")),
		"  "+StyleLabel.Render("Notifications:")+" "+strings.TrimPrefix(formatNotificationsLabel(cfg), "Notifications: "),
		"  "+StyleLabel.Render("Metrics:")+" "+strings.TrimPrefix(formatMetricsLabel(cfg), "Metrics: "),
	)
	return strings.Join(lines, "\n")
}
