package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/leonardotrapani/voicepad/internal/config"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// SpeechBackends are the recognizers in their default preference order.
var SpeechBackends = []string{"deepgram", "openai", "exec", "scripted"}

var backendDisplayNames = map[string]string{
	"deepgram": "Deepgram (streaming, interim results)",
	"openai":   "OpenAI Whisper (records, then transcribes)",
	"exec":     "External command",
	"scripted": "Scripted phrases (testing)",
}

type ConfigSection string

const (
	SectionSpeech        ConfigSection = "speech"
	SectionKeys          ConfigSection = "keys"
	SectionClipboard     ConfigSection = "clipboard"
	SectionNotifications ConfigSection = "notifications"
	SectionMetrics       ConfigSection = "metrics"
	SectionSaveExit      ConfigSection = "save_exit"
	SectionDiscardExit   ConfigSection = "discard_exit"
)

// Run shows the configuration menu until the user saves or discards.
func Run(existing *config.Config) (*ConfigureResult, error) {
	cfg := config.DefaultConfig()
	if existing != nil {
		copied := *existing
		copied.Providers = make(map[string]config.ProviderConfig, len(existing.Providers))
		for name, p := range existing.Providers {
			copied.Providers[name] = p
		}
		cfg = &copied
	}

	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		section, err := selectSection(cfg)
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch section {
		case SectionSaveExit:
			if err := cfg.Validate(); err != nil {
				fmt.Println(StyleError.Render(err.Error()))
				if !confirm("Go back and fix it?", "Back", "Discard") {
					return &ConfigureResult{Cancelled: true}, nil
				}
				continue
			}
			confirmed, err := showSummary(cfg)
			if err != nil {
				return &ConfigureResult{Cancelled: true}, nil
			}
			if confirmed {
				return &ConfigureResult{Config: cfg}, nil
			}

		case SectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil

		case SectionSpeech:
			_ = editSpeech(cfg)
		case SectionKeys:
			_ = editKeys(cfg)
		case SectionClipboard:
			_ = editClipboard(cfg)
		case SectionNotifications:
			_ = editNotifications(cfg)
		case SectionMetrics:
			_ = editMetrics(cfg)
		}
	}
}

func selectSection(cfg *config.Config) (ConfigSection, error) {
	options := []huh.Option[ConfigSection]{
		huh.NewOption(formatSpeechLabel(cfg), SectionSpeech),
		huh.NewOption(formatKeysLabel(cfg), SectionKeys),
		huh.NewOption(formatClipboardLabel(cfg), SectionClipboard),
		huh.NewOption(formatNotificationsLabel(cfg), SectionNotifications),
		huh.NewOption(formatMetricsLabel(cfg), SectionMetrics),
		huh.NewOption("Save & Exit", SectionSaveExit),
		huh.NewOption("Discard & Exit", SectionDiscardExit),
	}

	var selected ConfigSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ConfigSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

func editSpeech(cfg *config.Config) error {
	backends := append([]string(nil), cfg.Speech.Backends...)
	locale := cfg.Speech.Locale
	interim := cfg.Speech.InterimResults
	silence := cfg.Speech.SilenceTimeout.String()
	maxSession := cfg.Speech.MaxSession.String()
	execCommand := cfg.Speech.ExecCommand

	var options []huh.Option[string]
	for _, name := range orderedBackends(cfg.Speech.Backends) {
		options = append(options, huh.NewOption(backendDisplayNames[name], name).Selected(contains(backends, name)))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Speech backends").
				Description("The first one that works on this machine is used").
				Options(options...).
				Value(&backends).
				Validate(func(v []string) error {
					if len(v) == 0 {
						return fmt.Errorf("select at least one backend")
					}
					return nil
				}),
			huh.NewInput().
				Title("Locale").
				Description("BCP 47 tag such as en-US; empty uses LANG").
				Value(&locale),
			huh.NewConfirm().
				Title("Show interim results?").
				Value(&interim),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Silence timeout").
				Description("A session ends after this long without speech").
				Value(&silence).
				Validate(validateDuration),
			huh.NewInput().
				Title("Maximum session length").
				Value(&maxSession).
				Validate(validateDuration),
			huh.NewInput().
				Title("External recognizer command").
				Description("Used by the exec backend; reads PCM on stdin, prints JSON lines").
				Value(&execCommand),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Speech.Backends = orderedSelection(cfg.Speech.Backends, backends)
	cfg.Speech.Locale = strings.TrimSpace(locale)
	cfg.Speech.InterimResults = interim
	cfg.Speech.SilenceTimeout, _ = time.ParseDuration(silence)
	cfg.Speech.MaxSession, _ = time.ParseDuration(maxSession)
	cfg.Speech.ExecCommand = strings.TrimSpace(execCommand)
	return nil
}

func editKeys(cfg *config.Config) error {
	deepgramKey := cfg.Providers["deepgram"].APIKey
	openaiKey := cfg.Providers["openai"].APIKey

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Deepgram API key").
				Description(keyDescription("deepgram", deepgramKey)).
				EchoMode(huh.EchoModePassword).
				Value(&deepgramKey),
			huh.NewInput().
				Title("OpenAI API key").
				Description(keyDescription("openai", openaiKey)).
				EchoMode(huh.EchoModePassword).
				Value(&openaiKey),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	setAPIKey(cfg, "deepgram", deepgramKey)
	setAPIKey(cfg, "openai", openaiKey)
	return nil
}

func editClipboard(cfg *config.Config) error {
	backends := append([]string(nil), cfg.Clipboard.Backends...)
	timeout := cfg.Clipboard.Timeout.String()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Clipboard backends").
				Options(
					huh.NewOption("wl-copy (Wayland)", "wl-copy").Selected(contains(backends, "wl-copy")),
					huh.NewOption("System clipboard (xclip/xsel)", "system").Selected(contains(backends, "system")),
				).
				Value(&backends),
			huh.NewInput().
				Title("Timeout").
				Value(&timeout).
				Validate(validateDuration),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Clipboard.Backends = orderedSelection(cfg.Clipboard.Backends, backends)
	cfg.Clipboard.Timeout, _ = time.ParseDuration(timeout)
	return nil
}

func editNotifications(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled
	notifType := cfg.Notifications.Type
	if notifType == "" {
		notifType = "desktop"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable notifications?").
				Description("Listening, committed text, errors and copies").
				Value(&enabled),
			huh.NewSelect[string]().
				Title("Notification Type").
				Options(
					huh.NewOption("Desktop notifications (notify-send)", "desktop"),
					huh.NewOption("Desktop notifications with sound (beeep)", "beeep"),
					huh.NewOption("Log to console only", "log"),
					huh.NewOption("None (silent)", "none"),
				).
				Value(&notifType),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Notifications.Enabled = enabled
	cfg.Notifications.Type = notifType
	return nil
}

func editMetrics(cfg *config.Config) error {
	listen := cfg.Metrics.Listen

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Metrics listen address").
				Description("Prometheus /metrics endpoint, e.g. 127.0.0.1:9464; empty disables").
				Value(&listen),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Metrics.Listen = strings.TrimSpace(listen)
	return nil
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))
	fmt.Println(summaryLines(cfg))
	fmt.Println()

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}

func confirm(title, yes, no string) bool {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().Title(title).Affirmative(yes).Negative(no).Value(&ok),
		),
	).WithTheme(getTheme())
	if err := form.Run(); err != nil {
		return false
	}
	return ok
}

func getTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Focused.Base = lipgloss.NewStyle().BorderForeground(ColorPrimary)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(ColorSecondary)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(ColorText)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Blurred.Description = lipgloss.NewStyle().Foreground(ColorSubtle)

	return t
}
