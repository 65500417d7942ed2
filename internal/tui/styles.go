package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorListening)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// in-flight hypothesis, not yet part of the scratchpad
	StyleInFlight = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Italic(true)

	StyleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(0, 1)

	StyleListeningBox = StyleBox.
				BorderForeground(ColorListening)
)

const logoASCII = `
__   _____ (_) ___ ___ _ __   __ _  __| |
\ \ / / _ \| |/ __/ _ \ '_ \ / _' |/ _' |
 \ V / (_) | | (_|  __/ |_) | (_| | (_| |
  \_/ \___/|_|\___\___| .__/ \__,_|\__,_|
                      |_|                `

func Logo() string {
	return StyleHeader.Render(strings.Trim(logoASCII, "\n"))
}
