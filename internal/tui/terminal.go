package tui

import (
	"io"
	"os"

	"github.com/muesli/termenv"
)

// CopyOSC52 asks the terminal to place text on the clipboard (OSC 52).
func CopyOSC52(w io.Writer, text string) {
	termenv.NewOutput(w).Copy(text)
}

func clearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}
