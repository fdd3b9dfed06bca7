package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	envNoInteraction = "NO_INTERACTION"
	envNoColor       = "NO_COLOR"
	envCI            = "CI"
	envTerm          = "TERM"
)

// ConfigureColor picks the lipgloss color profile: full color on an
// interactive terminal, plain text otherwise.
func ConfigureColor() {
	if IsInteractive() {
		lipgloss.SetColorProfile(termenv.ColorProfile())
		return
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}

// IsInteractive reports whether stderr is a terminal a person is watching.
func IsInteractive() bool {
	if envTruthy(envNoInteraction) || envTruthy(envCI) || os.Getenv(envNoColor) != "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(envTerm)), "dumb") {
		return false
	}
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func envTruthy(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
