package history

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/bennjii/reseda"
	sessions "github.com/bennjii/reseda/internal/history"
)

func TestRender(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	render(&buf, []sessions.Session{{
		ConnectionID: "c1",
		Location:     "fra1",
		State:        reseda.Disconnected,
		StartedAt:    start,
		CompletedAt:  start.Add(1500 * time.Millisecond),
		EndedAt:      start.Add(90 * time.Second),
	}})

	out := buf.String()
	for _, want := range []string{"fra1", "disconnected", "1.5s", "1m29s"} {
		if !strings.Contains(out, want) {
			t.Errorf("render() missing %q:\n%s", want, out)
		}
	}
}

func TestRender_Empty(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)
	var buf bytes.Buffer
	render(&buf, nil)
	if !strings.Contains(buf.String(), "no sessions recorded") {
		t.Fatalf("render(nil) = %q", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		0:                       "-",
		1234 * time.Millisecond: "1.23s",
		95 * time.Second:        "1m35s",
	}
	for in, want := range tests {
		if got := formatDuration(in); got != want {
			t.Errorf("formatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}
