package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/bennjii/reseda"
	"github.com/bennjii/reseda/internal/wgconf"
)

func plain(t *testing.T) {
	t.Helper()
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestEnvTruthyValues(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  bool
	}{
		{name: "one", value: "1", want: true},
		{name: "true", value: "true", want: true},
		{name: "on", value: " ON ", want: true},
		{name: "zero", value: "0", want: false},
		{name: "empty", value: "", want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("RESEDA_TEST_TRUTHY", tc.value)
			if got := envTruthy("RESEDA_TEST_TRUTHY"); got != tc.want {
				t.Fatalf("envTruthy() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsInteractive_CI(t *testing.T) {
	t.Setenv(envCI, "true")
	if IsInteractive() {
		t.Fatal("IsInteractive() = true under CI")
	}
}

func TestStatusLine(t *testing.T) {
	plain(t)

	st := reseda.NewStatus(reseda.Connecting)
	st.Location = &reseda.Location{ID: "fra1", Country: "DE"}
	st.Message = "Adding Peer"
	if got := StatusLine(st); got != "● connecting fra1 (DE) Adding Peer" {
		t.Fatalf("StatusLine() = %q", got)
	}

	st = reseda.NewStatus(reseda.Error)
	st.Server = "1.2.3.4"
	st.Message = "timed out waiting for verification"
	if got := StatusLine(st); got != "✗ error 1.2.3.4 timed out waiting for verification" {
		t.Fatalf("StatusLine() = %q", got)
	}
}

func TestStatusDetails(t *testing.T) {
	plain(t)

	cfg := &wgconf.Config{
		Interface: wgconf.Interface{PublicKey: "CPK=", Address: []string{"10.0.0.2/32"}},
		Peers:     []wgconf.Peer{{PublicKey: "SPK=", Endpoint: "1.2.3.4:51820"}},
	}
	st := reseda.NewStatus(reseda.Connected).WithConfig(cfg)
	st.ConnectionID = "c1"

	out := StatusDetails(st)
	for _, want := range []string{"state:", "connected", "c1", "CPK=", "10.0.0.2/32", "SPK= @ 1.2.3.4:51820"} {
		if !strings.Contains(out, want) {
			t.Errorf("StatusDetails() missing %q:\n%s", want, out)
		}
	}
}

func TestTraceOutput_DisabledUsesGlobal(t *testing.T) {
	o := NewTraceOutput(false)
	defer o.Close()
	if o.Tracer("test") == nil {
		t.Fatal("Tracer() = nil")
	}

	on := NewTraceOutput(true)
	defer on.Close()
	_, span := on.Tracer("test").Start(t.Context(), "op")
	span.End()
}
