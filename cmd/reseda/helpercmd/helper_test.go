package helpercmd

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bennjii/reseda/cmd/reseda/cmdutil"
	"github.com/bennjii/reseda/config"
)

func stubHelper(t *testing.T, euid int) *[]string {
	t.Helper()
	origRun, origEUID, origLoad := runHelper, helperGetEUID, loadToken
	t.Cleanup(func() {
		runHelper, helperGetEUID, loadToken = origRun, origEUID, origLoad
	})

	var calls []string
	helperGetEUID = func() int { return euid }
	runHelper = func(_ context.Context, _ *config.Config, socketPath, token string) error {
		calls = append(calls, socketPath+"|"+token)
		return nil
	}
	return &calls
}

func testGlobals(t *testing.T) *cmdutil.Globals {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.Default()
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	return &cmdutil.Globals{ConfigPath: path}
}

func TestHelperCmdRunsWithExplicitToken(t *testing.T) {
	calls := stubHelper(t, 0)

	cmd := Cmd(testGlobals(t))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--socket", "/tmp/reseda-test.sock", "--token", "  secret  "})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute helper command: %v", err)
	}
	if len(*calls) != 1 || (*calls)[0] != "/tmp/reseda-test.sock|secret" {
		t.Fatalf("helper calls = %v", *calls)
	}
}

func TestHelperCmdLoadsTokenFile(t *testing.T) {
	calls := stubHelper(t, 0)
	tokenPath := filepath.Join(t.TempDir(), "private", "helper.token")

	cmd := Cmd(testGlobals(t))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--socket", "/tmp/reseda-test.sock", "--token-file", tokenPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute helper command: %v", err)
	}
	if len(*calls) != 1 {
		t.Fatalf("helper calls = %v", *calls)
	}
	tok := strings.TrimPrefix((*calls)[0], "/tmp/reseda-test.sock|")
	if len(tok) != 64 {
		t.Fatalf("generated token = %q, want 64 hex chars", tok)
	}
}

func TestHelperCmdRequiresRoot(t *testing.T) {
	calls := stubHelper(t, 501)

	cmd := Cmd(testGlobals(t))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--token", "secret"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "helper requires root") {
		t.Fatalf("expected root error, got %v", err)
	}
	if len(*calls) != 0 {
		t.Fatal("helper should not run when not root")
	}
}

func TestResolveTokenWrapsLoadError(t *testing.T) {
	orig := loadToken
	t.Cleanup(func() { loadToken = orig })
	loadToken = func(string) (string, error) { return "", errors.New("denied") }

	if _, err := resolveToken("", "/nope"); err == nil || !strings.Contains(err.Error(), "load helper token") {
		t.Fatalf("resolveToken() error = %v", err)
	}
}
