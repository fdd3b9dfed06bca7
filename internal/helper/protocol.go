// Package helper runs tunnel operations that need elevated privileges in a
// separate root process. The unprivileged client talks to it over a unix
// socket, one JSON request and response per connection, authenticated by a
// shared token.
package helper

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	CmdGeneratePublicKey = "generate_public_key"
	CmdGenerateKeyPair   = "generate_key_pair"
	CmdAddPeer           = "add_peer"
	CmdRemovePeer        = "remove_peer"
	CmdStartTunnel       = "start_wireguard_tunnel"
	CmdStopTunnel        = "stop_wireguard_tunnel"
	CmdRemoveService     = "remove_windows_service"
	CmdIsUp              = "is_wireguard_up"

	// StateRunning and StateStopped are the is_wireguard_up outputs.
	StateRunning = "RUNNING"
	StateStopped = "STOPPED"

	defaultTimeoutMS = 30_000
	socketDirPerms   = 0o755
	socketPerms      = 0o666
	pidFilePerms     = 0o600
	tokenPerms       = 0o600
)

// ErrUnauthorized is returned when the helper rejects the client's token.
var ErrUnauthorized = errors.New("privileged helper rejected token")

// Request is a single helper command.
type Request struct {
	Token     string            `json:"token"`
	Command   string            `json:"command"`
	Args      map[string]string `json:"args,omitempty"`
	TimeoutMS int               `json:"timeout_ms,omitempty"`
}

// Response carries a command's output or its error message.
type Response struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

const unauthorized = "unauthorized"

// GenerateToken returns a random hex token for authenticating helper requests.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate privileged helper secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ReadToken reads a token file written by LoadOrCreateToken.
func ReadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read privileged helper token: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("privileged helper token file %s is empty", path)
	}
	return tok, nil
}

// LoadOrCreateToken returns the token stored at path, creating the file with a
// fresh token when it does not exist.
func LoadOrCreateToken(path string) (string, error) {
	tok, err := ReadToken(path)
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	tok, err = GenerateToken()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create privileged helper token dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(tok+"\n"), tokenPerms); err != nil {
		return "", fmt.Errorf("write privileged helper token: %w", err)
	}
	return tok, nil
}
