package helper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bennjii/reseda/internal/connection"
)

// Server executes helper requests against a tunnel driver and key provider.
type Server struct {
	socketPath string
	token      string
	driver     connection.TunnelDriver
	keys       connection.KeyProvider
	log        *slog.Logger
}

// NewServer creates a helper server listening on socketPath.
func NewServer(socketPath, token string, driver connection.TunnelDriver, keys connection.KeyProvider) (*Server, error) {
	socketPath = strings.TrimSpace(socketPath)
	token = strings.TrimSpace(token)
	if socketPath == "" {
		return nil, fmt.Errorf("privileged helper socket path is required")
	}
	if token == "" {
		return nil, fmt.Errorf("privileged helper token is required")
	}
	if driver == nil {
		return nil, fmt.Errorf("tunnel driver is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("key provider is required")
	}
	return &Server{
		socketPath: socketPath,
		token:      token,
		driver:     driver,
		keys:       keys,
		log:        slog.With("component", "priv-helper", "socket", socketPath),
	}, nil
}

// Serve accepts requests until ctx is cancelled. The socket and pid file are
// removed on exit.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	pidPath := s.socketPath + ".pid"
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), pidFilePerms); err != nil {
		_ = ln.Close()
		_ = os.Remove(s.socketPath)
		return fmt.Errorf("write privileged helper pid file: %w", err)
	}

	s.log.Info("privileged helper started")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	defer func() {
		_ = ln.Close()
		_ = os.Remove(s.socketPath)
		_ = os.Remove(pidPath)
		s.log.Info("privileged helper stopped")
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept privileged helper request: %w", err)
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), socketDirPerms); err != nil {
		return nil, fmt.Errorf("create privileged helper socket dir: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale privileged helper socket: %w", err)
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen privileged helper socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, socketPerms); err != nil {
		_ = ln.Close()
		_ = os.Remove(s.socketPath)
		return nil, fmt.Errorf("set privileged helper socket permissions: %w", err)
	}
	return ln, nil
}

func (s *Server) serveConn(parent context.Context, conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		_ = json.NewEncoder(conn).Encode(Response{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}
	if req.Token != s.token {
		s.log.Warn("rejected request with bad token", "command", req.Command)
		_ = json.NewEncoder(conn).Encode(Response{Error: unauthorized})
		return
	}
	if req.TimeoutMS <= 0 {
		req.TimeoutMS = defaultTimeoutMS
	}

	ctx, cancel := context.WithTimeout(parent, time.Duration(req.TimeoutMS)*time.Millisecond)
	defer cancel()

	out, err := s.dispatch(ctx, strings.TrimSpace(req.Command), req.Args)
	resp := Response{Output: out}
	if err != nil {
		s.log.Warn("command failed", "command", req.Command, "err", err)
		resp.Error = err.Error()
	}
	_ = json.NewEncoder(conn).Encode(resp)
}

func (s *Server) dispatch(ctx context.Context, command string, args map[string]string) (string, error) {
	switch command {
	case CmdGeneratePublicKey:
		priv, err := requireArg(args, "private_key")
		if err != nil {
			return "", err
		}
		return s.keys.PublicKey(ctx, priv)
	case CmdGenerateKeyPair:
		priv, pub, err := s.keys.GenerateKeyPair(ctx)
		if err != nil {
			return "", err
		}
		return priv + "\n" + pub + "\n", nil
	case CmdAddPeer:
		pub, err := requireArg(args, "public_key")
		if err != nil {
			return "", err
		}
		return "", s.driver.AddPeer(ctx, pub, args["endpoint"])
	case CmdRemovePeer:
		pub, err := requireArg(args, "public_key")
		if err != nil {
			return "", err
		}
		return "", s.driver.RemovePeer(ctx, pub)
	case CmdStartTunnel:
		return "", s.driver.Up(ctx)
	case CmdStopTunnel:
		return "", s.driver.Down(ctx)
	case CmdRemoveService:
		return "", s.driver.ForceRemove(ctx)
	case CmdIsUp:
		up, err := s.driver.IsUp(ctx)
		if err != nil {
			return "", err
		}
		if up {
			return StateRunning, nil
		}
		return StateStopped, nil
	case "":
		return "", fmt.Errorf("command name is required")
	default:
		return "", fmt.Errorf("command %q is not allowed", command)
	}
}

func requireArg(args map[string]string, name string) (string, error) {
	v := strings.TrimSpace(args[name])
	if v == "" {
		return "", fmt.Errorf("argument %q is required", name)
	}
	return v, nil
}
