// Package helpercmd implements the hidden `reseda helper` command that runs
// the privileged tunnel helper.
package helpercmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bennjii/reseda/cmd/reseda/cmdutil"
	"github.com/bennjii/reseda/config"
	"github.com/bennjii/reseda/internal/helper"
	"github.com/bennjii/reseda/internal/wireguard"
)

var (
	helperGetEUID = os.Geteuid
	loadToken     = helper.LoadOrCreateToken
	runHelper     = func(ctx context.Context, cfg *config.Config, socketPath, token string) error {
		srv, err := helper.NewServer(socketPath, token,
			wireguard.New(cfg.Interface, wireguard.FileConfig(cfg.TunnelConfig)), wireguard.Keys{})
		if err != nil {
			return err
		}
		return srv.Serve(ctx)
	}
)

// Cmd returns `reseda helper`.
func Cmd(g *cmdutil.Globals) *cobra.Command {
	var (
		socketPath string
		token      string
		tokenFile  string
	)

	cmd := &cobra.Command{
		Use:    "helper",
		Short:  "Run the privileged tunnel helper",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if helperGetEUID() != 0 {
				return errors.New("helper requires root")
			}
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			if socketPath == "" {
				socketPath = cfg.Helper.Socket
			}
			if tokenFile == "" {
				tokenFile = cfg.Helper.TokenPath
			}
			tok, err := resolveToken(token, tokenFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			slog.Info("starting privileged helper", "socket", socketPath, "interface", cfg.Interface)
			return runHelper(ctx, cfg, socketPath, tok)
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "Helper unix socket path (default from config)")
	cmd.Flags().StringVar(&token, "token", "", "Shared secret for helper requests")
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "Token file, created if missing (default from config)")
	return cmd
}

func resolveToken(explicit, path string) (string, error) {
	if tok := strings.TrimSpace(explicit); tok != "" {
		return tok, nil
	}
	tok, err := loadToken(path)
	if err != nil {
		return "", fmt.Errorf("load helper token: %w", err)
	}
	return tok, nil
}
