// Package tunnel implements the commands that operate the local tunnel
// directly, without a relay session.
package tunnel

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bennjii/reseda/cmd/reseda/cmdutil"
	"github.com/bennjii/reseda/cmd/reseda/ui"
	"github.com/bennjii/reseda/internal/wgconf"
)

// Cmd returns `reseda tunnel`.
func Cmd(g *cmdutil.Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tunnel",
		Short: "Operate the local WireGuard tunnel",
	}
	cmd.AddCommand(upCmd(g), downCmd(g), statusCmd(g), removeCmd(g))
	return cmd
}

func upCmd(g *cmdutil.Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Bring the tunnel up from the tunnel config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			driver, _, err := cmdutil.Driver(cfg)
			if err != nil {
				return err
			}
			if err := driver.Up(cmd.Context()); err != nil {
				return fmt.Errorf("bring tunnel up: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessMsg("tunnel %s up", cfg.Interface))
			return nil
		},
	}
}

func downCmd(g *cmdutil.Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Bring the tunnel down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			driver, _, err := cmdutil.Driver(cfg)
			if err != nil {
				return err
			}
			if err := driver.Down(cmd.Context()); err != nil {
				return fmt.Errorf("bring tunnel down: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessMsg("tunnel %s down", cfg.Interface))
			return nil
		},
	}
}

func removeCmd(g *cmdutil.Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Force-remove the tunnel interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			driver, _, err := cmdutil.Driver(cfg)
			if err != nil {
				return err
			}
			if err := driver.ForceRemove(cmd.Context()); err != nil {
				return fmt.Errorf("remove tunnel: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessMsg("tunnel %s removed", cfg.Interface))
			return nil
		},
	}
}

func statusCmd(g *cmdutil.Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the tunnel is up and its configured peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			driver, keys, err := cmdutil.Driver(cfg)
			if err != nil {
				return err
			}
			up, err := driver.IsUp(cmd.Context())
			if err != nil {
				return fmt.Errorf("check tunnel state: %w", err)
			}

			pairs := []ui.Pair{
				ui.KV("interface", cfg.Interface),
				ui.KV("up", ui.Bool(up)),
				ui.KV("config", cfg.TunnelConfig),
			}
			tc, err := wgconf.FileStore{}.Load(cfg.TunnelConfig)
			switch {
			case errors.Is(err, os.ErrNotExist):
				pairs = append(pairs, ui.KV("peers", ui.Muted("no tunnel config")))
			case err != nil:
				return err
			default:
				if tc.Interface.PrivateKey != "" {
					if pub, err := keys.PublicKey(cmd.Context(), tc.Interface.PrivateKey); err == nil {
						pairs = append(pairs, ui.KV("public key", strings.TrimSpace(pub)))
					}
				}
				if len(tc.Interface.Address) > 0 {
					pairs = append(pairs, ui.KV("address", strings.Join(tc.Interface.Address, ", ")))
				}
				pairs = append(pairs, ui.KV("peers", fmt.Sprint(len(tc.Peers))))
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.KeyValues("", pairs...))

			if tc != nil && len(tc.Peers) > 0 {
				rows := make([][]string, 0, len(tc.Peers))
				for _, p := range tc.Peers {
					rows = append(rows, []string{p.PublicKey, p.Endpoint, strings.Join(p.AllowedIPs, ", ")})
				}
				fmt.Fprintln(cmd.OutOrStdout(), ui.Table([]string{"PUBLIC KEY", "ENDPOINT", "ALLOWED IPS"}, rows))
			}
			return nil
		},
	}
}
