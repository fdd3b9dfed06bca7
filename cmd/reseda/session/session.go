// Package session implements the foreground connect and resume commands.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bennjii/reseda"
	"github.com/bennjii/reseda/cmd/reseda/cmdutil"
	"github.com/bennjii/reseda/cmd/reseda/ui"
	"github.com/bennjii/reseda/internal/connection"
)

const disconnectTimeout = 15 * time.Second

var errNothingToResume = errors.New("nothing to resume: no configured peer or tunnel is down")

// ConnectCmd returns `reseda connect <location>`.
func ConnectCmd(g *cmdutil.Globals, out *ui.TraceOutput) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "connect <location>",
		Short: "Connect to a relay location and stay connected until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			id, err := identity(cfg.Identity, userID)
			if err != nil {
				return err
			}
			loc := cfg.Location(strings.TrimSpace(args[0]))

			rt, err := cmdutil.NewRuntime(cfg, out.Tracer("reseda"))
			if err != nil {
				return err
			}
			defer rt.Close()

			return run(cmd.Context(), rt, id, func(ctx context.Context, ctrl *connection.Controller) error {
				ctrl.Connect(ctx, loc, id, cfg.TunnelConfig)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id to connect as (overrides identity.id)")
	return cmd
}

// ResumeCmd returns `reseda resume`.
func ResumeCmd(g *cmdutil.Globals, out *ui.TraceOutput) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Reattach to a tunnel that is already up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			id, err := identity(cfg.Identity, userID)
			if err != nil {
				return err
			}

			rt, err := cmdutil.NewRuntime(cfg, out.Tracer("reseda"))
			if err != nil {
				return err
			}
			defer rt.Close()

			return run(cmd.Context(), rt, id, func(ctx context.Context, ctrl *connection.Controller) error {
				if ctrl.Resume(ctx, cfg.Locations, id, cfg.TunnelConfig) {
					return nil
				}
				if ctrl.Current().State == reseda.Error {
					return nil
				}
				return errNothingToResume
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id to resume as (overrides identity.id)")
	return cmd
}

func identity(configured reseda.Identity, override string) (reseda.Identity, error) {
	if override = strings.TrimSpace(override); override != "" {
		configured.ID = override
	}
	if configured.ID == "" {
		return reseda.Identity{}, fmt.Errorf("no identity: set identity.id in the config or pass --user")
	}
	return configured, nil
}

// run starts a session with start, renders every status until the session
// fails or the process is interrupted, then disconnects.
func run(ctx context.Context, rt *cmdutil.Runtime, id reseda.Identity, start func(context.Context, *connection.Controller) error) error {
	ctrl, err := rt.Controller()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	sessCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	subCtx, cancelSub := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSub()
	statuses := ctrl.Subscribe(subCtx)

	eg, egCtx := errgroup.WithContext(sessCtx)
	eg.Go(func() error { return rt.RunBackground(egCtx) })
	eg.Go(func() error {
		for {
			select {
			case <-egCtx.Done():
				return nil
			case st, ok := <-statuses:
				if !ok {
					return nil
				}
				show(egCtx, rt, st)
				if st.State == reseda.Error {
					return fmt.Errorf("connection failed: %s", st.Message)
				}
			}
		}
	})

	// The attempt outlives the signal context; Disconnect supersedes it.
	if err := start(context.WithoutCancel(ctx), ctrl); err != nil {
		stop()
		_ = eg.Wait()
		return err
	}
	runErr := eg.Wait()

	cur := ctrl.Current()
	if cur.State == reseda.Disconnected || cur.State == reseda.Error {
		return runErr
	}
	fmt.Fprintln(os.Stderr, ui.InfoMsg("disconnecting"))
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
	defer cancel()
	final := ctrl.Disconnect(dctx, cur, id, rt.Config.TunnelConfig)
	show(dctx, rt, final)
	if final.State == reseda.Error {
		return errors.Join(runErr, fmt.Errorf("disconnect: %s", final.Message))
	}
	return runErr
}

func show(ctx context.Context, rt *cmdutil.Runtime, st reseda.ConnectionStatus) {
	rt.Observe(ctx, st)
	fmt.Fprintln(os.Stderr, ui.StatusLine(st))
	if st.State == reseda.Connected {
		fmt.Fprint(os.Stderr, ui.StatusDetails(st))
	}
}
