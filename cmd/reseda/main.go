package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bennjii/reseda/cmd/reseda/cmdutil"
	"github.com/bennjii/reseda/cmd/reseda/helpercmd"
	historycmd "github.com/bennjii/reseda/cmd/reseda/history"
	"github.com/bennjii/reseda/cmd/reseda/session"
	tunnelcmd "github.com/bennjii/reseda/cmd/reseda/tunnel"
	"github.com/bennjii/reseda/cmd/reseda/ui"
	"github.com/bennjii/reseda/internal/logging"
)

var version = "dev"

func main() {
	if err := logging.Configure(logging.LevelWarn, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	g := &cmdutil.Globals{}
	out := ui.NewTraceOutput(debugRequested(os.Args[1:]))

	root := &cobra.Command{
		Use:           "reseda",
		Short:         "WireGuard relay client",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureColor()
			level, format := logging.LevelWarn, logging.FormatText
			if cfg, err := g.LoadConfig(); err == nil {
				if cfg.LogLevel != "" {
					level = cfg.LogLevel
				}
				if cfg.LogFormat != "" {
					format = cfg.LogFormat
				}
			}
			if g.Debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level, format)
		},
	}
	root.PersistentFlags().StringVar(&g.ConfigPath, "config", "", "Config file (default $XDG_CONFIG_HOME/reseda/config.yaml)")
	root.PersistentFlags().BoolVar(&g.Debug, "debug", false, "Enable debug logging and span output")

	root.AddCommand(session.ConnectCmd(g, out))
	root.AddCommand(session.ResumeCmd(g, out))
	root.AddCommand(tunnelcmd.Cmd(g))
	root.AddCommand(tunnelcmd.KeygenCmd(g))
	root.AddCommand(historycmd.Cmd(g))
	root.AddCommand(helpercmd.Cmd(g))

	err := root.Execute()
	out.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// debugRequested reports whether --debug appears before flag parsing, so the
// tracer exists by the time commands are built.
func debugRequested(args []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if a == "--debug" || a == "--debug=true" {
			return true
		}
	}
	return false
}
