package tunnel

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bennjii/reseda/cmd/reseda/cmdutil"
	"github.com/bennjii/reseda/cmd/reseda/ui"
	"github.com/bennjii/reseda/internal/connection"
	"github.com/bennjii/reseda/internal/wgconf"
)

// Defaults for a freshly generated tunnel config.
var (
	defaultAddress = []string{"192.168.69.2/24"}
	defaultDNS     = []string{"1.1.1.1"}
)

// KeygenCmd returns `reseda keygen`.
func KeygenCmd(g *cmdutil.Globals) *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a client key pair",
		Long:  "Generate a client key pair. With --write the private key is stored in the tunnel config, creating it if needed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			_, keys, err := cmdutil.Driver(cfg)
			if err != nil {
				return err
			}
			priv, pub, err := keys.GenerateKeyPair(cmd.Context())
			if err != nil {
				return err
			}

			if !write {
				fmt.Fprint(cmd.OutOrStdout(), ui.KeyValues("", ui.KV("private key", priv), ui.KV("public key", pub)))
				return nil
			}
			if err := writeKey(wgconf.FileStore{}, cfg.TunnelConfig, priv); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessMsg("wrote private key to %s", cfg.TunnelConfig))
			fmt.Fprint(cmd.OutOrStdout(), ui.KeyValues("", ui.KV("public key", pub)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "Store the private key in the tunnel config")
	return cmd
}

// writeKey sets the interface private key in the config at path. A missing
// config is created with the default address and DNS and no peers.
func writeKey(store connection.ConfigStore, path, priv string) error {
	tc, err := store.Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		tc = &wgconf.Config{Interface: wgconf.Interface{
			Address: append([]string(nil), defaultAddress...),
			DNS:     append([]string(nil), defaultDNS...),
		}}
	case err != nil:
		return err
	}
	tc.Interface.PrivateKey = priv
	return store.Save(path, tc)
}
