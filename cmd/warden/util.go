package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/pkg/client"
)

const clientTimeout = 15 * time.Second

// loadConfig resolves the state directory and parses config.toml.
func loadConfig(gf *globalFlags) (*config.Config, error) {
	return config.Load(gf.Home)
}

// buildClient constructs the daemon client from the local configuration; the
// --server flag routes process operations through the peer client.
func buildClient(gf *globalFlags) (*client.Client, *config.Config, error) {
	cfg, err := loadConfig(gf)
	if err != nil {
		return nil, nil, err
	}
	c := client.New(client.Config{
		BaseURL: fmt.Sprintf("http://%s:%d", cfg.Daemon.Web.Address, cfg.Daemon.Web.Port),
		Token:   cfg.Daemon.Web.Secure.Token,
		Server:  gf.Server,
		Timeout: clientTimeout,
	})
	return c, cfg, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// addServerFlag registers --server on process-affecting verbs.
func addServerFlag(cmd *cobra.Command, gf *globalFlags) {
	cmd.Flags().StringVar(&gf.Server, "server", "", "route the command to the named peer server")
}

// exactArgs wraps cobra's validator so argument-count mistakes exit 2.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError{err: fmt.Errorf("%s requires exactly %d argument(s)", cmd.Name(), n)}
		}
		return nil
	}
}
