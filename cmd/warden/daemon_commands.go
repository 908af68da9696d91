package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/warden/internal/api"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/history/factory"
	"github.com/loykin/warden/internal/manager"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/server"
	"github.com/prometheus/client_golang/prometheus"
)

func newDaemonCommand(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Control the warden daemon",
	}
	cmd.AddCommand(
		newDaemonStartCommand(gf),
		newDaemonStopCommand(gf),
		newDaemonResetCommand(gf),
		newDaemonHealthCommand(gf),
		newDaemonSetupCommand(gf),
	)
	return cmd
}

func newDaemonStartCommand(gf *globalFlags) *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(gf)
			if err != nil {
				return err
			}
			if err := cfg.EnsureStateDir(); err != nil {
				return err
			}
			if !foreground {
				if err := daemonize(cfg.PIDPath(), cfg.Log.File); err != nil {
					return err
				}
			}
			return runDaemon(cfg)
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "do not detach; run in the calling terminal")
	return cmd
}

// runDaemon is the daemon main loop: logging, history sink, supervisor loop,
// HTTP surface, signal-driven shutdown.
func runDaemon(cfg *config.Config) error {
	logCloser, err := cfg.Log.Setup()
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	sink, err := factory.New(cfg.History)
	if err != nil {
		// a broken sink degrades to no history rather than blocking startup
		slog.Warn("history sink unavailable", "type", cfg.History.Type, "error", err)
		sink = nil
	}

	servers, err := config.LoadServers(cfg.ServersPath())
	if err != nil {
		return err
	}

	mgr := manager.New(cfg, sink)
	mgr.Start()

	if err := writePIDFile(cfg.PIDPath(), os.Getpid()); err != nil {
		mgr.Stop()
		return err
	}
	defer func() { _ = os.Remove(cfg.PIDPath()) }()

	var httpSrv *http.Server
	if cfg.Daemon.Web.API {
		addr := fmt.Sprintf("%s:%d", cfg.Daemon.Web.Address, cfg.Daemon.Web.Port)
		httpSrv = server.NewServer(addr, server.NewRouter(mgr, cfg, servers))
		slog.Info("control surface listening", "addr", addr, "role", cfg.Role)
	}

	slog.Info("daemon started", "pid", os.Getpid(), "state_dir", cfg.StateDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	slog.Info("daemon shutting down", "signal", s.String())

	if httpSrv != nil {
		_ = httpSrv.Close()
	}
	// persist the table so the next start can restore it
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := mgr.Submit(ctx, api.Request{Op: api.OpSave}); err != nil {
		slog.Warn("final save failed", "error", err)
	}
	mgr.Stop()
	return nil
}

func newDaemonStopCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(gf)
			if err != nil {
				return err
			}
			b, err := os.ReadFile(cfg.PIDPath())
			if err != nil {
				return fmt.Errorf("daemon does not appear to be running: %w", err)
			}
			pid, err := strconv.Atoi(string(b))
			if err != nil {
				return fmt.Errorf("malformed pid file: %w", err)
			}
			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal daemon %d: %w", pid, err)
			}
			fmt.Printf("stopped daemon (pid %d)\n", pid)
			return nil
		},
	}
}

func newDaemonResetCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the id counter (requires an empty table)",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			if err := c.Reset(cmdContext(cmd)); err != nil {
				return err
			}
			fmt.Println("id counter reset")
			return nil
		},
	}
}

func newDaemonHealthCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe daemon liveness",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			if !c.Health(cmdContext(cmd)) {
				return fmt.Errorf("daemon is not responding")
			}
			fmt.Println("daemon is healthy")
			return nil
		},
	}
}

func newDaemonSetupCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the state directory and a default config file",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default(gf.Home)
			if err := cfg.EnsureStateDir(); err != nil {
				return err
			}
			path := cfg.StateDir + "/config.toml"
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("config already exists at %s\n", path)
				return nil
			}
			if err := os.WriteFile(path, []byte(defaultConfigTOML), 0o600); err != nil {
				return err
			}
			fmt.Printf("state directory ready at %s\n", cfg.StateDir)
			return nil
		},
	}
}

const defaultConfigTOML = `role = "server"

[runner]
shell = "/bin/sh"
args = ["-c"]

[daemon]
restarts = 10
interval = "1s"
term_grace = "5s"

[daemon.web]
api = true
address = "127.0.0.1"
port = 9876

[daemon.web.secure]
enabled = false
token = ""

[history]
type = "sqlite"

[log]
level = "info"
format = "text"
`
