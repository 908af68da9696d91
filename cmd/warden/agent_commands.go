package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/pkg/client"
)

func newAgentCommand(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage this daemon's enrolment with a server",
	}
	cmd.AddCommand(
		newAgentConnectCommand(gf),
		newAgentDisconnectCommand(gf),
		newAgentStatusCommand(gf),
		newAgentListCommand(gf),
	)
	return cmd
}

func newAgentConnectCommand(gf *globalFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "connect <url>",
		Short: "Enrol this daemon as an agent of the server at <url>",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(gf)
			if err != nil {
				return err
			}
			if err := cfg.EnsureStateDir(); err != nil {
				return err
			}
			serverURL := args[0]
			if name == "" {
				if host, err := os.Hostname(); err == nil {
					name = host
				} else {
					name = "agent"
				}
			}

			// the server must answer before we commit the enrolment
			remote := client.New(client.Config{BaseURL: serverURL})
			if !remote.Health(cmdContext(cmd)) {
				return fmt.Errorf("server at %s is not responding", serverURL)
			}

			id := make([]byte, 8)
			if _, err := rand.Read(id); err != nil {
				return err
			}
			agent := config.Agent{
				ServerURL: serverURL,
				ID:        hex.EncodeToString(id),
				Name:      name,
			}
			if err := config.SaveAgent(cfg.AgentPath(), agent); err != nil {
				return err
			}

			// register this daemon in the server's peer registry, best-effort
			self := fmt.Sprintf("http://%s:%d", cfg.Daemon.Web.Address, cfg.Daemon.Web.Port)
			if err := remote.AddServer(cmdContext(cmd), name, self, cfg.Daemon.Web.Secure.Token); err != nil {
				fmt.Printf("warning: server did not accept registration: %v\n", err)
			}

			fmt.Printf("connected as agent %q (id %s) to %s\n", agent.Name, agent.ID, serverURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "agent name (default: hostname)")
	return cmd
}

func newAgentDisconnectCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Drop this daemon's enrolment",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(gf)
			if err != nil {
				return err
			}
			agent, ok, err := config.LoadAgent(cfg.AgentPath())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("not enrolled")
				return nil
			}
			remote := client.New(client.Config{BaseURL: agent.ServerURL})
			if err := remote.RemoveServer(cmdContext(cmd), agent.Name); err != nil {
				fmt.Printf("warning: server did not drop registration: %v\n", err)
			}
			if err := config.RemoveAgent(cfg.AgentPath()); err != nil {
				return err
			}
			fmt.Printf("disconnected from %s\n", agent.ServerURL)
			return nil
		},
	}
}

func newAgentStatusCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current enrolment",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(gf)
			if err != nil {
				return err
			}
			agent, ok, err := config.LoadAgent(cfg.AgentPath())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("not enrolled")
				return nil
			}
			remote := client.New(client.Config{BaseURL: agent.ServerURL})
			reachable := remote.Health(cmdContext(cmd))
			fmt.Printf("agent:   %s (id %s)\n", agent.Name, agent.ID)
			fmt.Printf("server:  %s\n", agent.ServerURL)
			fmt.Printf("online:  %v\n", reachable)
			return nil
		},
	}
}

func newAgentListCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List peers registered with the local daemon",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			names, err := c.Servers(cmdContext(cmd))
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("no peers registered")
				return nil
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}
