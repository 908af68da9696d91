package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loykin/warden/internal/api"
	"github.com/loykin/warden/internal/process"
	"github.com/loykin/warden/pkg/client"
)

func newStartCommand(gf *globalFlags) *cobra.Command {
	sf := &startFlags{}
	cmd := &cobra.Command{
		Use:   "start <script|ref>",
		Short: "Start a new process from a script, or start an existing record by ref",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			ctx := cmdContext(cmd)
			arg := args[0]

			// an existing ref means start-the-record, not create
			if _, err := c.Info(ctx, arg); err == nil {
				if err := c.Action(ctx, arg, api.MethodStart); err != nil {
					return err
				}
				fmt.Printf("started %s\n", arg)
				return nil
			}

			env := map[string]string{}
			for _, kv := range sf.Env {
				if k, v, ok := strings.Cut(kv, "="); ok {
					env[k] = v
				}
			}
			ids, err := c.Create(ctx, client.CreateSpec{
				Script:    arg,
				Name:      sf.Name,
				Path:      sf.Path,
				Env:       env,
				Watch:     sf.Watch,
				MaxMemory: sf.MaxMemory,
				Workers:   sf.Workers,
				PortRange: sf.PortRange,
			})
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Printf("created process %d\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sf.Name, "name", "", "record name (unique)")
	cmd.Flags().StringVar(&sf.Watch, "watch", "", "path to watch for reload")
	cmd.Flags().StringVar(&sf.MaxMemory, "max-memory", "", "memory ceiling (e.g. 100M, 2G)")
	cmd.Flags().IntVarP(&sf.Workers, "workers", "w", 0, "spawn N worker records")
	cmd.Flags().StringVarP(&sf.PortRange, "port-range", "p", "", "PORT values for workers: a-b or p")
	cmd.Flags().StringVar(&sf.Path, "path", "", "working directory (default: current)")
	cmd.Flags().StringArrayVar(&sf.Env, "env", nil, "extra K=V environment entries")
	addServerFlag(cmd, gf)
	return cmd
}

func newActionCommand(gf *globalFlags, use, short, method string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <ref>",
		Short: short,
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			if err := c.Action(cmdContext(cmd), args[0], method); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", pastTense(method), args[0])
			return nil
		},
	}
	addServerFlag(cmd, gf)
	return cmd
}

func pastTense(method string) string {
	switch method {
	case api.MethodStop:
		return "stopped"
	case api.MethodDelete:
		return "removed"
	default:
		return method + "ed"
	}
}

func newStopCommand(gf *globalFlags) *cobra.Command {
	return newActionCommand(gf, "stop", "Stop a running process", api.MethodStop)
}

func newRestartCommand(gf *globalFlags) *cobra.Command {
	return newActionCommand(gf, "restart", "Restart a process", api.MethodRestart)
}

func newReloadCommand(gf *globalFlags) *cobra.Command {
	return newActionCommand(gf, "reload", "Reload a process (alias of restart)", api.MethodReload)
}

func newRemoveCommand(gf *globalFlags) *cobra.Command {
	return newActionCommand(gf, "remove", "Stop and delete a process record", api.MethodDelete)
}

func newInfoCommand(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <ref>",
		Short: "Show one process record in detail",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			d, err := c.Info(cmdContext(cmd), args[0])
			if err != nil {
				return err
			}
			printDetail(d)
			return nil
		},
	}
	addServerFlag(cmd, gf)
	return cmd
}

func printDetail(d *client.RecordDetail) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "id:\t%d\n", d.ID)
	fmt.Fprintf(w, "name:\t%s\n", d.Name)
	fmt.Fprintf(w, "status:\t%s\n", d.Status)
	fmt.Fprintf(w, "pid:\t%d\n", d.PID)
	fmt.Fprintf(w, "uptime:\t%s\n", d.Uptime)
	fmt.Fprintf(w, "script:\t%s\n", d.Script)
	fmt.Fprintf(w, "command:\t%s\n", d.Command)
	fmt.Fprintf(w, "path:\t%s\n", d.Path)
	fmt.Fprintf(w, "restarts:\t%d\n", d.Restarts)
	fmt.Fprintf(w, "crashes:\t%d/%d\n", d.CrashValue, d.CrashLimit)
	if d.Watch.Enabled {
		fmt.Fprintf(w, "watch:\t%s\n", d.Watch.Path)
	}
	if d.MaxMemory > 0 {
		fmt.Fprintf(w, "max memory:\t%s\n", process.FormatMemory(d.MaxMemory))
	}
	fmt.Fprintf(w, "cpu:\t%.1f%%\n", d.Stats.CPUPercent)
	fmt.Fprintf(w, "memory:\t%s\n", process.FormatMemory(d.Stats.RSSBytes))
	fmt.Fprintf(w, "out log:\t%s\n", d.LogOut)
	fmt.Fprintf(w, "err log:\t%s\n", d.LogErr)
	_ = w.Flush()
}

func newEnvCommand(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env <ref>",
		Short: "Show a record's environment overrides",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			env, err := c.Env(cmdContext(cmd), args[0])
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(env))
			for k := range env {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s=%s\n", k, env[k])
			}
			return nil
		},
	}
	return cmd
}

func newCStartCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cstart <ref>",
		Short: "Print the literal relaunch command line",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			line, err := c.CStart(cmdContext(cmd), args[0])
			if err != nil {
				return err
			}
			fmt.Println(line)
			return nil
		},
	}
}

func newAdjustCommand(gf *globalFlags) *cobra.Command {
	af := &adjustFlags{}
	cmd := &cobra.Command{
		Use:   "adjust <ref>",
		Short: "Change a record's command and/or name",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if af.Command == "" && af.Name == "" {
				return usageError{err: fmt.Errorf("adjust requires --command or --name")}
			}
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			adj := client.AdjustSpec{}
			if af.Command != "" {
				adj.Command = &af.Command
			}
			if af.Name != "" {
				adj.Name = &af.Name
			}
			if err := c.Adjust(cmdContext(cmd), args[0], adj); err != nil {
				return err
			}
			fmt.Printf("adjusted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&af.Command, "command", "", "new command line (effective on next restart)")
	cmd.Flags().StringVar(&af.Name, "name", "", "new record name")
	addServerFlag(cmd, gf)
	return cmd
}

func newRenameCommand(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <ref> <new-name>",
		Short: "Rename a process record",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			if err := c.Rename(cmdContext(cmd), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("renamed %s to %s\n", args[0], args[1])
			return nil
		},
	}
	addServerFlag(cmd, gf)
	return cmd
}

func newListCommand(gf *globalFlags) *cobra.Command {
	lf := &listFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List process records",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			list, err := c.List(cmdContext(cmd))
			if err != nil {
				return err
			}
			switch lf.Format {
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			case "raw":
				for _, r := range list {
					fmt.Printf("%d %s %s\n", r.ID, r.Name, r.Status)
				}
				return nil
			default:
				printList(list)
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&lf.Format, "format", "default", "output format: raw|json|default")
	addServerFlag(cmd, gf)
	return cmd
}

func printList(list []client.RecordSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPID\tSTATUS\tRESTARTS\tUPTIME\tCPU\tMEM\tWATCH")
	for _, r := range list {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\t%s\t%.1f%%\t%s\t%s\n",
			r.ID, r.Name, r.PID, r.Status, r.Restarts, r.Uptime,
			r.Stats.CPUPercent, process.FormatMemory(r.Stats.RSSBytes), r.Watch)
	}
	_ = w.Flush()
}

func newLogsCommand(gf *globalFlags) *cobra.Command {
	lf := &logsFlags{}
	cmd := &cobra.Command{
		Use:   "logs <ref>",
		Short: "Tail a record's log files",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			ctx := cmdContext(cmd)
			if !lf.ErrorsOnly {
				lines, err := c.Logs(ctx, args[0], "out", lf.Lines)
				if err != nil {
					return err
				}
				for _, l := range lines {
					fmt.Println(l)
				}
			}
			lines, err := c.Logs(ctx, args[0], "err", lf.Lines)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Println(l)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lf.Lines, "lines", 0, "number of lines to show (default 15)")
	cmd.Flags().BoolVar(&lf.ErrorsOnly, "errors-only", false, "show only the stderr stream")
	addServerFlag(cmd, gf)
	return cmd
}
