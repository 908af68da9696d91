package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes: 0 success, 1 daemon-reported error, 2 malformed arguments.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		var ue usageError
		if errors.As(err, &ue) {
			os.Exit(exitUsage)
		}
		os.Exit(exitError)
	}
	os.Exit(exitOK)
}

func buildRoot() *cobra.Command {
	gf := &globalFlags{}
	root := &cobra.Command{
		Use:           "warden",
		Short:         "warden is a multi-process supervisor",
		Long:          "warden supervises long-running processes: it starts them, restarts them on crash or file change, enforces memory ceilings, and persists state across daemon restarts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gf.Home, "home", "", "state directory (default $WARDEN_HOME or ~/.warden)")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err: err}
	})

	root.AddCommand(
		newStartCommand(gf),
		newStopCommand(gf),
		newRestartCommand(gf),
		newReloadCommand(gf),
		newRemoveCommand(gf),
		newInfoCommand(gf),
		newEnvCommand(gf),
		newCStartCommand(gf),
		newAdjustCommand(gf),
		newRenameCommand(gf),
		newListCommand(gf),
		newLogsCommand(gf),
		newSaveCommand(gf),
		newRestoreCommand(gf),
		newExportCommand(gf),
		newImportCommand(gf),
		newDaemonCommand(gf),
		newAgentCommand(gf),
	)
	return root
}
