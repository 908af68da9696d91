package main

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"
)

func findCommand(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("command %q not registered", name)
	return nil
}

func TestRootRegistersStableSurface(t *testing.T) {
	root := buildRoot()
	for _, name := range []string{
		"start", "stop", "restart", "reload", "remove",
		"info", "env", "cstart", "adjust", "rename",
		"list", "logs", "save", "restore", "export", "import",
		"daemon", "agent",
	} {
		findCommand(t, root, name)
	}
}

func TestDaemonSubcommands(t *testing.T) {
	root := buildRoot()
	d := findCommand(t, root, "daemon")
	for _, name := range []string{"start", "stop", "reset", "health", "setup"} {
		found := false
		for _, c := range d.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("daemon %s not registered", name)
		}
	}
}

func TestAgentSubcommands(t *testing.T) {
	root := buildRoot()
	a := findCommand(t, root, "agent")
	for _, name := range []string{"connect", "disconnect", "status", "list"} {
		found := false
		for _, c := range a.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("agent %s not registered", name)
		}
	}
}

func TestArgumentCountIsUsageError(t *testing.T) {
	root := buildRoot()
	root.SetArgs([]string{"stop"})
	err := root.Execute()
	var ue usageError
	if !errors.As(err, &ue) {
		t.Fatalf("missing ref should be a usage error, got %v", err)
	}
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	root := buildRoot()
	root.SetArgs([]string{"list", "--definitely-not-a-flag"})
	err := root.Execute()
	var ue usageError
	if !errors.As(err, &ue) {
		t.Fatalf("unknown flag should be a usage error, got %v", err)
	}
}
