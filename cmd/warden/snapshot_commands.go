package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/loykin/warden/internal/dump"
	"github.com/loykin/warden/internal/process"
	"github.com/loykin/warden/pkg/client"
)

func newSaveCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Persist the process table to the dumpfile",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			n, err := c.Save(cmdContext(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("saved %d record(s)\n", n)
			return nil
		},
	}
}

func newRestoreCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Rebuild the process table from the dumpfile",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			n, err := c.Restore(cmdContext(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("restored %d record(s)\n", n)
			return nil
		},
	}
}

func newExportCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export <ref|all> <file>",
		Short: "Write process definitions to a TOML file",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			ctx := cmdContext(cmd)

			var refs []string
			if args[0] == "all" {
				list, err := c.List(ctx)
				if err != nil {
					return err
				}
				for _, r := range list {
					refs = append(refs, strconv.FormatInt(r.ID, 10))
				}
			} else {
				refs = []string{args[0]}
			}

			recs := make([]dump.Record, 0, len(refs))
			for _, ref := range refs {
				d, err := c.Info(ctx, ref)
				if err != nil {
					return err
				}
				recs = append(recs, dump.Record{
					ID:           d.ID,
					Name:         d.Name,
					Script:       d.Script,
					Path:         d.Path,
					Env:          d.Env,
					Watch:        process.Watch{Enabled: d.Watch.Enabled, Path: d.Watch.Path},
					MaxMemory:    d.MaxMemory,
					Workers:      d.Workers,
					CrashLimit:   d.CrashLimit,
					StatusAtDump: d.Status,
				})
			}
			if err := dump.Export(args[1], recs); err != nil {
				return err
			}
			fmt.Printf("exported %d record(s) to %s\n", len(recs), args[1])
			return nil
		},
	}
}

func newImportCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create processes from a TOML file",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(gf)
			if err != nil {
				return err
			}
			ctx := cmdContext(cmd)
			recs, err := dump.Import(args[0])
			if err != nil {
				return err
			}
			created := 0
			for _, r := range recs {
				spec := client.CreateSpec{
					Script:    r.Script,
					Name:      r.Name,
					Path:      r.Path,
					Env:       r.Env,
					MaxMemory: process.FormatMemorySuffix(r.MaxMemory),
				}
				if r.MaxMemory == 0 {
					spec.MaxMemory = ""
				}
				if r.Watch.Enabled {
					spec.Watch = r.Watch.Path
				}
				ids, err := c.Create(ctx, spec)
				if err != nil {
					fmt.Printf("skipping %q: %v\n", r.Name, err)
					continue
				}
				created += len(ids)
				// entries exported while stopped come back stopped
				if r.StatusAtDump != process.StatusRunning {
					for _, id := range ids {
						_ = c.Action(ctx, strconv.FormatInt(id, 10), "stop")
					}
				}
			}
			fmt.Printf("imported %d record(s)\n", created)
			return nil
		},
	}
}
