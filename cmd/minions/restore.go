package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/minions/internal/workspace"
)

func newRestoreCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [backup]",
		Short: "List backups, or restore one over the file it was taken from",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			root, err := workspace.New(cfg.Workspace.Root, cfg.Workspace.BackupDir)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if len(args) == 1 {
				target, err := root.Restore(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "Restored %s from %s\n", target, args[0])
				return nil
			}

			backups, err := root.Backups()
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				fmt.Fprintln(w, "No backups.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "BACKUP\tFILE\tTAKEN")
			for _, b := range backups {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Path, b.Target, b.Taken.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}
