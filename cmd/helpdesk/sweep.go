package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run a single escalation and SLA breach sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := loadRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()
			if err := rt.wire(ctx); err != nil {
				return err
			}
			rt.notifications.RegisterHandlers()

			result, err := rt.sweeper().RunOnce(ctx)
			if err != nil {
				return err
			}
			// deliver what the sweep raised before exiting
			rt.notifications.Close()
			rt.notifications.Run(ctx)

			if result.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "sweep skipped: another replica holds the lock")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d escalations=%d breaches=%d failures=%d duration=%s\n",
				result.Processed, result.Escalations, result.Breaches, result.Failures, result.Duration)
			return nil
		},
	}
}
