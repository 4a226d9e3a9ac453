package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"captionflow/internal/worker"
	"captionflow/internal/worker/stages"
)

func newResetCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Empty every topic and delete all workflow context",
		Long: "Reset runs the same purge a worker performs at start. It refuses to run while a\n" +
			"worker holds the pipeline lock on the media directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset discards queued jobs; pass --yes to confirm")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock, err := worker.AcquireLock(cfg.Paths.MediaDir)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			q, err := ctx.queue(cmd.Context())
			if err != nil {
				return err
			}
			store, err := ctx.contextStore(cmd.Context())
			if err != nil {
				return err
			}
			boot := worker.Bootstrap{Queue: q, Store: store, Topics: stages.AllTopics(), Log: ctx.logger()}
			if err := boot.Run(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Pipeline state reset")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the reset")
	return cmd
}
