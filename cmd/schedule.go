package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run one scheduling cycle: claim due prompts and dispatch analysis jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Scheduler.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("scheduling cycle done", zap.Int("dispatched", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
