package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <prompt-id>",
	Short: "Run the analysis pipeline for a single monitored prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		promptID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrap(err, "analyze: invalid prompt id")
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Analysis.Run(cmd.Context(), promptID)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
