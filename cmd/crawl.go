package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <company-id>",
	Short: "Crawl a company website and refresh its profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		companyID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrap(err, "crawl: invalid company id")
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Crawl.Run(cmd.Context(), companyID)
	},
}

func init() {
	rootCmd.AddCommand(crawlCmd)
}
