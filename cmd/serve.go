package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/promptwatch/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and the in-process scheduling cron",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Scheduler.CronSpec != "" {
			if _, err := env.Scheduler.StartCron(ctx, cfg.Scheduler.CronSpec); err != nil {
				return err
			}
			zap.L().Info("scheduler cron started", zap.String("spec", cfg.Scheduler.CronSpec))
		}

		serverCfg := cfg.Server
		if servePort != 0 {
			serverCfg.Port = servePort
		}
		srv := server.New(serverCfg, cfg.Scheduler.CronSecret, env.Store, env.Dashboard, env.Scheduler, env.Dispatcher, env.Gate)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
