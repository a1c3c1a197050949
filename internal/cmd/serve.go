package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conclave-sh/conclave/internal/config"
	"github.com/conclave-sh/conclave/internal/logging"
	"github.com/conclave-sh/conclave/internal/orchestrator"
	"github.com/conclave-sh/conclave/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the governance core",
	Long: `Start the governance core: the message bus over the durable queue,
the idle governor, the deliberation expiry sweeper, and the policy
file watcher. Runs until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("log-dir", "", "write logs to {dir}/conclave.log instead of stderr")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logDir, _ := cmd.Flags().GetString("log-dir")
	logger, err := logging.NewLogger(logDir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	orch, err := orchestrator.New(ctx, cfg, st, logger)
	if err != nil {
		return err
	}

	// Hot-reload publish budgets and guard thresholds on config edits.
	if cfgFile := viper.ConfigFileUsed(); cfgFile != "" {
		w, err := config.NewWatcher(cfgFile, logger, func(string) {
			if err := viper.ReadInConfig(); err != nil {
				logger.Warn("config reread failed", "error", err)
				return
			}
			next, err := config.Load()
			if err != nil {
				logger.Warn("config reload rejected", "error", err)
				return
			}
			orch.ApplyConfig(next)
		})
		if err != nil {
			return err
		}
		w.Start()
		defer w.Stop()
	}

	return orch.Serve(ctx)
}
