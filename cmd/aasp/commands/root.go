package commands

import (
	"github.com/spf13/cobra"
	"github.com/xela07ax/aasp-sandbox/internal/infra"
	"go.uber.org/zap"
)

// app — общее состояние команд: конфиг и логгер поднимаются один раз в PersistentPreRunE
type app struct {
	configPath       string
	logLevelOverride string

	cfg    *infra.Config
	logger *zap.Logger
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "aasp",
		Short:         "AASP - policy sandbox for AI agent actions",
		Long:          `aasp evaluates AI agent actions against ordered policies, queues risky ones for human approval and streams every decision.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file (default: ./config.yaml or ./configs/config.yaml)")
	cmd.PersistentFlags().StringVar(&a.logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		newServeCmd(a),
		newEvaluateCmd(a),
		newTailCmd(a),
		newHashPasswordCmd(a),
		NewVersionCmd(),
	)

	return cmd
}

func (a *app) load() error {
	cfg, err := infra.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevelOverride != "" {
		cfg.Logger.Level = a.logLevelOverride
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}
