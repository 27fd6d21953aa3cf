package commands

import (
	"github.com/MEKXH/breakbot/internal/config"
	"github.com/spf13/cobra"
)

var (
	logLevelOverride string
	configPath       string
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breakbot",
		Short: "Breakbot - break requests over Telegram",
		Long: `Breakbot collects break requests from employees in private chat and
routes them to an approver group for a one-tap decision.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" || cmd.Name() == "version" {
				return configureLogger(config.DefaultConfig(), logLevelOverride)
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.breakbot/config.json)")

	cmd.AddCommand(
		NewInitCmd(),
		NewRunCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return cmd
}
