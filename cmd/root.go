package cmd

import (
	"fmt"
	"os"

	"github.com/killallgit/turnstream/pkg/config"
	"github.com/killallgit/turnstream/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "turnstream",
	Short: "Stream answers from a conversational agent",
	Long: `turnstream sends one turn to a remote conversational agent and assembles
its streamed answer live: content, reasoning, tool calls and cited sources.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(cfgFile); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logger.Init(); err != nil {
			return err
		}
		if used := config.GetConfigFileUsed(); used != "" {
			logger.Debug("Using config file: %s", used)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.turnstream/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("url", "", "agent base URL")
	viper.BindPFlag("agent.base_url", rootCmd.PersistentFlags().Lookup("url"))
}
