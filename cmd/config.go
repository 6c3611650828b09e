package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/killallgit/turnstream/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if initFile, _ := cmd.Flags().GetBool("init"); initFile {
			path, err := config.WriteDefaultConfig(cfgFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		}
		printConfig(cmd.OutOrStdout(), config.Get())
		return nil
	},
}

func printConfig(w io.Writer, c *config.Config) {
	if used := config.GetConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "config file:        %s\n", used)
	}
	fmt.Fprintf(w, "stream url:         %s\n", c.StreamURL())
	fmt.Fprintf(w, "collection:         %s\n", c.Agent.Collection)
	fmt.Fprintf(w, "agent timeout:      %s\n", c.Agent.Timeout)
	fmt.Fprintf(w, "idle timeout:       %s\n", c.Stream.IdleTimeout)
	fmt.Fprintf(w, "read buffer:        %d\n", c.Stream.ReadBuffer)
	fmt.Fprintf(w, "retrieval tools:    %s\n", strings.Join(c.Stream.RetrievalTools, ", "))
	fmt.Fprintf(w, "history file:       %s\n", c.History.File)
	fmt.Fprintf(w, "log level:          %s\n", c.Logging.Level)
	fmt.Fprintf(w, "log file:           %s\n", c.Logging.LogFile)
	fmt.Fprintf(w, "show thinking:      %t\n", c.ShowThinking)
}

func init() {
	configCmd.Flags().Bool("init", false, "write the effective configuration to the config file")
	rootCmd.AddCommand(configCmd)
}
