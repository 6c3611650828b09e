package cmd

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/killallgit/turnstream/pkg/config"
	"github.com/killallgit/turnstream/pkg/headless"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send one turn and stream the answer",
	Long: `Send one user turn to the agent and print the answer as it streams.
Press Ctrl-C to stop the turn; the partial answer is kept in history.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.TrimSpace(strings.Join(args, " "))

		collection, _ := cmd.Flags().GetString("collection")
		continueHistory, _ := cmd.Flags().GetBool("continue")
		rawSources, _ := cmd.Flags().GetBool("raw-sources")

		showThinking := config.Get().ShowThinking
		if cmd.Flags().Changed("show-thinking") {
			showThinking, _ = cmd.Flags().GetBool("show-thinking")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return headless.RunHeadless(ctx, prompt, headless.RunOptions{
			Collection:      collection,
			ContinueHistory: continueHistory,
			ShowThinking:    showThinking,
			RawSources:      rawSources,
		})
	},
}

func init() {
	askCmd.Flags().String("collection", "", "document collection the agent should search")
	askCmd.Flags().Bool("continue", false, "continue the conversation saved in history")
	askCmd.Flags().Bool("show-thinking", true, "print the agent's reasoning trace")
	askCmd.Flags().Bool("raw-sources", false, "print sources in their wire format after the answer")
	rootCmd.AddCommand(askCmd)
}
