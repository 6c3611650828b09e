package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/killallgit/turnstream/pkg/chat"
	"github.com/killallgit/turnstream/pkg/config"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the saved conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		conv := chat.NewConversation()
		if err := conv.LoadHistory(config.Get().History.File); err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), conv)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the saved conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.Get().History.File
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove history: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Conversation cleared")
		return nil
	},
}

func printHistory(w io.Writer, conv *chat.Conversation) {
	if conv.Len() == 0 {
		fmt.Fprintln(w, "No saved conversation")
		return
	}
	if id := conv.ConversationID(); id != "" {
		fmt.Fprintf(w, "Conversation %s\n\n", id)
	}
	for _, turn := range conv.Turns() {
		fmt.Fprintf(w, "> %s\n", turn.User.Content)
		for _, call := range turn.Assistant.ToolCalls {
			fmt.Fprintf(w, "  [%s: %s]\n", call.Name, call.Status)
		}
		fmt.Fprintln(w, turn.Assistant.Content)
		for _, src := range turn.Assistant.Sources {
			fmt.Fprintf(w, "  - %s\n", src.DocumentName)
		}
		switch {
		case turn.Cancelled:
			fmt.Fprintln(w, "  (cancelled)")
		case turn.Status == chat.StatusError:
			fmt.Fprintf(w, "  (failed: %s)\n", turn.Assistant.Error)
		}
		fmt.Fprintln(w)
	}
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearCmd)
}
