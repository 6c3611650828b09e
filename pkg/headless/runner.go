package headless

import (
	"context"
	"fmt"

	"github.com/killallgit/turnstream/pkg/chat"
	"github.com/killallgit/turnstream/pkg/config"
	"github.com/killallgit/turnstream/pkg/controllers"
	"github.com/killallgit/turnstream/pkg/logger"
)

// RunOptions holds per-invocation settings that are not persisted in config
type RunOptions struct {
	Collection      string
	ContinueHistory bool
	ShowThinking    bool
	RawSources      bool
}

// runner streams one turn to the console
type runner struct {
	session     *controllers.Session
	printer     *snapshotPrinter
	output      *Output
	historyPath string
	rawSources  bool
	lastErr     error
}

// newRunner creates a runner from the global config
func newRunner(opts RunOptions) (*runner, error) {
	settings := config.Get()
	client := chat.NewClient(settings.StreamURL(), settings.Agent.Timeout, settings.Agent.Headers)
	return newRunnerWithClient(client, settings, opts, NewOutput())
}

// newRunnerWithClient creates a runner around an injected client and output
func newRunnerWithClient(client chat.TurnStreamer, settings *config.Config, opts RunOptions, output *Output) (*runner, error) {
	conversation := chat.NewConversation()
	historyPath := settings.History.File

	if opts.ContinueHistory && historyPath != "" {
		if err := conversation.LoadHistory(historyPath); err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
		logger.Debug("Continuing conversation %q with %d turns", conversation.ConversationID(), conversation.Len())
	}

	collection := opts.Collection
	if collection == "" {
		collection = settings.Agent.Collection
	}

	r := &runner{
		printer:     newSnapshotPrinter(output, opts.ShowThinking),
		output:      output,
		historyPath: historyPath,
		rawSources:  opts.RawSources,
	}

	r.session = controllers.NewSession(client, conversation, controllers.SessionOptions{
		Collection:     collection,
		RetrievalTools: settings.Stream.RetrievalTools,
		ReadBufferSize: settings.Stream.ReadBuffer,
		IdleTimeout:    settings.Stream.IdleTimeout,
		OnUpdate:       r.printer.OnUpdate,
		OnError: func(turnID string, err error) {
			r.lastErr = err
		},
	})

	return r, nil
}

// run streams prompt as one turn. Cancelling ctx cancels the turn, which is
// reported as a normal stop rather than an error.
func (r *runner) run(ctx context.Context, prompt string) error {
	turn, err := r.session.Start(context.WithoutCancel(ctx), prompt)
	if err != nil {
		return err
	}

	select {
	case <-turn.Done():
	case <-ctx.Done():
		r.session.Cancel()
		turn.Wait()
	}

	snap := r.session.Snapshot(turn)
	if r.rawSources && len(snap.State.Message.Sources) > 0 {
		r.output.Text(chat.FormatSources(snap.State.Message.Sources) + "\n")
	}

	if stats, ok := r.session.Stats(turn.ID); ok {
		logger.Debug("Turn %s: %s, %d bytes, %d events, %d dropped frames in %s",
			turn.ID, stats.State, stats.BytesReceived, stats.Events, stats.Dropped, stats.Duration())
	}

	if snap.State.Status == chat.StatusError {
		return fmt.Errorf("turn failed: %w", r.lastErr)
	}
	return nil
}

// cleanup persists the conversation so a later run can continue it
func (r *runner) cleanup() error {
	if r.historyPath == "" {
		return nil
	}
	if err := r.session.Conversation().SaveHistory(r.historyPath); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}
