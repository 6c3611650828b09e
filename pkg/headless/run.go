package headless

import (
	"context"
	"fmt"
)

// RunHeadless streams a single prompt to the console.
// This is the main entry point for CLI execution.
func RunHeadless(ctx context.Context, prompt string, opts RunOptions) error {
	if prompt == "" {
		return fmt.Errorf("prompt cannot be empty in headless mode")
	}

	runner, err := newRunner(opts)
	if err != nil {
		return fmt.Errorf("failed to initialize headless mode: %w", err)
	}

	runErr := runner.run(ctx, prompt)

	// History is saved even for failed turns so the transcript stays complete
	if err := runner.cleanup(); err != nil {
		runner.output.Error(fmt.Sprintf("Warning: cleanup error: %v", err))
	}

	return runErr
}
