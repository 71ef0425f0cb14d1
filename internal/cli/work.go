package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	chameleon "github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/presentation/tui"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/worker"
)

// WorkOptions configure an interactive human worker session.
type WorkOptions struct {
	WorkerID string
	Role     string
	Input    io.Reader
	Output   io.Writer
	// Client defaults to the local engine; set it to talk to a remote server.
	Client worker.Client
}

// RunWork claims tokens for a role and lets a person decide them from the
// terminal until the console stops or ctx is done.
func RunWork(ctx context.Context, sys *chameleon.System, opts WorkOptions, logger *slog.Logger) error {
	client := opts.Client
	if client == nil {
		client = sys.Engine
	}
	h := worker.NewHuman(opts.WorkerID, opts.Role)

	console := &chameleon.Console{Input: opts.Input, Output: opts.Output}
	if tui.IsTerminal(opts.Output) {
		tui.PrintBanner(opts.Output)
		if render, err := tui.NewRenderer(0); err == nil {
			console.Renderer = render
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- worker.NewRunner(client, h, worker.WithLogger(logger)).Run(ctx)
	}()

	err := console.Run(ctx, h)
	cancel()
	runErr := <-runnerDone
	if errors.Is(err, chameleon.ErrQuit) || errors.Is(err, context.Canceled) {
		err = nil
	}
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return errors.Join(err, runErr)
}
