package cli

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"

	chameleon "github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/process"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/worker"
)

// RunProcessWorkers loads external command workers from path and runs each
// one in its own claim loop until ctx is done. Commands run relative to the
// directory of the workers file.
func RunProcessWorkers(ctx context.Context, sys *chameleon.System, path string, logger *slog.Logger) error {
	defs, err := process.LoadWorkers(path)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return errors.New("no workers configured in " + path)
	}
	baseDir := filepath.Dir(path)

	var wg sync.WaitGroup
	errs := make([]error, len(defs))
	for i, def := range defs {
		w := process.New(def, process.WithBaseDir(baseDir))
		runner := worker.NewRunner(sys.Engine, w, worker.WithLogger(logger))
		logger.Info("Starting process worker", "worker_id", def.ID, "role", def.Role, "command", def.Command)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs[i] = err
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
