package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	chameleon "github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/logging"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/config"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
)

// Options are the global CLI flags.
type Options struct {
	ConfigPath string
	// LogLevel overrides log.level from the file when set.
	LogLevel string
	Debug    bool
}

// LoadConfig reads the configuration and applies flag overrides.
func LoadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.Debug {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// NewLogger configures the application logger. Logs always go to Stderr so
// Stdout stays free for reports and JSON-RPC.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := logging.ParseLevel(cfg.Log.Level)
	if cfg.Log.Format == "json" {
		return logging.NewJSON(os.Stderr, level)
	}
	return logging.New(level)
}

// OpenSystem loads the configuration and wires a System with CLI conventions.
func OpenSystem(opts Options) (*chameleon.System, *slog.Logger, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	logger := NewLogger(cfg)
	sysOpts := []chameleon.Option{chameleon.WithLogger(logger)}
	if opts.Debug {
		sysOpts = append(sysOpts, chameleon.WithHooks(debugHooks(logger)))
	}
	sys, err := chameleon.New(cfg, sysOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing system: %w", err)
	}
	return sys, logger, nil
}

// debugHooks log every commit, routing decision and reclamation.
func debugHooks(logger *slog.Logger) domain.Hooks {
	return domain.Hooks{
		OnCommit: func(ctx context.Context, e *domain.CommitEvent) {
			if e.Entry == nil {
				return
			}
			logger.Debug("Commit", "uow_id", e.UOW.ID, "event", e.Entry.EventType,
				"status", e.UOW.Status, "location", e.UOW.Location, "version", e.UOW.Version)
		},
		OnGuardDecision: func(ctx context.Context, e *domain.GuardEvent) {
			logger.Debug("Routing", "uow_id", e.UOWID, "policy", e.Policy, "branch", e.BranchIndex,
				"destination", e.Destination, "failed", e.Failed)
		},
		OnReclaim: func(ctx context.Context, e *domain.ReclaimEvent) {
			logger.Debug("Reclaim", "uow_id", e.UOWID, "kind", e.Kind, "to", e.To, "lost", e.Lost)
		},
	}
}
