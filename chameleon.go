package chameleon

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/logging"
	chameleonhttp "github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/http"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/mcp"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/memory"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/redis"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/sqlite"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/config"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/engine"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/expr"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/guard"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/observability"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/persistence"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/persistence/middleware"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/shadowlog"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/sweep"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

// System is a fully wired deployment: storage, guards, engine, sweep and the
// observability that ties them together.
type System struct {
	Config    *config.Config
	Service   *persistence.Service
	Engine    *engine.Engine
	Sweeper   *sweep.Reclaimer
	ShadowLog *shadowlog.Log
	Streams   *chameleonhttp.StreamManager
	Metrics   *observability.Metrics

	registry *prometheus.Registry
	store    ports.UOWStore
	sink     ports.EscalationSink
	hooks    domain.Hooks
	logger   *slog.Logger
	closers  []func() error
}

// Option defines a functional option for configuring the System.
type Option func(*System)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *System) {
		s.logger = logger
	}
}

// WithRegistry records metrics into reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *System) {
		s.registry = reg
	}
}

// WithStore bypasses the configured backend. Encryption still applies.
func WithStore(store ports.UOWStore) Option {
	return func(s *System) {
		s.store = store
	}
}

// WithEscalationSink adds a sink next to the log sink, e.g. a pager.
func WithEscalationSink(sink ports.EscalationSink) Option {
	return func(s *System) {
		s.sink = sink
	}
}

// WithHooks adds observability callbacks next to metrics and event streams.
func WithHooks(h domain.Hooks) Option {
	return func(s *System) {
		s.hooks = h
	}
}

// New validates cfg and wires a System from it.
func New(cfg *config.Config, opts ...Option) (*System, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &System{Config: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.logger = s.logger.With("workflow", cfg.Workflow.Name)
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	locker, err := s.openStore()
	if err != nil {
		return nil, err
	}
	enc, err := cfg.Encryption()
	if err != nil {
		s.Close()
		return nil, err
	}
	if enc != nil {
		s.store = middleware.Chain(s.store, middleware.NewEncryptionMiddleware(*enc))
	}

	s.Metrics = observability.NewMetrics(s.registry)
	s.Streams = chameleonhttp.NewStreamManager(s.logger)
	hooks := s.Metrics.Hooks().Merge(s.Streams.Hooks()).Merge(s.hooks)
	sink := s.Metrics.Sink(observability.MultiSink(observability.LogSink(s.logger), s.sink))

	s.ShadowLog = shadowlog.New(cfg.ShadowLog.Capacity, shadowlog.WithLogger(s.logger))

	svcOpts := []persistence.Option{
		persistence.WithLogger(s.logger),
		persistence.WithEscalation(sink),
		persistence.WithHooks(hooks),
	}
	if locker != nil {
		svcOpts = append(svcOpts, persistence.WithLocker(locker), persistence.WithLockTTL(cfg.Store.LockTTL))
	}
	s.Service = persistence.NewService(s.store, svcOpts...)

	router := guard.NewRoutingGuard(expr.NewEvaluator(expr.NewDefaultRegistry()),
		guard.WithShadowLog(s.ShadowLog),
		guard.WithEscalation(sink),
		guard.WithHooks(hooks),
		guard.WithLogger(s.logger),
	)
	cerberus := guard.NewCerberus(s.store,
		guard.WithSyncThreshold(cfg.Sync.EscalationThreshold),
		guard.WithSyncEscalation(sink),
		guard.WithSyncHooks(hooks),
		guard.WithSyncLogger(s.logger),
	)
	s.Engine, err = engine.New(s.Service, cfg.WorkflowDefinition(),
		engine.WithRouter(router),
		engine.WithCerberus(cerberus),
		engine.WithEscalation(sink),
		engine.WithLogger(s.logger),
	)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Sweeper, err = sweep.New(s.Service, cfg.SweepSettings(),
		sweep.WithSynchronizer(s.Engine),
		sweep.WithEscalation(sink),
		sweep.WithHooks(hooks),
		sweep.WithLogger(s.logger),
	)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.logger.Info("System ready", "backend", cfg.Store.Backend, "encrypted", enc != nil, "distributed_locks", locker != nil)
	return s, nil
}

func (s *System) openStore() (ports.DistributedLocker, error) {
	if s.store != nil {
		return nil, nil
	}
	cfg := s.Config.Store
	switch cfg.Backend {
	case config.BackendMemory:
		s.store = memory.NewStore()
	case config.BackendSQLite:
		st, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		s.store = st
		s.closers = append(s.closers, st.Close)
	case config.BackendRedis:
		st := redis.New(cfg.Addr, redis.WithPrefix(cfg.Prefix))
		s.store = st
		s.closers = append(s.closers, st.Close)
		if cfg.DistributedLocks {
			return redis.NewLocker(st.Client(), cfg.Prefix), nil
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	return nil, nil
}

// MetricsHandler serves the System's Prometheus registry.
func (s *System) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// HTTPServer builds the REST adapter over the engine.
func (s *System) HTTPServer() (*chameleonhttp.Server, error) {
	opts := []chameleonhttp.Option{
		chameleonhttp.WithShadowLog(s.ShadowLog),
		chameleonhttp.WithStreams(s.Streams),
		chameleonhttp.WithVersion(Version),
		chameleonhttp.WithLogger(s.logger),
	}
	if s.Config.Server.Metrics {
		opts = append(opts, chameleonhttp.WithMetricsHandler(s.MetricsHandler()))
	}
	return chameleonhttp.NewServer(s.Engine, opts...)
}

// MCPServer builds the MCP adapter over the engine.
func (s *System) MCPServer() *mcp.Server {
	return mcp.NewServer(s.Engine, mcp.WithVersion(Version), mcp.WithLogger(s.logger))
}

// Close releases the storage backend.
func (s *System) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
