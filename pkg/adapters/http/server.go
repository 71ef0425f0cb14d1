package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/logging"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/engine"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/integrity"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/persistence"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/shadowlog"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
)

// Engine is the set of engine operations the API exposes. *engine.Engine satisfies it.
type Engine interface {
	CreateRoot(ctx context.Context, location string, attributes map[string]any, rationale string) (*domain.UOW, error)
	Claim(ctx context.Context, role, workerID string) (*domain.UOW, error)
	Heartbeat(ctx context.Context, uowID, workerID string) (*domain.UOW, error)
	Submit(ctx context.Context, req engine.SubmitRequest) (*engine.SubmitResult, error)
	ReportFailure(ctx context.Context, uowID, workerID, code, details string) (*domain.UOW, error)
	Spawn(ctx context.Context, parentID, workerID string, specs []engine.ChildSpec) ([]*domain.UOW, error)
	Remediate(ctx context.Context, uowID, workerID string, attributes map[string]any, rationale string) (*domain.UOW, error)
	Finalize(ctx context.Context, uowID, rationale string) (*domain.UOW, error)
	Archive(ctx context.Context, uowID, rationale string) (*domain.UOW, error)
	Get(ctx context.Context, uowID string) (*domain.UOW, error)
	History(ctx context.Context, uowID string) ([]domain.HistoryEntry, error)
	Audit(ctx context.Context, uowID string) ([]domain.AuditEntry, error)
	VerifyIntegrity(ctx context.Context, uowID string) (integrity.Result, error)
	VerifyChain(ctx context.Context, uowID string) (persistence.ChainReport, error)
}

// Server serves the worker and operator API.
type Server struct {
	engine  Engine
	shadow  *shadowlog.Log
	streams *StreamManager
	metrics http.Handler
	spec    *openapi3.T
	version string
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithShadowLog exposes the routing failure log at /v1/shadow-log.
func WithShadowLog(l *shadowlog.Log) Option {
	return func(s *Server) {
		s.shadow = l
	}
}

// WithStreams serves change events at /v1/events. The manager's hooks must be
// registered with the persistence service to receive commits.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.streams = sm
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates the API server.
func NewServer(eng Engine, opts ...Option) (*Server, error) {
	spec, err := GetSwagger()
	if err != nil {
		return nil, err
	}
	s := &Server{
		engine:  eng,
		spec:    spec,
		version: "dev",
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	api := func(method, pattern string, h http.HandlerFunc) {
		r.With(s.validate(pattern)).Method(method, pattern, h)
	}
	api(http.MethodPost, "/v1/uows", s.CreateUOW)
	api(http.MethodPost, "/v1/claims", s.Claim)
	api(http.MethodGet, "/v1/uows/{uowId}", s.GetUOW)
	api(http.MethodPost, "/v1/uows/{uowId}/heartbeat", s.Heartbeat)
	api(http.MethodPost, "/v1/uows/{uowId}/submit", s.Submit)
	api(http.MethodPost, "/v1/uows/{uowId}/failure", s.ReportFailure)
	api(http.MethodPost, "/v1/uows/{uowId}/children", s.Spawn)
	api(http.MethodPost, "/v1/uows/{uowId}/remediate", s.Remediate)
	api(http.MethodPost, "/v1/uows/{uowId}/finalize", s.Finalize)
	api(http.MethodPost, "/v1/uows/{uowId}/archive", s.Archive)
	api(http.MethodGet, "/v1/uows/{uowId}/history", s.GetHistory)
	api(http.MethodGet, "/v1/uows/{uowId}/audit", s.GetAudit)
	api(http.MethodGet, "/v1/uows/{uowId}/integrity", s.VerifyIntegrity)
	api(http.MethodGet, "/v1/uows/{uowId}/chain", s.VerifyChain)
	api(http.MethodGet, "/v1/shadow-log", s.GetShadowLog)
	api(http.MethodGet, "/v1/events", s.SubscribeEvents)
	api(http.MethodGet, "/health", s.GetHealth)

	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(RawSpec())
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r
}

// validate checks requests against the operation declared for pattern.
func (s *Server) validate(pattern string) func(http.Handler) http.Handler {
	item := s.spec.Paths.Value(pattern)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if item == nil {
				next.ServeHTTP(w, r)
				return
			}
			op := item.GetOperation(r.Method)
			if op == nil {
				next.ServeHTTP(w, r)
				return
			}
			params := map[string]string{}
			if id := chi.URLParam(r, "uowId"); id != "" {
				params["uowId"] = id
			}
			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: params,
				Route: &routers.Route{
					Spec:      s.spec,
					Path:      pattern,
					PathItem:  item,
					Method:    r.Method,
					Operation: op,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				badRequest(w, s.logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Chameleon API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// Request bodies.

type createRequest struct {
	Location   string         `json:"location"`
	Attributes map[string]any `json:"attributes"`
	Rationale  string         `json:"rationale"`
}

type claimRequest struct {
	Role     string `json:"role"`
	WorkerID string `json:"worker_id"`
}

type workerRequest struct {
	WorkerID string `json:"worker_id"`
}

type submitRequest struct {
	WorkerID  string         `json:"worker_id"`
	Result    map[string]any `json:"result"`
	Rationale string         `json:"rationale"`
}

type failureRequest struct {
	WorkerID string `json:"worker_id"`
	Code     string `json:"code"`
	Details  string `json:"details"`
}

type spawnRequest struct {
	WorkerID string             `json:"worker_id"`
	Children []engine.ChildSpec `json:"children"`
}

type remediateRequest struct {
	WorkerID   string         `json:"worker_id"`
	Attributes map[string]any `json:"attributes"`
	Rationale  string         `json:"rationale"`
}

type rationaleRequest struct {
	Rationale string `json:"rationale"`
}

// decode reads an optional JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) uowID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "uowId", chi.URLParam(r, "uowId"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false})
	if err != nil || id == "" {
		badRequest(w, s.logger, fmt.Errorf("invalid format for parameter uowId: %v", err))
		return "", false
	}
	return id, true
}

// CreateUOW handles POST /v1/uows.
func (s *Server) CreateUOW(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, s.logger, err)
		return
	}
	u, err := s.engine.CreateRoot(r.Context(), body.Location, body.Attributes, body.Rationale)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, u)
}

// Claim handles POST /v1/claims. An empty queue answers 204.
func (s *Server) Claim(w http.ResponseWriter, r *http.Request) {
	var body claimRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, s.logger, err)
		return
	}
	u, err := s.engine.Claim(r.Context(), body.Role, body.WorkerID)
	if errors.Is(err, domain.ErrNoWork) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, u)
}

// GetUOW handles GET /v1/uows/{uowId}.
func (s *Server) GetUOW(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uowID(w, r)
	if !ok {
		return
	}
	s.respond(w, http.StatusOK)(s.engine.Get(r.Context(), id))
}

// Heartbeat handles POST /v1/uows/{uowId}/heartbeat.
func (s *Server) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uowID(w, r)
	if !ok {
		return
	}
	var body workerRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, s.logger, err)
		return
	}
	s.respond(w, http.StatusOK)(s.engine.Heartbeat(r.Context(), id, body.WorkerID))
}

// Submit handles POST /v1/uows/{uowId}/submit.
func (s *Server) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uowID(w, r)
	if !ok {
		return
	}
	var body submitRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, s.logger, err)
		return
	}
	res, err := s.engine.Submit(r.Context(), engine.SubmitRequest{
		UOWID:     id,
		WorkerID:  body.WorkerID,
		Result:    body.Result,
		Rationale: body.Rationale,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, res)
}

// ReportFailure handles POST /v1/uows/{uowId}/failure.
func (s *Server) ReportFailure(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uowID(w, r)
	if !ok {
		return
	}
	var body failureRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, s.logger, err)
		return
	}
	s.respond(w, http.StatusOK)(s.engine.ReportFailure(r.Context(), id, body.WorkerID, body.Code, body.Details))
}

// Spawn handles POST /v1/uows/{uowId}/children.
func (s *Server) Spawn(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uowID(w, r)
	if !ok {
		return
	}
	var body spawnRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, s.logger, err)
		return
	}
	children, err := s.engine.Spawn(r.Context(), id, body.WorkerID, body.Children)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, children)
}

// Remediate handles POST /v1/uows/{uowId}/remediate.
func (s *Server) Remediate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uowID(w, r)
	if !ok {
		return
	}
	var body remediateRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, s.logger, err)
		return
	}
	s.respond(w, http.StatusOK)(s.engine.Remediate(r.Context(), id, body.WorkerID, body.Attributes, body.Rationale))
}

// Finalize handles POST /v1/uows/{uowId}/finalize.
func (s *Server) Finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uowID(w, r)
	if !ok {
		return
	}
	var body rationaleRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, s.logger, err)
		return
	}
	s.respond(w, http.StatusOK)(s.engine.Finalize(r.Context(), id, body.Rationale))
}

// Archive handles POST /v1/uows/{uowId}/archive.
func (s *Server) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uowID(w, r)
	if !ok {
		return
	}
	var body rationaleRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, s.logger, err)
		return
	}
	s.respond(w, http.StatusOK)(s.engine.Archive(r.Context(), id, body.Rationale))
}

// GetHistory handles GET /v1/uows/{uowId}/history.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uowID(w, r)
	if !ok {
		return
	}
	entries, err := s.engine.History(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, entries)
}

// GetAudit handles GET /v1/uows/{uowId}/audit.
func (s *Server) GetAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uowID(w, r)
	if !ok {
		return
	}
	if _, err := s.engine.Get(r.Context(), id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	entries, err := s.engine.Audit(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, entries)
}

// VerifyIntegrity handles GET /v1/uows/{uowId}/integrity. Drift is reported
// in the body, not as an error status.
func (s *Server) VerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uowID(w, r)
	if !ok {
		return
	}
	res, err := s.engine.VerifyIntegrity(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, res)
}

type chainResponse struct {
	persistence.ChainReport
	Valid bool `json:"valid"`
}

// VerifyChain handles GET /v1/uows/{uowId}/chain.
func (s *Server) VerifyChain(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uowID(w, r)
	if !ok {
		return
	}
	report, err := s.engine.VerifyChain(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, chainResponse{ChainReport: report, Valid: report.Valid()})
}

// ShadowLogParams are the query parameters of GET /v1/shadow-log.
type ShadowLogParams struct {
	UOWID  *string `form:"uow_id" json:"uow_id,omitempty"`
	Policy *string `form:"policy" json:"policy,omitempty"`
	Kind   *string `form:"kind" json:"kind,omitempty"`
	Limit  *int    `form:"limit" json:"limit,omitempty"`
}

// GetShadowLog handles GET /v1/shadow-log.
func (s *Server) GetShadowLog(w http.ResponseWriter, r *http.Request) {
	if s.shadow == nil {
		writeJSON(w, s.logger, http.StatusOK, []shadowlog.Entry{})
		return
	}

	var params ShadowLogParams
	q := r.URL.Query()
	for name, dest := range map[string]any{
		"uow_id": &params.UOWID,
		"policy": &params.Policy,
		"kind":   &params.Kind,
		"limit":  &params.Limit,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, q, dest); err != nil {
			badRequest(w, s.logger, fmt.Errorf("invalid format for parameter %s: %w", name, err))
			return
		}
	}

	var f shadowlog.Filter
	if params.UOWID != nil {
		f.UOWID = *params.UOWID
	}
	if params.Policy != nil {
		f.Policy = *params.Policy
	}
	if params.Kind != nil {
		f.Kind = shadowlog.Kind(*params.Kind)
	}
	if params.Limit != nil {
		f.Limit = *params.Limit
	}
	entries := s.shadow.Query(f)
	if entries == nil {
		entries = []shadowlog.Entry{}
	}
	writeJSON(w, s.logger, http.StatusOK, entries)
}

// SubscribeEvents handles GET /v1/events (SSE). With uow_id only that unit of
// work is streamed; the optional watch parameter (status, location,
// attributes) keeps only diffs touching those fields.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	if s.streams == nil {
		http.Error(w, "Streaming not enabled", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	var topic *string
	if err := runtime.BindQueryParameter("form", true, false, "uow_id", r.URL.Query(), &topic); err != nil {
		badRequest(w, s.logger, err)
		return
	}
	var watch []string
	if raw := r.URL.Query().Get("watch"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			watch = append(watch, strings.TrimSpace(f))
		}
	}

	key := ""
	if topic != nil {
		key = *topic
	}
	ch, cancel := s.streams.Subscribe(key)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: Subscribed", "uow_id", key)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: Client disconnected", "uow_id", key)
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !ev.matches(watch) {
				continue
			}
			data, err := ev.payload()
			if err != nil {
				s.logger.Error("SSE: Encode failed", "err", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if s.spec.Info != nil {
		apiVersion = s.spec.Info.Version
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{
		"app":         "chameleon-http",
		"version":     s.version,
		"api_version": apiVersion,
	})
}

func (s *Server) respond(w http.ResponseWriter, status int) func(*domain.UOW, error) {
	return func(u *domain.UOW, err error) {
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, s.logger, status, u)
	}
}
