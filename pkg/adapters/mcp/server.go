package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/logging"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/engine"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/integrity"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// WorkflowURI is the resource exposing the running workflow definition.
const WorkflowURI = "chameleon://workflow"

// Engine is what the MCP server needs from the workflow engine.
type Engine interface {
	Workflow() *domain.Workflow
	CreateRoot(ctx context.Context, location string, attributes map[string]any, rationale string) (*domain.UOW, error)
	Claim(ctx context.Context, role, workerID string) (*domain.UOW, error)
	Heartbeat(ctx context.Context, uowID, workerID string) (*domain.UOW, error)
	Submit(ctx context.Context, req engine.SubmitRequest) (*engine.SubmitResult, error)
	ReportFailure(ctx context.Context, uowID, workerID, code, details string) (*domain.UOW, error)
	Get(ctx context.Context, uowID string) (*domain.UOW, error)
	History(ctx context.Context, uowID string) ([]domain.HistoryEntry, error)
	VerifyIntegrity(ctx context.Context, uowID string) (integrity.Result, error)
}

// ClaimResponse is the result of claim_work. Found is false when the role's
// queues are empty.
type ClaimResponse struct {
	Found bool        `json:"found" jsonschema_description:"Whether a unit of work was claimed"`
	UOW   *domain.UOW `json:"uow,omitempty" jsonschema_description:"The claimed unit of work"`
}

// HistoryResponse wraps the ordered history of a unit of work.
type HistoryResponse struct {
	UOWID   string                `json:"uow_id"`
	Entries []domain.HistoryEntry `json:"entries"`
}

type createArgs struct {
	Location   string         `json:"location"`
	Attributes map[string]any `json:"attributes"`
	Rationale  string         `json:"rationale"`
}

type claimArgs struct {
	Role     string `json:"role"`
	WorkerID string `json:"worker_id"`
}

type workerArgs struct {
	UOWID    string `json:"uow_id"`
	WorkerID string `json:"worker_id"`
}

type submitArgs struct {
	UOWID     string         `json:"uow_id"`
	WorkerID  string         `json:"worker_id"`
	Result    map[string]any `json:"result"`
	Rationale string         `json:"rationale"`
}

type failureArgs struct {
	UOWID    string `json:"uow_id"`
	WorkerID string `json:"worker_id"`
	Code     string `json:"code"`
	Details  string `json:"details"`
}

type uowArgs struct {
	UOWID string `json:"uow_id"`
}

// Server exposes the engine's worker protocol as MCP tools, so agents can
// claim and submit units of work directly.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	version string
	logger  *slog.Logger
}

// WithVersion sets the version announced during the MCP handshake.
func WithVersion(v string) Option {
	return func(c *serverConfig) {
		c.version = v
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *serverConfig) {
		c.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(eng Engine, opts ...Option) *Server {
	cfg := serverConfig{version: "dev", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		engine:    eng,
		logger:    cfg.logger,
		mcpServer: server.NewMCPServer("chameleon-mcp", cfg.version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("create_uow",
		mcp.WithDescription("Create a root unit of work queued at a location."),
		mcp.WithString("location", mcp.Required(), mcp.Description("Location ID to queue the token at")),
		mcp.WithObject("attributes", mcp.Description("Initial attributes")),
		mcp.WithString("rationale", mcp.Description("Why the token is created")),
		mcp.WithOutputSchema[domain.UOW](),
	), mcp.NewStructuredToolHandler(s.handleCreate))

	s.mcpServer.AddTool(mcp.NewTool("claim_work",
		mcp.WithDescription("Claim the oldest pending unit of work for a role. The worker then holds its lock."),
		mcp.WithString("role", mcp.Required(), mcp.Description("Role the worker serves")),
		mcp.WithString("worker_id", mcp.Required(), mcp.Description("Stable identifier of the worker")),
		mcp.WithOutputSchema[ClaimResponse](),
	), mcp.NewStructuredToolHandler(s.handleClaim))

	s.mcpServer.AddTool(mcp.NewTool("heartbeat",
		mcp.WithDescription("Prove liveness on a claimed unit of work."),
		mcp.WithString("uow_id", mcp.Required(), mcp.Description("Unit of work ID")),
		mcp.WithString("worker_id", mcp.Required(), mcp.Description("Worker holding the lock")),
		mcp.WithOutputSchema[domain.UOW](),
	), mcp.NewStructuredToolHandler(s.handleHeartbeat))

	s.mcpServer.AddTool(mcp.NewTool("submit_work",
		mcp.WithDescription("Submit a result. The routing policy of the current location decides where the token goes next."),
		mcp.WithString("uow_id", mcp.Required(), mcp.Description("Unit of work ID")),
		mcp.WithString("worker_id", mcp.Required(), mcp.Description("Worker holding the lock")),
		mcp.WithObject("result", mcp.Description("Attributes merged into the token; null deletes a key")),
		mcp.WithString("rationale", mcp.Description("Why the worker decided what it did")),
		mcp.WithOutputSchema[engine.SubmitResult](),
	), mcp.NewStructuredToolHandler(s.handleSubmit))

	s.mcpServer.AddTool(mcp.NewTool("report_failure",
		mcp.WithDescription("Report that the unit of work could not be processed."),
		mcp.WithString("uow_id", mcp.Required(), mcp.Description("Unit of work ID")),
		mcp.WithString("worker_id", mcp.Required(), mcp.Description("Worker holding the lock")),
		mcp.WithString("code", mcp.Required(), mcp.Description("Machine readable failure code")),
		mcp.WithString("details", mcp.Description("Human readable details")),
		mcp.WithOutputSchema[domain.UOW](),
	), mcp.NewStructuredToolHandler(s.handleFailure))

	s.mcpServer.AddTool(mcp.NewTool("get_uow",
		mcp.WithDescription("Read the current state of a unit of work."),
		mcp.WithString("uow_id", mcp.Required(), mcp.Description("Unit of work ID")),
		mcp.WithOutputSchema[domain.UOW](),
	), mcp.NewStructuredToolHandler(s.handleGet))

	s.mcpServer.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Read the append-only history of a unit of work."),
		mcp.WithString("uow_id", mcp.Required(), mcp.Description("Unit of work ID")),
		mcp.WithOutputSchema[HistoryResponse](),
	), mcp.NewStructuredToolHandler(s.handleHistory))

	s.mcpServer.AddTool(mcp.NewTool("verify_integrity",
		mcp.WithDescription("Recompute the content hash of a unit of work and compare it with the stored one."),
		mcp.WithString("uow_id", mcp.Required(), mcp.Description("Unit of work ID")),
		mcp.WithOutputSchema[integrity.Result](),
	), mcp.NewStructuredToolHandler(s.handleVerify))
}

func required(pairs ...string) error {
	var errs []error
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			errs = append(errs, fmt.Errorf("%s is required", pairs[i]))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) handleCreate(ctx context.Context, _ mcp.CallToolRequest, args createArgs) (*domain.UOW, error) {
	if err := required("location", args.Location); err != nil {
		return nil, err
	}
	return s.engine.CreateRoot(ctx, args.Location, args.Attributes, args.Rationale)
}

func (s *Server) handleClaim(ctx context.Context, _ mcp.CallToolRequest, args claimArgs) (ClaimResponse, error) {
	if err := required("role", args.Role, "worker_id", args.WorkerID); err != nil {
		return ClaimResponse{}, err
	}
	u, err := s.engine.Claim(ctx, args.Role, args.WorkerID)
	if errors.Is(err, domain.ErrNoWork) {
		return ClaimResponse{}, nil
	}
	if err != nil {
		return ClaimResponse{}, err
	}
	s.logger.Info("MCP Claim", "uow_id", u.ID, "worker_id", args.WorkerID)
	return ClaimResponse{Found: true, UOW: u}, nil
}

func (s *Server) handleHeartbeat(ctx context.Context, _ mcp.CallToolRequest, args workerArgs) (*domain.UOW, error) {
	if err := required("uow_id", args.UOWID, "worker_id", args.WorkerID); err != nil {
		return nil, err
	}
	return s.engine.Heartbeat(ctx, args.UOWID, args.WorkerID)
}

func (s *Server) handleSubmit(ctx context.Context, _ mcp.CallToolRequest, args submitArgs) (*engine.SubmitResult, error) {
	if err := required("uow_id", args.UOWID, "worker_id", args.WorkerID); err != nil {
		return nil, err
	}
	res, err := s.engine.Submit(ctx, engine.SubmitRequest{
		UOWID:     args.UOWID,
		WorkerID:  args.WorkerID,
		Result:    args.Result,
		Rationale: args.Rationale,
	})
	if err != nil {
		s.logger.Warn("MCP Submit: Rejected", "uow_id", args.UOWID, "err", err)
		return nil, err
	}
	return res, nil
}

func (s *Server) handleFailure(ctx context.Context, _ mcp.CallToolRequest, args failureArgs) (*domain.UOW, error) {
	if err := required("uow_id", args.UOWID, "worker_id", args.WorkerID, "code", args.Code); err != nil {
		return nil, err
	}
	return s.engine.ReportFailure(ctx, args.UOWID, args.WorkerID, args.Code, args.Details)
}

func (s *Server) handleGet(ctx context.Context, _ mcp.CallToolRequest, args uowArgs) (*domain.UOW, error) {
	if err := required("uow_id", args.UOWID); err != nil {
		return nil, err
	}
	return s.engine.Get(ctx, args.UOWID)
}

func (s *Server) handleHistory(ctx context.Context, _ mcp.CallToolRequest, args uowArgs) (HistoryResponse, error) {
	if err := required("uow_id", args.UOWID); err != nil {
		return HistoryResponse{}, err
	}
	entries, err := s.engine.History(ctx, args.UOWID)
	if err != nil {
		return HistoryResponse{}, err
	}
	return HistoryResponse{UOWID: args.UOWID, Entries: entries}, nil
}

func (s *Server) handleVerify(ctx context.Context, _ mcp.CallToolRequest, args uowArgs) (integrity.Result, error) {
	if err := required("uow_id", args.UOWID); err != nil {
		return integrity.Result{}, err
	}
	return s.engine.VerifyIntegrity(ctx, args.UOWID)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(WorkflowURI, "Workflow Definition",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.engine.Workflow())
		if err != nil {
			return nil, fmt.Errorf("failed to encode workflow: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      WorkflowURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
