package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/worker"
)

// FailureCode is reported when the command exits non-zero.
const FailureCode = "PROCESS_FAILED"

// Worker runs an external command for every claimed token.
//
// The token is written to the command's stdin as JSON and its attributes are
// also exported as CHAMELEON_ATTR_<KEY> environment variables. Stdout must be
// a JSON worker result ({"attributes": ..., "rationale": ..., "failure": ...});
// plain text is taken as the rationale.
type Worker struct {
	cfg     Config
	baseDir string
}

// Option configures a Worker.
type Option func(*Worker)

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) Option {
	return func(w *Worker) {
		w.baseDir = dir
	}
}

// New creates a process-backed worker.
func New(cfg Config, opts ...Option) *Worker {
	w := &Worker{cfg: cfg}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) ID() string   { return w.cfg.ID }
func (w *Worker) Role() string { return w.cfg.Role }

// Process runs the command. A non-zero exit becomes a business failure so the
// token can be remediated; only launch errors are returned as Go errors.
func (w *Worker) Process(ctx context.Context, uow *domain.UOW) (worker.Result, error) {
	input, err := json.Marshal(uow)
	if err != nil {
		return worker.Result{}, fmt.Errorf("encode token: %w", err)
	}

	cmd := exec.CommandContext(ctx, w.cfg.Command, w.cfg.Args...)
	cmd.Dir = w.baseDir
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(cmd.Environ(), w.environment(uow)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return worker.Result{}, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return worker.Result{Failure: &worker.Failure{
				Code:    FailureCode,
				Details: fmt.Sprintf("exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String())),
			}}, nil
		}
		return worker.Result{}, fmt.Errorf("execution failed: %w", err)
	}
	return parseOutput(stdout.Bytes())
}

func (w *Worker) environment(uow *domain.UOW) []string {
	env := []string{
		"CHAMELEON_UOW_ID=" + uow.ID,
		"CHAMELEON_LOCATION=" + uow.Location,
		"CHAMELEON_WORKER_ID=" + w.cfg.ID,
	}
	for k, v := range w.cfg.Environment {
		env = append(env, k+"="+v)
	}
	for k, v := range uow.Attributes {
		var val string
		switch v.(type) {
		case string, int, int64, float64, bool:
			val = fmt.Sprintf("%v", v)
		case nil:
			val = ""
		default:
			if raw, err := json.Marshal(v); err == nil {
				val = string(raw)
			} else {
				val = fmt.Sprintf("%v", v)
			}
		}
		env = append(env, fmt.Sprintf("CHAMELEON_ATTR_%s=%s", strings.ToUpper(k), val))
	}
	return env
}

func parseOutput(out []byte) (worker.Result, error) {
	trimmed := strings.TrimSpace(string(out))
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var res worker.Result
		if err := json.Unmarshal([]byte(trimmed), &res); err != nil {
			return worker.Result{}, fmt.Errorf("invalid worker output: %w", err)
		}
		return res, nil
	}
	return worker.Result{Rationale: trimmed}, nil
}
