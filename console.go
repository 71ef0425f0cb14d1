package chameleon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/worker"
)

// ContentRenderer transforms markdown before it is written, e.g. to ANSI.
type ContentRenderer func(string) (string, error)

// Console lets a person act as a human worker from a terminal. Each claimed
// token is shown, then lines are read until the person submits or fails it:
//
//	key=value    set an attribute (values are parsed as JSON when possible)
//	-key         delete an attribute
//	why <text>   set the rationale
//	submit       hand the result back to the engine
//	fail <code> [details]
//	quit         stop
type Console struct {
	Input    io.Reader
	Output   io.Writer
	Renderer ContentRenderer
}

// ErrQuit is returned by Run when the person typed quit.
var ErrQuit = errors.New("console: quit")

// Run serves tasks from h until ctx is done, input ends or the person quits.
func (c *Console) Run(ctx context.Context, h *worker.Human) error {
	if c.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if c.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	lines := bufio.NewReader(c.Input)
	fmt.Fprintf(c.Output, "--- Chameleon console (%s as %s) ---\n", h.ID(), h.Role())

	for {
		var task *domain.UOW
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task = <-h.Tasks():
		}
		c.show(task)

		res, err := c.decide(lines)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrQuit) {
				// An unfinished decision fails the token so it can be remediated.
				res = worker.Result{Failure: &worker.Failure{Code: "ABANDONED", Details: "console closed"}}
				_ = h.Decide(ctx, res)
				if errors.Is(err, io.EOF) {
					return nil
				}
			}
			return err
		}
		if err := h.Decide(ctx, res); err != nil {
			return err
		}
	}
}

func (c *Console) show(u *domain.UOW) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s at %s\n\n", u.ID, u.Location)
	keys := make([]string, 0, len(u.Attributes))
	for k := range u.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := json.Marshal(u.Attributes[k])
		fmt.Fprintf(&sb, "- **%s**: `%s`\n", k, v)
	}
	out := sb.String()
	if c.Renderer != nil {
		if rendered, err := c.Renderer(out); err == nil {
			out = rendered
		}
	}
	fmt.Fprintln(c.Output, strings.TrimSpace(out))
}

func (c *Console) decide(lines *bufio.Reader) (worker.Result, error) {
	res := worker.Result{Attributes: map[string]any{}}
	for {
		fmt.Fprint(c.Output, "> ")
		text, err := lines.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return res, fmt.Errorf("input error: %w", err)
		}
		eof := err != nil
		input := strings.TrimSpace(text)

		switch {
		case input == "":
		case input == "quit" || input == "exit":
			fmt.Fprintln(c.Output, "Bye!")
			return res, ErrQuit
		case input == "submit":
			return res, nil
		case strings.HasPrefix(input, "fail "):
			code, details, _ := strings.Cut(strings.TrimPrefix(input, "fail "), " ")
			return worker.Result{Failure: &worker.Failure{Code: code, Details: details}}, nil
		case strings.HasPrefix(input, "why "):
			res.Rationale = strings.TrimPrefix(input, "why ")
		case strings.HasPrefix(input, "-"):
			res.Attributes[strings.TrimPrefix(input, "-")] = nil
		default:
			key, raw, ok := strings.Cut(input, "=")
			if !ok {
				fmt.Fprintf(c.Output, "unknown command %q\n", input)
				continue
			}
			res.Attributes[strings.TrimSpace(key)] = parseValue(strings.TrimSpace(raw))
		}
		if eof {
			return res, io.EOF
		}
	}
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
