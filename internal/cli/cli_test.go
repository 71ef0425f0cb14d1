package cli_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/cli"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configYAML = `
log:
  level: warn
sweep:
  reclaim_mode: failed
workflow:
  name: orders
  variables: [total]
  locations:
    - id: intake
      role: clerk
      policy:
        name: route
        branches:
          - default: true
            destination: shipped
    - id: shipped
      role: archivist
      terminal: true
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chameleon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))
	return path
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t)

	cfg, err := cli.LoadConfig(cli.Options{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)

	cfg, err = cli.LoadConfig(cli.Options{ConfigPath: path, LogLevel: "error"})
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)

	cfg, err = cli.LoadConfig(cli.Options{ConfigPath: path, LogLevel: "error", Debug: true})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	_, err = cli.LoadConfig(cli.Options{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	sys, _, err := cli.OpenSystem(cli.Options{ConfigPath: writeConfig(t)})
	require.NoError(t, err)
	t.Cleanup(func() { sys.Close() })
	ctx := context.Background()

	u, err := sys.Engine.CreateRoot(ctx, "intake", map[string]any{"total": 12}, "phone order")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, cli.ShowHistory(ctx, sys, &out, u.ID))
	assert.Contains(t, out.String(), "# "+u.ID)
	assert.Contains(t, out.String(), "phone order")
	assert.Contains(t, out.String(), "_Nothing audited._")

	out.Reset()
	ok, err := cli.Verify(ctx, sys, &out, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "Breaks: none")

	out.Reset()
	require.NoError(t, cli.Graph(ctx, sys, &out, u.ID))
	assert.True(t, strings.HasPrefix(out.String(), "graph TD\n"))
	assert.Contains(t, out.String(), "class intake current;")

	out.Reset()
	require.NoError(t, cli.Graph(ctx, sys, &out, ""))
	assert.NotContains(t, out.String(), "classDef")

	assert.ErrorIs(t, cli.ShowHistory(ctx, sys, &out, "nope"), domain.ErrUOWNotFound)
}

func TestRunWork_SubmitsFromInput(t *testing.T) {
	sys, logger, err := cli.OpenSystem(cli.Options{ConfigPath: writeConfig(t)})
	require.NoError(t, err)
	t.Cleanup(func() { sys.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	u, err := sys.Engine.CreateRoot(ctx, "intake", map[string]any{"total": 12}, "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- cli.RunWork(ctx, sys, cli.WorkOptions{
			WorkerID: "alice",
			Role:     "clerk",
			Input:    strings.NewReader("total=15\nsubmit\n"),
			Output:   io.Discard,
		}, logger)
	}()

	assert.Eventually(t, func() bool {
		got, err := sys.Engine.Get(ctx, u.ID)
		return err == nil && got.Location == "shipped"
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	got, err := sys.Engine.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 15, got.Attributes["total"])
}

func TestSignalContext_CancelWithoutSignal(t *testing.T) {
	sc := cli.NewSignalContext(context.Background())
	sc.Cancel()
	<-sc.Done()
	assert.Nil(t, sc.Signal())
}

func TestRunProcessWorkers(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	sys, logger, err := cli.OpenSystem(cli.Options{ConfigPath: writeConfig(t)})
	require.NoError(t, err)
	t.Cleanup(func() { sys.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	u, err := sys.Engine.CreateRoot(ctx, "intake", map[string]any{"total": 12}, "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "workers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers:
  - id: packer
    role: clerk
    command: sh
    args: ["-c", "echo '{\"attributes\":{\"packed\":true},\"rationale\":\"boxed\"}'"]
`), 0o600))

	done := make(chan error, 1)
	go func() { done <- cli.RunProcessWorkers(ctx, sys, path, logger) }()

	assert.Eventually(t, func() bool {
		got, err := sys.Engine.Get(ctx, u.ID)
		return err == nil && got.Location == "shipped"
	}, 3*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	got, err := sys.Engine.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, true, got.Attributes["packed"])
}
