package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/config"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/sweep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
log:
  level: debug
store:
  backend: sqlite
  dsn: file:chameleon.db
sweep:
  interval: 10s
  queue_timeout: 1h
  reclaim_mode: pending
sync:
  escalation_threshold: 45m
workflow:
  name: invoices
  variables: [amount, approved]
  locations:
    - id: intake
      role: clerk
      policy:
        name: triage
        branches:
          - condition: amount > 50000
            destination: review
          - default: true
            destination: done
    - id: review
      role: manager
      requires:
        approved: bool
        note: string?
      policy:
        name: approve
        branches:
          - condition: approved == true
            destination: done
          - on_error: true
            destination: intake
    - id: done
      role: archivist
      terminal: true
`

func TestParse_Valid(t *testing.T) {
	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "defaults survive")
	assert.Equal(t, config.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, 10*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, sweep.DefaultExecutionTimeout, cfg.Sweep.ExecutionTimeout)
	assert.Equal(t, 45*time.Minute, cfg.Sync.EscalationThreshold)

	s := cfg.SweepSettings()
	assert.Equal(t, sweep.ReclaimToPending, s.ReclaimMode)
	assert.Equal(t, time.Hour, s.QueueTimeout)

	wf := cfg.WorkflowDefinition()
	assert.Equal(t, "invoices", wf.Name)
	require.Len(t, wf.Locations, 3)
	assert.Equal(t, []string{"intake"}, wf.LocationsForRole("clerk"))
	require.NotNil(t, wf.Locations[1].Policy)
	assert.True(t, wf.Locations[1].Policy.Branches[1].OnError)
	assert.Equal(t, map[string]string{"approved": "bool", "note": "string?"}, wf.Locations[1].Requires)
}

func TestParse_ReclaimModeRequired(t *testing.T) {
	_, err := config.Parse([]byte(strings.Replace(validYAML, "reclaim_mode: pending", "", 1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reclaim mode is required")
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := config.Parse([]byte(validYAML + "\nsurprise: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "surprise")
}

func TestParse_ReportsAllWorkflowProblems(t *testing.T) {
	bad := `
sweep:
  reclaim_mode: failed
workflow:
  name: broken
  variables: [amount]
  locations:
    - id: intake
      role: clerk
      policy:
        name: triage
        branches:
          - condition: amount >
            destination: review
          - condition: colour == "red"
            destination: nowhere
    - id: review
      role: ""
      requires:
        total: money
`
	_, err := config.Parse([]byte(bad))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "at least one terminal location")
	assert.Contains(t, msg, `unknown destination "nowhere"`)
	assert.Contains(t, msg, `location "review" has no role`)
	assert.Contains(t, msg, `location "review" needs a routing policy`)
	assert.Contains(t, msg, "colour")
	assert.Contains(t, msg, "unsupported type: money")
}

func TestParse_StoreValidation(t *testing.T) {
	tests := []struct {
		name  string
		store string
		want  string
	}{
		{"unknown backend", "backend: etcd", `unknown backend "etcd"`},
		{"redis without addr", "backend: redis", "store.addr is required"},
		{"locks without redis", "backend: memory\n  distributed_locks: true", "requires the redis backend"},
		{"short key", "backend: memory\n  encryption_key: abcd", "want 32 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := strings.Replace(validYAML, "backend: sqlite\n  dsn: file:chameleon.db", tt.store, 1)
			_, err := config.Parse([]byte(doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEncryption(t *testing.T) {
	key := strings.Repeat("ab", 32)
	doc := strings.Replace(validYAML, "dsn: file:chameleon.db", "dsn: file:chameleon.db\n  encryption_key: "+key, 1)
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)

	enc, err := cfg.Encryption()
	require.NoError(t, err)
	require.NotNil(t, enc)
	assert.Len(t, enc.ActiveKey, 32)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chameleon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "invoices", cfg.Workflow.Name)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
