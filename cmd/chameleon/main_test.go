package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chameleon version dev")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
sweep:
  reclaim_mode: pending
workflow:
  name: intake
  locations:
    - id: inbox
      role: clerk
      policy:
        name: route
        branches:
          - default: true
            destination: done
    - id: done
      role: archivist
      terminal: true
`), 0o600))

	out, err := execute(t, "validate", "--config", good)
	require.NoError(t, err)
	assert.Contains(t, out, "Entry points: inbox")

	stranded := filepath.Join(dir, "stranded.yaml")
	require.NoError(t, os.WriteFile(stranded, []byte(`
sweep:
  reclaim_mode: pending
workflow:
  name: loop
  locations:
    - id: inbox
      role: clerk
      policy:
        name: route
        branches:
          - default: true
            destination: inbox
    - id: done
      role: archivist
      terminal: true
`), 0o600))

	_, err = execute(t, "validate", "--config", stranded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No terminal location reachable from 'inbox'")
}
