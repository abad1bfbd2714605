package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI in an empty working directory with the in-memory store
func run(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("ADBROLL_STORE_TYPE", "memory")
	t.Setenv("ADBROLL_AI_PROVIDER", "none")

	var out bytes.Buffer
	root := newRootCommand(&cli{out: &out})
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})

	if err := root.ExecuteContext(context.Background()); err != nil {
		return nil, err
	}

	var result map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	return result, nil
}

func TestMatchCommand(t *testing.T) {
	result, err := run(t, "match", "--batch-size", "10")
	require.NoError(t, err)
	assert.Equal(t, float64(0), result["processed"])
	assert.Equal(t, true, result["complete"])
	assert.Equal(t, float64(10), result["batchSize"])
}

func TestMatchCommand_InvalidThreshold(t *testing.T) {
	_, err := run(t, "match", "--threshold", "2")
	assert.Error(t, err)
}

func TestResetCommand(t *testing.T) {
	result, err := run(t, "reset")
	require.NoError(t, err)
	assert.Equal(t, float64(0), result["reset"])
}

func TestEnqueueCommand(t *testing.T) {
	result, err := run(t, "enqueue", "smart", "--batch-size", "5")
	require.NoError(t, err)
	assert.Equal(t, "smart", result["kind"])
	assert.Equal(t, "pending", result["status"])

	_, err = run(t, "enqueue", "explode")
	assert.Error(t, err)
}

func TestImportCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,price,commission_rate\nTermo,100,10%\n"), 0o600))

	result, err := run(t, "import", path)
	require.NoError(t, err)
	assert.Equal(t, float64(1), result["imported"])

	_, err = run(t, "import", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestWorkCommand(t *testing.T) {
	result, err := run(t, "work")
	require.NoError(t, err)
	assert.Equal(t, float64(0), result["processed"])
}
