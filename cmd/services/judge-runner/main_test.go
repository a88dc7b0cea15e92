//go:build linux

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"judge-engine/internal/sandbox"
)

func newTestRunner(t *testing.T, params sandbox.ExecutionParameters, stdin string) (*runner, *bytes.Buffer, *bytes.Buffer) {
	root := t.TempDir()

	params.StandardInput = "input"

	if params.CompileTimeout == 0 {
		params.CompileTimeout = 5 * time.Second
	}

	if params.RunTimeout == 0 {
		params.RunTimeout = 5 * time.Second
	}

	data, err := json.Marshal(params)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, configFile), data, 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(root, "input"), []byte(stdin), 0o640))

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	r, err := newRunner(root, stdout, stderr)
	require.NoError(t, err)

	return r, stdout, stderr
}

func TestRunnerFinished(t *testing.T) {
	r, stdout, _ := newTestRunner(t, sandbox.ExecutionParameters{
		CompileSteps: []string{"true"},
		Run:          "cat",
	}, "TEST_CASE_1:1:5:8\n")

	response := r.execute(context.Background())

	assert.Equal(t, sandbox.Finished, response.Status)
	assert.Equal(t, 0, response.ExitCode)
	assert.Equal(t, "TEST_CASE_1:1:5:8\n", stdout.String())

	require.NoError(t, r.writeResponse(response))

	data, err := os.ReadFile(filepath.Join(r.root, outputFile))
	require.NoError(t, err)

	var written sandbox.ExecutionResponse
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Equal(t, sandbox.Finished, written.Status)
}

func TestRunnerCompileFailureSkipsRun(t *testing.T) {
	r, stdout, _ := newTestRunner(t, sandbox.ExecutionParameters{
		CompileSteps: []string{"false"},
		Run:          "echo ran",
	}, "")

	response := r.execute(context.Background())

	assert.Equal(t, sandbox.CompilationFailed, response.Status)
	assert.Empty(t, stdout.String())
}

func TestRunnerRuntimeError(t *testing.T) {
	r, _, stderr := newTestRunner(t, sandbox.ExecutionParameters{Run: "sh ./crash.sh"}, "")

	require.NoError(t, os.WriteFile(filepath.Join(r.root, "crash.sh"), []byte("echo boom >&2\nexit 3\n"), 0o750))

	response := r.execute(context.Background())

	assert.Equal(t, sandbox.RunTimeError, response.Status)
	assert.Equal(t, 3, response.ExitCode)
	assert.Equal(t, "boom\n", stderr.String())
}

func TestRunnerTimeLimit(t *testing.T) {
	r, _, _ := newTestRunner(t, sandbox.ExecutionParameters{
		Run:        "sleep 5",
		RunTimeout: 50 * time.Millisecond,
	}, "")

	response := r.execute(context.Background())

	assert.Equal(t, sandbox.TimeLimitExceeded, response.Status)
}

func TestRunnerCapsOutput(t *testing.T) {
	r, stdout, _ := newTestRunner(t, sandbox.ExecutionParameters{
		Run:           "cat",
		MaxOutputSize: 4,
	}, "0123456789")

	response := r.execute(context.Background())

	assert.Equal(t, sandbox.Finished, response.Status)
	assert.Equal(t, "0123", stdout.String())
}

func TestMissingConfiguration(t *testing.T) {
	_, err := newRunner(t.TempDir(), &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "does not exist")
}
