// judge-runner is the entrypoint of the sandbox image. It compiles the
// mounted source, runs the program once the build succeeded and writes the
// outcome to runner-out.json for the host to read.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/config"
	"judge-engine/internal/memory"
	"judge-engine/internal/pid"
	"judge-engine/internal/sandbox"
)

const (
	inputDirectory = "/input"
	configFile     = "runner.json"
	outputFile     = "runner-out.json"
)

type runner struct {
	root   string
	params sandbox.ExecutionParameters
	stdout io.Writer
	stderr io.Writer
}

// cappedWriter forwards writes until the limit and silently drops the rest,
// the program never sees a failed write.
type cappedWriter struct {
	w         io.Writer
	remaining int
}

func (c *cappedWriter) Write(p []byte) (int, error) {
	if c.remaining > 0 {
		chunk := p

		if len(chunk) > c.remaining {
			chunk = chunk[:c.remaining]
		}

		written, err := c.w.Write(chunk)
		c.remaining -= written

		if err != nil {
			return written, err
		}
	}

	return len(p), nil
}

func newRunner(root string, stdout, stderr io.Writer) (*runner, error) {
	fileBytes, err := os.ReadFile(filepath.Join(root, configFile))

	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.New("runner.json configuration file does not exist and container cannot be executed")
	}

	if err != nil {
		return nil, errors.Wrap(err, "runner.json failed to be read")
	}

	r := &runner{root: root}

	if err := json.Unmarshal(fileBytes, &r.params); err != nil {
		return nil, errors.Wrap(err, "runner.json failed to be parsed")
	}

	limit := r.params.MaxOutputSize

	if limit <= 0 {
		limit = config.DefaultLimits().MaxOutputSize
	}

	r.stdout = &cappedWriter{w: stdout, remaining: limit}
	r.stderr = &cappedWriter{w: stderr, remaining: limit}

	return r, nil
}

// compile runs every compile step in order within the compile budget and
// stops at the first failing step.
func (r *runner) compile(ctx context.Context) (compileTime time.Duration, output string, err error) {
	if len(r.params.CompileSteps) == 0 {
		return 0, "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.params.CompileTimeout)
	defer cancel()

	var combined bytes.Buffer
	start := time.Now()

	for _, step := range r.params.CompileSteps {
		command := strings.Fields(step)
		cmd := exec.CommandContext(ctx, command[0], command[1:]...)
		cmd.Dir = r.root

		stepOutput, cmdErr := cmd.CombinedOutput()
		combined.Write(stepOutput)

		if ctx.Err() == context.DeadlineExceeded {
			combined.WriteString("compilation exceeded the time limit\n")
			return time.Since(start), combined.String(), ctx.Err()
		}

		if cmdErr != nil {
			return time.Since(start), combined.String(), cmdErr
		}
	}

	return time.Since(start), combined.String(), nil
}

// run executes the program with the standard input file, sampling its
// memory until it exits.
func (r *runner) run(ctx context.Context) (runtime time.Duration, peak memory.Memory, exitCode int, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.params.RunTimeout)
	defer cancel()

	command := strings.Fields(r.params.Run)

	inputFile, err := os.Open(filepath.Join(r.root, r.params.StandardInput))

	if err != nil {
		return 0, 0, 0, errors.Wrap(err, "failed to open standard input")
	}

	defer inputFile.Close()

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = r.root
	cmd.Stdin = inputFile
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	start := time.Now()

	if err := cmd.Start(); err != nil {
		return 0, 0, 0, errors.Wrap(err, "failed to start program")
	}

	tracker := pid.TrackPeak(cmd.Process.Pid)
	waitErr := cmd.Wait()
	runtime = time.Since(start)
	peak = tracker.Stop()

	if ctx.Err() == context.DeadlineExceeded {
		return runtime, peak, -1, ctx.Err()
	}

	var exitErr *exec.ExitError

	if errors.As(waitErr, &exitErr) {
		return runtime, peak, exitErr.ExitCode(), waitErr
	}

	return runtime, peak, 0, waitErr
}

func (r *runner) execute(ctx context.Context) sandbox.ExecutionResponse {
	response := sandbox.ExecutionResponse{Status: sandbox.Finished}

	compileTime, compilerOutput, err := r.compile(ctx)

	response.CompileTime = compileTime.Nanoseconds()
	response.CompilerOutput = compilerOutput

	if err != nil {
		response.Status = sandbox.CompilationFailed
		return response
	}

	runtime, peak, exitCode, err := r.run(ctx)

	response.Runtime = runtime.Nanoseconds()
	response.PeakMemory = peak
	response.ExitCode = exitCode

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		response.Status = sandbox.TimeLimitExceeded
	case err != nil:
		response.Status = sandbox.RunTimeError
	}

	return response
}

func (r *runner) writeResponse(response sandbox.ExecutionResponse) error {
	responseBytes, _ := json.Marshal(response)
	return os.WriteFile(filepath.Join(r.root, outputFile), responseBytes, 0o640)
}

func main() {
	r, err := newRunner(inputDirectory, os.Stdout, os.Stderr)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure runner")
	}

	response := r.execute(context.Background())

	if err := r.writeResponse(response); err != nil {
		log.Fatal().Err(err).Msg("failed to write runner output")
	}
}
