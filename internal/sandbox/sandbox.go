//go:generate stringer -type=ContainerStatus

package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/config"
	"judge-engine/internal/judgeerr"
	"judge-engine/internal/memory"
	"judge-engine/internal/sandbox/unix"
)

type ContainerStatus int

const (
	// NotRan - The container has not yet executed. This is the default status
	// and is only updated once the runner reports or the container is killed.
	NotRan ContainerStatus = iota

	Created
	Running
	Killing
	Killed
	Finished

	MemoryConstraintExceeded
	TimeLimitExceeded
	CompilationFailed
	RunTimeError
)

const (
	runnerConfigFile = "runner.json"
	runnerOutputFile = "runner-out.json"
	mountPath        = "/input"

	// cleanupTimeout bounds the docker calls made after the run is over, they
	// must happen even when the caller's context is already done.
	cleanupTimeout = 10 * time.Second
)

type Request struct {
	// The internal id of the request, also the name of the container and of
	// the workspace directory.
	ID string
	// The language of the source, selecting the compiler and the image.
	Language string
	// The complete source that will be written to the workspace.
	SourceCode string
	// Optional standard input handed to the program.
	Stdin string
}

// ExecutionParameters is written to runner.json and read by the runner
// inside the container.
type ExecutionParameters struct {
	ID             string        `json:"id"`
	Language       string        `json:"language"`
	SourceFile     string        `json:"sourceFile"`
	CompileSteps   []string      `json:"compileSteps"`
	CompileTimeout time.Duration `json:"compileTimeout"`
	Run            string        `json:"runSteps"`
	RunTimeout     time.Duration `json:"runTimeout"`
	StandardInput  string        `json:"standardInput"`
	MaxOutputSize  int           `json:"maxOutputSize"`
}

func (e2 *ExecutionParameters) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", e2.ID).
		Str("language", e2.Language).
		Bool("compiled", len(e2.CompileSteps) > 0)
}

// ExecutionResponse is written by the runner to runner-out.json.
type ExecutionResponse struct {
	Status         ContainerStatus `json:"status"`
	CompileTime    int64           `json:"compileTime"`
	Runtime        int64           `json:"runTime"`
	CompilerOutput string          `json:"compilerOutput"`
	ExitCode       int             `json:"exitCode"`
	PeakMemory     memory.Memory   `json:"peakMemory"`
}

// ExecutionResult is everything known about one sandboxed run. Failures of
// the program are described here, never returned as errors.
type ExecutionResult struct {
	ExitCode int
	// Stdout is the interleaved stdout and stderr of the container, capped
	// at the output size limit.
	Stdout   string
	Stderr   string
	TimedOut bool
	Status   ContainerStatus

	CompilerOutput string
	CompileTime    time.Duration
	Runtime        time.Duration
	PeakMemory     memory.Memory
}

func (r *ExecutionResult) CompileFailed() bool {
	return r.Status == CompilationFailed
}

// Container is a single sandboxed run. It owns its workspace exclusively and
// removes it, along with the docker container, before Run returns.
type Container struct {
	ID string

	mu     sync.Mutex
	status ContainerStatus

	client   DockerClient
	request  *Request
	compiler *LanguageCompiler
	profile  *Profile
	limits   config.Limits
	path     string
}

func NewSandboxContainer(request *Request, dockerClient DockerClient, compiler *LanguageCompiler,
	profile *Profile, limits config.Limits, workspaceRoot string) *Container {
	return &Container{
		status:   NotRan,
		client:   dockerClient,
		request:  request,
		compiler: compiler,
		profile:  profile,
		limits:   limits,
		path:     filepath.Join(workspaceRoot, request.ID),
	}
}

// Run the sandbox container to completion. Errors are only returned when the
// environment failed, they are always *judgeerr.InfrastructureError or the
// context error of a caller that gave up.
func (d *Container) Run(ctx context.Context) (*ExecutionResult, error) {
	defer d.cleanup()

	if err := d.prepare(); err != nil {
		return nil, judgeerr.NewInfrastructureError("prepare workspace", err)
	}

	if err := d.execute(ctx); err != nil {
		return nil, judgeerr.NewInfrastructureError("start container", err)
	}

	timedOut, exitCode, err := d.wait(ctx)

	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "execution abandoned")
		}

		return nil, judgeerr.NewInfrastructureError("wait for container", err)
	}

	stdout, stderr, err := d.logs(ctx)

	if err != nil {
		return nil, judgeerr.NewInfrastructureError("read container logs", err)
	}

	result := &ExecutionResult{
		ExitCode: int(exitCode),
		Stdout:   stdout,
		Stderr:   stderr,
		TimedOut: timedOut,
	}

	d.resolve(ctx, result)

	log.Info().
		Str("id", d.request.ID).
		Str("status", result.Status.String()).
		Int("exitCode", result.ExitCode).
		Dur("runtime", result.Runtime).
		Bool("timedOut", result.TimedOut).
		Msg("sandbox execution finished")

	return result, nil
}

// prepare creates the workspace holding the source, the standard input and
// the runner configuration.
func (d *Container) prepare() error {
	if err := os.MkdirAll(d.path, 0o750); err != nil {
		return errors.Wrap(err, "failed to make required directories")
	}

	sourceFilePath := filepath.Join(d.path, d.compiler.SourceFile)

	if err := os.WriteFile(sourceFilePath, []byte(d.request.SourceCode+"\n"), 0o640); err != nil {
		return errors.Wrap(err, "failed to write source code")
	}

	inputFilePath := filepath.Join(d.path, d.compiler.InputFile)

	if err := os.WriteFile(inputFilePath, []byte(d.request.Stdin), 0o640); err != nil {
		return errors.Wrap(err, "failed to write standard in data")
	}

	parameters := ExecutionParameters{
		ID:             d.request.ID,
		Language:       d.compiler.Language(),
		SourceFile:     d.compiler.SourceFile,
		CompileSteps:   d.compiler.compileSteps,
		CompileTimeout: d.limits.CompileTimeout,
		Run:            d.compiler.runSteps,
		RunTimeout:     d.limits.RunTimeout,
		StandardInput:  d.compiler.InputFile,
		MaxOutputSize:  d.limits.MaxOutputSize,
	}

	log.Debug().Object("parameters", &parameters).Msg("writing runner configuration")

	runnerJSONBytes, _ := json.Marshal(parameters)

	if err := os.WriteFile(filepath.Join(d.path, runnerConfigFile), runnerJSONBytes, 0o640); err != nil {
		return errors.Wrap(err, "failed to write runner configuration")
	}

	return nil
}

// execute creates and starts the container with every isolation option the
// profile allows.
func (d *Container) execute(ctx context.Context) error {
	workingDirectory := unix.ConvertPathToUnix(d.path)
	pidsLimit := d.profile.PidsLimit

	create, err := d.client.ContainerCreate(
		ctx,
		&container.Config{
			Entrypoint:      []string{"/runner"},
			Image:           d.compiler.VirtualMachineName,
			NetworkDisabled: true,
			WorkingDir:      mountPath,
		},
		&container.HostConfig{
			Runtime:     string(d.profile.Runtime),
			NetworkMode: "none",
			CapDrop:     []string{"ALL"},
			SecurityOpt: []string{"no-new-privileges"},
			Binds:       []string{fmt.Sprintf("%s:%s", workingDirectory, mountPath)},
			Resources: container.Resources{
				Memory:     d.profile.Memory.Bytes(),
				MemorySwap: d.profile.MemorySwap.Bytes(),
				NanoCPUs:   d.profile.NanoCPUs,
				PidsLimit:  &pidsLimit,
				Ulimits: []*units.Ulimit{
					{Name: "stack", Soft: d.profile.Stack.Bytes(), Hard: d.profile.Stack.Bytes()},
				},
			},
		},
		nil,
		nil,
		d.request.ID,
	)

	if err != nil {
		return errors.Wrap(err, "failed to create container")
	}

	d.mu.Lock()
	d.ID = create.ID
	d.status = Created
	d.mu.Unlock()

	if err := d.client.ContainerStart(ctx, d.ID, container.StartOptions{}); err != nil {
		return errors.Wrap(err, "failed to start the container")
	}

	d.setStatus(Running)
	return nil
}

// wait blocks until the container stops or the wall clock budget is spent,
// in which case the container is killed.
func (d *Container) wait(ctx context.Context) (timedOut bool, exitCode int64, err error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.limits.TotalTimeout)
	defer cancel()

	statusCh, errCh := d.client.ContainerWait(waitCtx, d.ID, container.WaitConditionNotRunning)

	select {
	case status := <-statusCh:
		if status.Error != nil {
			return false, status.StatusCode, errors.New(status.Error.Message)
		}

		return false, status.StatusCode, nil
	case err := <-errCh:
		if waitCtx.Err() == nil {
			return false, 0, errors.Wrap(err, "failed to wait for container")
		}
	case <-waitCtx.Done():
	}

	d.kill()

	if ctx.Err() != nil {
		return false, 0, ctx.Err()
	}

	return true, 0, nil
}

func (d *Container) kill() {
	d.setStatus(Killing)

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := d.client.ContainerKill(ctx, d.ID, "SIGKILL"); err != nil {
		log.Warn().Err(err).Str("id", d.request.ID).Msg("failed to kill container")
		return
	}

	d.setStatus(Killed)
}

// logs demultiplexes the container output into the interleaved stream and a
// separate stderr copy.
func (d *Container) logs(ctx context.Context) (stdout string, stderr string, err error) {
	logsCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	reader, err := d.client.ContainerLogs(logsCtx, d.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})

	if err != nil {
		return "", "", errors.Wrap(err, "failed to fetch container logs")
	}

	defer reader.Close()

	combined := newCappedBuffer(d.limits.MaxOutputSize)
	errorsOnly := newCappedBuffer(d.limits.MaxOutputSize)

	if _, err := stdcopy.StdCopy(combined, io.MultiWriter(combined, errorsOnly), reader); err != nil {
		return "", "", errors.Wrap(err, "failed to demultiplex container logs")
	}

	return combined.String(), errorsOnly.String(), nil
}

// resolve fills the result from the runner output. A missing runner output
// means the runner itself never finished, most likely killed by the kernel.
func (d *Container) resolve(ctx context.Context, result *ExecutionResult) {
	response, err := d.getSandboxRunnerOutput()

	switch {
	case result.TimedOut:
		result.Status = TimeLimitExceeded
	case err == nil:
		result.Status = response.Status
	case d.oomKilled(ctx):
		result.Status = MemoryConstraintExceeded
	default:
		log.Warn().Err(err).Str("id", d.request.ID).Msg("runner output missing")
		result.Status = RunTimeError
	}

	if response != nil {
		result.CompilerOutput = truncate(response.CompilerOutput, d.limits.MaxOutputSize)
		result.CompileTime = time.Duration(response.CompileTime) * time.Nanosecond
		result.Runtime = time.Duration(response.Runtime) * time.Nanosecond
		result.PeakMemory = response.PeakMemory

		if response.ExitCode != 0 {
			result.ExitCode = response.ExitCode
		}
	}

	d.setStatus(result.Status)
}

func (d *Container) oomKilled(ctx context.Context) bool {
	inspectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	inspect, err := d.client.ContainerInspect(inspectCtx, d.ID)

	if err != nil || inspect.ContainerJSONBase == nil || inspect.State == nil {
		return false
	}

	return inspect.State.OOMKilled
}

func (d *Container) getSandboxRunnerOutput() (*ExecutionResponse, error) {
	fileBytes, err := os.ReadFile(filepath.Join(d.path, runnerOutputFile))

	if err != nil {
		return nil, errors.Wrap(err, "failed to open runner-out.json file")
	}

	var response ExecutionResponse

	if err := json.Unmarshal(fileBytes, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse runner-out.json file")
	}

	return &response, nil
}

// cleanup removes the docker container and the workspace. It runs on every
// exit path of Run.
func (d *Container) cleanup() {
	if d.ID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		if err := d.client.ContainerRemove(ctx, d.ID, container.RemoveOptions{Force: true}); err != nil {
			log.Warn().Err(err).Str("id", d.request.ID).Msg("failed to remove container")
		}
	}

	if err := os.RemoveAll(d.path); err != nil {
		log.Error().Err(err).Str("path", d.path).Msg("failed to clean up workspace")
	}
}

// cappedBuffer keeps the first limit bytes written to it and silently drops
// the rest, so a chatty program cannot exhaust memory.
type cappedBuffer struct {
	buffer bytes.Buffer
	limit  int
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if remaining := c.limit - c.buffer.Len(); remaining > 0 {
		c.buffer.Write(p[:min(len(p), remaining)])
	}

	return len(p), nil
}

func (c *cappedBuffer) String() string {
	return c.buffer.String()
}

func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}

	return text[:limit]
}

func (d *Container) Status() ContainerStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.status
}

func (d *Container) containerID() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.ID
}

func (d *Container) setStatus(status ContainerStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.status = status
}
