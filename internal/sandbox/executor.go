package sandbox

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"judge-engine/internal/config"
)

type Config struct {
	Limits  config.Limits
	Profile *Profile
	// WorkspaceRoot is the directory holding one workspace per run.
	WorkspaceRoot string
}

// Executor runs source code in a fresh container per call.
type Executor struct {
	manager *ContainerManager
	config  Config
}

func DefaultWorkspaceRoot() string {
	return filepath.Join(os.TempDir(), "executions", "raw")
}

func NewExecutor(manager *ContainerManager, config Config) *Executor {
	if config.WorkspaceRoot == "" {
		config.WorkspaceRoot = DefaultWorkspaceRoot()
	}

	return &Executor{manager: manager, config: config}
}

// Execute compiles and runs the request's source in the sandbox. Program
// failures are described in the result, only environment failures error.
func (e *Executor) Execute(ctx context.Context, request Request) (*ExecutionResult, error) {
	compiler, err := GetCompilerByLanguage(request.Language)

	if err != nil {
		return nil, err
	}

	if request.ID == "" {
		request.ID = uuid.NewString()
	}

	sandboxContainer := NewSandboxContainer(&request, e.manager.dockerClient, compiler,
		e.config.Profile, e.config.Limits, e.config.WorkspaceRoot)

	return e.manager.RunContainer(ctx, sandboxContainer)
}
