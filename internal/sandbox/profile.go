package sandbox

import (
	"github.com/rs/zerolog/log"

	"judge-engine/internal/config"
	"judge-engine/internal/docker"
	"judge-engine/internal/memory"
)

type Runtime string

const (
	Default Runtime = ""
	GVisor  Runtime = docker.GVisorRuntime
)

type Profile struct {
	// The runtime the container image will be used. Please reference Runtime
	// for more information about which runtimes are currently supported.
	Runtime Runtime

	// The maximum amount of memory the container can use. If you set this
	// option, the minimum allowed value is 6m (6 megabytes).
	Memory memory.Memory

	// The memory plus swap ceiling, equal to Memory keeps the container off
	// swap entirely.
	MemorySwap memory.Memory

	// The stack ulimit of every process in the container.
	Stack memory.Memory

	PidsLimit int64
	NanoCPUs  int64
}

// GetProfileForEnvironment builds the container profile for the environment
// from the configured limits. Isolated environments ask for gVisor, which is
// only used when the docker daemon has it registered.
func GetProfileForEnvironment(environment config.Environment, limits config.Limits) *Profile {
	runtime := Default

	if environment.Isolated() {
		runtime = GVisor
	}

	if runtime == GVisor && !docker.IsGvisorInstalled() {
		log.Warn().
			Str("environment", string(environment)).
			Msg("gvisor runtime is not installed, falling back to the default runtime")

		runtime = Default
	}

	return &Profile{
		Runtime:    runtime,
		Memory:     limits.Memory,
		MemorySwap: limits.Memory,
		Stack:      limits.Stack,
		PidsLimit:  limits.PidsLimit,
		NanoCPUs:   limits.NanoCPUs,
	}
}
