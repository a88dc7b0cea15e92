package sandbox

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrManagerStopped = errors.New("sandbox container manager has been stopped")

type ContainerManager struct {
	// the limiter is a buffered channel bounding the number of containers
	// that can run at any one time. Pushing blocks until a running container
	// is removed and pops its slot.
	limiter      chan struct{}
	dockerClient DockerClient
	containers   sync.Map
	finished     atomic.Bool
}

func NewSandboxContainerManager(dockerClient DockerClient, maxConcurrentContainers int) *ContainerManager {
	if maxConcurrentContainers <= 0 {
		maxConcurrentContainers = 1
	}

	return &ContainerManager{
		limiter:      make(chan struct{}, maxConcurrentContainers),
		dockerClient: dockerClient,
	}
}

// RunContainer runs the container once a slot is free and keeps track of it
// while it runs, so it can be killed on shutdown.
func (s *ContainerManager) RunContainer(ctx context.Context, sandboxContainer *Container) (*ExecutionResult, error) {
	if s.finished.Load() {
		return nil, ErrManagerStopped
	}

	select {
	case s.limiter <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for a free container slot")
	}

	s.containers.Store(sandboxContainer.request.ID, sandboxContainer)

	defer func() {
		s.containers.Delete(sandboxContainer.request.ID)
		<-s.limiter
	}()

	return sandboxContainer.Run(ctx)
}

// Active returns the number of containers currently running.
func (s *ContainerManager) Active() int {
	return len(s.limiter)
}

// Stop refuses new containers and kills every running one.
func (s *ContainerManager) Stop(ctx context.Context) {
	s.finished.Store(true)

	s.containers.Range(func(key, value any) bool {
		sandboxContainer := value.(*Container)

		containerID := sandboxContainer.containerID()

		if containerID == "" {
			return true
		}

		if err := s.dockerClient.ContainerKill(ctx, containerID, "SIGKILL"); err != nil {
			log.Warn().Err(err).Str("id", key.(string)).Msg("failed to kill container on shutdown")
			return true
		}

		log.Info().
			Str("id", key.(string)).
			Str("status", sandboxContainer.Status().String()).
			Msg("killed container on shutdown")

		return true
	})
}
