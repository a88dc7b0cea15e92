package docker

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type dockerDaemonConfig struct {
	Runtimes map[string]struct {
		Path string `json:"path"`
	} `json:"runtimes"`
}

const (
	GVisorRuntime = "runsc"

	daemonConfigPath = "/etc/docker/daemon.json"
)

// IsGvisorInstalled reports whether the local docker daemon has the gVisor
// runtime registered.
func IsGvisorInstalled() bool {
	return IsRuntimeRegistered(daemonConfigPath, GVisorRuntime)
}

// IsRuntimeRegistered reads the daemon configuration at path and reports
// whether runtime is one of its registered runtimes.
func IsRuntimeRegistered(path string, runtime string) bool {
	fileBytes, err := os.ReadFile(path)

	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	if err != nil {
		log.Err(err).Str("path", path).Msg("failed to read daemon file but it exists")
		return false
	}

	daemon := &dockerDaemonConfig{}

	if err := json.Unmarshal(fileBytes, daemon); err != nil {
		log.Err(err).Str("path", path).Msg("daemon file is not valid json")
		return false
	}

	_, ok := daemon.Runtimes[runtime]
	return ok
}
