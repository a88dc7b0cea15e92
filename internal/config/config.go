// Package config holds the process wide settings of the judge: the
// deployment environment, the resource limits and the security policy.
package config

import (
	"os"
	"strings"
	"sync"
)

// EnvironmentVariable selects the deployment environment.
const EnvironmentVariable = "environment"

type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

const DefaultEnvironment = Development

var (
	currentEnvironment Environment
	environmentOnce    sync.Once
)

// ParseEnvironment maps a raw value onto a known environment, unknown and
// empty values fall back to DefaultEnvironment.
func ParseEnvironment(raw string) Environment {
	switch environment := Environment(strings.ToLower(strings.TrimSpace(raw))); environment {
	case Development, Staging, Production:
		return environment
	default:
		return DefaultEnvironment
	}
}

// CurrentEnvironment is read from the environment variable once per process.
func CurrentEnvironment() Environment {
	environmentOnce.Do(func() {
		currentEnvironment = ParseEnvironment(os.Getenv(EnvironmentVariable))
	})

	return currentEnvironment
}

// Isolated reports whether containers must run under the strongest runtime
// the daemon offers.
func (e Environment) Isolated() bool {
	return e == Staging || e == Production
}
