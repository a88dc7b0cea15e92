package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		raw  string
		want Environment
	}{
		{raw: "", want: Development},
		{raw: "staging", want: Staging},
		{raw: " Production ", want: Production},
		{raw: "development", want: Development},
		{raw: "qa", want: DefaultEnvironment},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEnvironment(tt.raw))
		})
	}
}

func TestCurrentEnvironment(t *testing.T) {
	t.Cleanup(func() { environmentOnce = sync.Once{} })

	environmentOnce = sync.Once{}
	t.Setenv(EnvironmentVariable, "production")

	assert.Equal(t, Production, CurrentEnvironment())

	t.Setenv(EnvironmentVariable, "staging")
	assert.Equal(t, Production, CurrentEnvironment(), "read once per process")
}

func TestEnvironmentIsolated(t *testing.T) {
	assert.False(t, Development.Isolated())
	assert.True(t, Staging.Isolated())
	assert.True(t, Production.Isolated())
}
