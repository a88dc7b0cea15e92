package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()

	assert.Equal(t, 10_000, limits.MaxCodeLength)
	assert.Equal(t, 50, limits.MaxTestCases)
	assert.Equal(t, 1_000, limits.MaxArrayLength)
	assert.Equal(t, limits.TotalTimeout, limits.CompileTimeout+limits.RunTimeout)
}

func TestLoadSecurityPolicy(t *testing.T) {
	t.Run("should return defaults without a path", func(t *testing.T) {
		policy, err := LoadSecurityPolicy("")

		require.NoError(t, err)
		assert.Equal(t, DefaultSecurityPolicy(), policy)
	})

	t.Run("should only override provided fields", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"deniedKeywords":["goto"]}`), 0o600))

		policy, err := LoadSecurityPolicy(path)

		require.NoError(t, err)
		assert.Equal(t, []string{"goto"}, policy.DeniedKeywords)
		assert.Equal(t, DefaultSecurityPolicy().DeniedPatterns, policy.DeniedPatterns)
		assert.Equal(t, DefaultSecurityPolicy().AllowedLibraries, policy.AllowedLibraries)
	})

	t.Run("should fail on malformed policy files", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.json")
		require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))

		_, err := LoadSecurityPolicy(path)
		assert.Error(t, err)
	})

	t.Run("should fail on missing files", func(t *testing.T) {
		_, err := LoadSecurityPolicy(filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, err)
	})
}
