package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/offlinefirst/mousedynamics/pkg/permissions"
)

func TestDetectEnvironmentSetsFields(t *testing.T) {
	env := DetectEnvironment()
	assert.NotEmpty(t, env.Provider)
	assert.NotEmpty(t, env.Permission)
	assert.NotEmpty(t, env.Message)
}

func TestDetectEnvironmentDarwinDenied(t *testing.T) {
	env := detectEnvironment("darwin", permissions.ProbeResult{Status: permissions.StatusDenied})
	assert.False(t, env.Available)
	assert.Equal(t, providerSynthetic, env.Provider)
	assert.Equal(t, "accessibility permission missing", env.Message)
}

func TestDetectEnvironmentLinuxUsesSynthetic(t *testing.T) {
	env := detectEnvironment("linux", permissions.ProbeResult{Status: permissions.StatusUnavailable})
	assert.True(t, env.Available)
	assert.Equal(t, providerSynthetic, env.Provider)
	assert.Equal(t, "not_applicable", env.Permission)
}
