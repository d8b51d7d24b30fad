package events

import (
	"runtime"

	"github.com/offlinefirst/mousedynamics/pkg/permissions"
)

// Environment summarises capture backend support.
type Environment struct {
	Provider   string
	Available  bool
	Permission string
	Message    string
	Guidance   string
}

const (
	providerQuartz    = "quartz_event_tap"
	providerSynthetic = "synthetic"
)

// DetectEnvironment reports whether live pointer capture can use the Quartz tap.
func DetectEnvironment() Environment {
	return detectEnvironment(runtime.GOOS, permissions.ProbeAccessibility(nil))
}

func detectEnvironment(goos string, accessibility permissions.ProbeResult) Environment {
	env := Environment{
		Provider:   providerSynthetic,
		Permission: accessibility.StatusString(),
		Message:    accessibility.Message,
		Guidance:   accessibility.Guidance,
		Available:  true,
	}

	if goos == "darwin" {
		env.Provider = providerQuartz
		env.Available = accessibility.Status != permissions.StatusDenied
		if !env.Available && env.Message == "" {
			env.Message = "accessibility permission missing"
		}
	} else {
		env.Permission = "not_applicable"
		env.Message = "synthetic pointer source (live capture requires macOS)"
	}

	if !env.Available {
		env.Provider = providerSynthetic
	}
	return env
}
