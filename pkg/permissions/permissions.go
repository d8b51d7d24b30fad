// Package permissions reports whether the pointer event tap may observe input.
package permissions

import (
	"os"
	"runtime"
	"strings"
)

// Status is the coarse accessibility trust state the event tap depends on.
type Status string

const (
	StatusUnknown        Status = "unknown"
	StatusGranted        Status = "granted"
	StatusDenied         Status = "denied"
	StatusPromptRequired Status = "prompt"
	// StatusUnavailable means the platform has no accessibility gate, so live
	// pointer capture falls back to the synthetic source.
	StatusUnavailable Status = "unavailable"
)

// AccessibilityEnv pins the probe result, e.g. in CI or after 'tccutil reset'.
const AccessibilityEnv = "MOUSEDYN_ACCESSIBILITY"

// ProbeResult is what the capture command and doctor report about pointer access.
type ProbeResult struct {
	Status   Status
	Message  string
	Guidance string
}

// LookupEnvFunc resolves environment variables; nil means os.LookupEnv.
type LookupEnvFunc func(string) (string, bool)

var lookupEnv = os.LookupEnv

var goos = runtime.GOOS

const resetGuidance = "grant the terminal Accessibility access in System Settings, or run 'tccutil reset Accessibility' and unset " + AccessibilityEnv

// ProbeAccessibility reports whether the Quartz event tap may observe pointer
// movement and the start/stop hotkeys.
func ProbeAccessibility(lookup LookupEnvFunc) ProbeResult {
	if lookup == nil {
		lookup = lookupEnv
	}
	if value, ok := lookup(AccessibilityEnv); ok {
		return parseOverride(value)
	}
	if goos == "darwin" {
		return ProbeResult{
			Status:   StatusPromptRequired,
			Message:  "pointer capture will request accessibility trust on first use",
			Guidance: resetGuidance,
		}
	}
	return ProbeResult{Status: StatusUnavailable, Message: "no pointer event tap on " + goos}
}

func parseOverride(value string) ProbeResult {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "granted", "allow", "allowed", "yes", "true":
		return ProbeResult{Status: StatusGranted, Message: "pointer capture trusted via " + AccessibilityEnv}
	case "denied", "no", "false", "blocked":
		return ProbeResult{Status: StatusDenied, Message: "pointer capture blocked via " + AccessibilityEnv, Guidance: resetGuidance}
	case "prompt", "ask":
		return ProbeResult{Status: StatusPromptRequired, Message: "pointer capture will request accessibility trust on first use", Guidance: resetGuidance}
	case "unavailable", "unsupported":
		return ProbeResult{Status: StatusUnavailable, Message: "pointer event tap disabled via " + AccessibilityEnv}
	default:
		return ProbeResult{Status: StatusUnknown, Message: "unrecognised " + AccessibilityEnv + " value " + value}
	}
}

// StatusString returns the manifest form of the status.
func (p ProbeResult) StatusString() string {
	if p.Status == "" {
		return string(StatusUnknown)
	}
	return string(p.Status)
}
