package events

import "errors"

// ErrAccessibilityPermission indicates the host must grant Accessibility trust.
var ErrAccessibilityPermission = errors.New("macOS accessibility permission required for event capture")

// ErrMalformedInput marks a session row with a missing or non-numeric required field.
var ErrMalformedInput = errors.New("malformed input")
