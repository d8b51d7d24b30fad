// Package events defines the raw pointer event model shared by capture and
// feature extraction, the CSV session codec, and the live capture tap backed
// by either the macOS Quartz event tap or a deterministic synthetic source.
package events
