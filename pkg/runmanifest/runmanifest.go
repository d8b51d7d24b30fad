package runmanifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/offlinefirst/mousedynamics/pkg/config"
)

// SchemaVersion captures the manifest version for compatibility checks.
const SchemaVersion = 1

// Run kinds.
const (
	KindExtract = "extract"
	KindCapture = "capture"
)

// Layout represents the absolute filesystem locations for a run.
type Layout struct {
	RunID        string
	Root         string
	ManifestPath string
	RunLogPath   string
}

// FeatureTablePath returns the feature table location for a file extension such as ".csv".
func (l Layout) FeatureTablePath(ext string) string {
	return filepath.Join(l.Root, "features"+ext)
}

// SessionPath returns the default raw session file for a capture run.
func (l Layout) SessionPath() string {
	return filepath.Join(l.Root, "session_"+l.RunID+".csv")
}

// Paths holds the relative locations stored in the manifest for portability.
type Paths struct {
	Root         string `json:"root"`
	Manifest     string `json:"manifest"`
	RunLog       string `json:"run_log"`
	FeatureTable string `json:"feature_table,omitempty"`
	Session      string `json:"session,omitempty"`
}

// ExtractSettings records the knobs an extraction run used.
type ExtractSettings struct {
	SessionsDir           string `json:"sessions_dir"`
	LabelsFile            string `json:"labels_file,omitempty"`
	SessionPrefix         string `json:"session_prefix,omitempty"`
	Format                string `json:"format"`
	Workers               int    `json:"workers"`
	ConfineAnglesToAction bool   `json:"confine_angles_to_action"`
}

// CaptureSettings records the knobs a capture run used.
type CaptureSettings struct {
	StartKey        string `json:"start_key"`
	StopKey         string `json:"stop_key"`
	StartListening  bool   `json:"start_listening"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// Status summarises the lifecycle of a run.
type Status struct {
	State       string                    `json:"state"`
	Summary     string                    `json:"summary,omitempty"`
	StartedAt   *time.Time                `json:"started_at,omitempty"`
	EndedAt     *time.Time                `json:"ended_at,omitempty"`
	Termination string                    `json:"termination,omitempty"`
	Controller  []ControllerTimelineEntry `json:"controller_timeline,omitempty"`
	Subsystems  []SubsystemStatus         `json:"subsystems,omitempty"`
}

// Run lifecycle states.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// ControllerTimelineEntry records controller state transitions for diagnostics.
type ControllerTimelineEntry struct {
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SubsystemStatus captures availability and outcome details for a subsystem.
type SubsystemStatus struct {
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	Available  bool   `json:"available"`
	State      string `json:"state"`
	Provider   string `json:"provider,omitempty"`
	Permission string `json:"permission,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Subsystem outcome states used in manifests for downstream tooling.
const (
	SubsystemStatePending     = "pending"
	SubsystemStateCompleted   = "completed"
	SubsystemStateSkipped     = "skipped"
	SubsystemStateUnavailable = "unavailable"
	SubsystemStateErrored     = "error"
)

// Per-session outcome states.
const (
	SessionCompleted = "completed"
	SessionSkipped   = "skipped"
	SessionFailed    = "failed"
)

// SessionStatus records what happened to one input session.
type SessionStatus struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	State   string `json:"state"`
	Rows    int    `json:"rows"`
	Label   *int   `json:"label,omitempty"`
	Message string `json:"message,omitempty"`
}

// Totals aggregates session outcomes.
type Totals struct {
	Sessions  int `json:"sessions"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Rows      int `json:"rows"`
}

// Manifest is the durable metadata describing a run.
type Manifest struct {
	SchemaVersion int              `json:"schema_version"`
	RunID         string           `json:"run_id"`
	Kind          string           `json:"kind"`
	CreatedAt     time.Time        `json:"created_at"`
	Hostname      string           `json:"hostname"`
	AppVersion    string           `json:"app_version"`
	ConfigSource  string           `json:"config_source"`
	Extract       *ExtractSettings `json:"extract,omitempty"`
	Capture       *CaptureSettings `json:"capture,omitempty"`
	Paths         Paths            `json:"paths"`
	Status        Status           `json:"status"`
	Sessions      []SessionStatus  `json:"sessions,omitempty"`
	Totals        Totals           `json:"totals"`
	Uploads       []string         `json:"uploads,omitempty"`
}

// Options captures the knobs for creating a new manifest.
type Options struct {
	RunID      string
	Kind       string
	CreatedAt  time.Time
	Hostname   string
	AppVersion string
	Config     config.Config
	Layout     Layout
}

// New constructs a manifest using the supplied options.
func New(opts Options) Manifest {
	man := Manifest{
		SchemaVersion: SchemaVersion,
		RunID:         opts.RunID,
		Kind:          opts.Kind,
		CreatedAt:     opts.CreatedAt.UTC(),
		Hostname:      opts.Hostname,
		AppVersion:    opts.AppVersion,
		ConfigSource:  opts.Config.Source,
		Paths:         opts.Layout.RelativePaths(),
		Status:        Status{State: StatePending},
	}
	switch opts.Kind {
	case KindCapture:
		man.Capture = &CaptureSettings{
			StartKey:        opts.Config.Capture.StartKey,
			StopKey:         opts.Config.Capture.StopKey,
			StartListening:  opts.Config.Capture.StartListening,
			DurationSeconds: opts.Config.Capture.DurationSeconds,
		}
	default:
		man.Extract = &ExtractSettings{
			SessionsDir:           opts.Config.Paths.SessionsDir,
			LabelsFile:            opts.Config.Paths.LabelsFile,
			SessionPrefix:         opts.Config.Extract.SessionPrefix,
			Format:                opts.Config.Extract.Format,
			Workers:               opts.Config.Extract.Workers,
			ConfineAnglesToAction: opts.Config.Extract.ConfineAnglesToAction,
		}
	}
	return man
}

// AddSession appends a session outcome and updates the totals.
func (m *Manifest) AddSession(s SessionStatus) {
	m.Sessions = append(m.Sessions, s)
	m.Totals.Sessions++
	switch s.State {
	case SessionCompleted:
		m.Totals.Completed++
		m.Totals.Rows += s.Rows
	case SessionSkipped:
		m.Totals.Skipped++
	case SessionFailed:
		m.Totals.Failed++
	}
}

// SetSubsystem inserts or replaces the status entry with the same name.
func (m *Manifest) SetSubsystem(s SubsystemStatus) {
	for i := range m.Status.Subsystems {
		if m.Status.Subsystems[i].Name == s.Name {
			m.Status.Subsystems[i] = s
			return
		}
	}
	m.Status.Subsystems = append(m.Status.Subsystems, s)
}

// Relative converts an absolute path inside the run root to a manifest path.
func (l Layout) Relative(path string) string {
	if rel, err := filepath.Rel(l.Root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

// BuildLayout creates an absolute filesystem layout for a run.
func BuildLayout(runsDir, runID string) Layout {
	root := filepath.Join(runsDir, runID)
	return Layout{
		RunID:        runID,
		Root:         root,
		ManifestPath: filepath.Join(root, "manifest.json"),
		RunLogPath:   filepath.Join(root, "run.log"),
	}
}

// RelativePaths exposes the manifest-friendly relative paths for the layout.
func (l Layout) RelativePaths() Paths {
	return Paths{
		Root:     ".",
		Manifest: filepath.Base(l.ManifestPath),
		RunLog:   filepath.Base(l.RunLogPath),
	}
}

// EnsureFilesystem prepares the directory tree for a run layout.
func EnsureFilesystem(layout Layout) error {
	if err := os.MkdirAll(layout.Root, 0o755); err != nil {
		return fmt.Errorf("create run root: %w", err)
	}

	file, err := os.OpenFile(layout.RunLogPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("initialise run log: %w", err)
	}
	defer file.Close()

	return nil
}

// Save writes the manifest JSON to disk with indentation for readability.
func Save(man Manifest, path string) error {
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Load reads a manifest JSON file from disk.
func Load(path string) (Manifest, error) {
	var man Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return man, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &man); err != nil {
		return man, fmt.Errorf("decode manifest: %w", err)
	}
	return man, nil
}

// ResolveRunID chooses a run identifier derived from the timestamp and avoids collisions.
func ResolveRunID(runsDir string, now time.Time) (string, error) {
	if strings.TrimSpace(runsDir) == "" {
		return "", errors.New("runs directory must not be empty")
	}

	base := now.UTC().Format("20060102_150405")
	candidate := base
	suffix := 1
	for {
		_, err := os.Stat(filepath.Join(runsDir, candidate))
		if err == nil {
			candidate = fmt.Sprintf("%s_%02d", base, suffix)
			suffix++
			continue
		}
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		return "", fmt.Errorf("inspect runs directory: %w", err)
	}
}
