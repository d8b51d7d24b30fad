package runmanifest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/mousedynamics/pkg/config"
)

func TestBuildLayoutAndRelativePaths(t *testing.T) {
	layout := BuildLayout("/tmp/runs", "20240512_093000")
	assert.Equal(t, filepath.Join("/tmp/runs", "20240512_093000"), layout.Root)

	rel := layout.RelativePaths()
	assert.Equal(t, ".", rel.Root)
	assert.Equal(t, "manifest.json", rel.Manifest)
	assert.Equal(t, "run.log", rel.RunLog)

	assert.Equal(t, "features.parquet", layout.Relative(layout.FeatureTablePath(".parquet")))
	assert.Equal(t, "session_20240512_093000.csv", layout.Relative(layout.SessionPath()))
	assert.Equal(t, "/elsewhere/file.csv", layout.Relative("/elsewhere/file.csv"), "paths outside the run stay absolute")
}

func TestEnsureFilesystemCreatesRunRoot(t *testing.T) {
	layout := BuildLayout(t.TempDir(), "run")
	require.NoError(t, EnsureFilesystem(layout))

	info, err := os.Stat(layout.Root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	_, err = os.Stat(layout.RunLogPath)
	assert.NoError(t, err, "run log file must exist")
}

func TestNewManifestForExtraction(t *testing.T) {
	cfg := config.Default()
	cfg.Source = "config.yaml"
	cfg.Extract.Workers = 4
	now := time.Date(2024, 5, 12, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	man := New(Options{
		RunID:      "run",
		Kind:       KindExtract,
		CreatedAt:  now,
		Hostname:   "host",
		AppVersion: "test",
		Config:     cfg,
		Layout:     BuildLayout("/tmp/runs", "run"),
	})

	assert.Equal(t, SchemaVersion, man.SchemaVersion)
	assert.Equal(t, time.UTC, man.CreatedAt.Location())
	assert.Equal(t, "config.yaml", man.ConfigSource)
	require.NotNil(t, man.Extract)
	assert.Equal(t, 4, man.Extract.Workers)
	assert.Nil(t, man.Capture, "extraction manifest must not carry capture settings")
	assert.Equal(t, StatePending, man.Status.State)
}

func TestNewManifestForCapture(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.DurationSeconds = 30

	man := New(Options{RunID: "run", Kind: KindCapture, Config: cfg, Layout: BuildLayout("/tmp/runs", "run")})
	require.NotNil(t, man.Capture)
	assert.Equal(t, 30, man.Capture.DurationSeconds)
	assert.Equal(t, "f2", man.Capture.StartKey)
	assert.Nil(t, man.Extract, "capture manifest must not carry extract settings")
}

func TestAddSessionUpdatesTotals(t *testing.T) {
	var man Manifest
	label := 1
	man.AddSession(SessionStatus{ID: "session_1", State: SessionCompleted, Rows: 10, Label: &label})
	man.AddSession(SessionStatus{ID: "session_2", State: SessionCompleted, Rows: 5})
	man.AddSession(SessionStatus{ID: "session_3", State: SessionSkipped, Message: "unresolved label"})
	man.AddSession(SessionStatus{ID: "session_4", State: SessionFailed, Message: "malformed input"})

	assert.Equal(t, Totals{Sessions: 4, Completed: 2, Skipped: 1, Failed: 1, Rows: 15}, man.Totals)
}

func TestSetSubsystemReplacesByName(t *testing.T) {
	var man Manifest
	man.SetSubsystem(SubsystemStatus{Name: "storage", State: SubsystemStatePending})
	man.SetSubsystem(SubsystemStatus{Name: "notify", State: SubsystemStateSkipped})
	man.SetSubsystem(SubsystemStatus{Name: "storage", State: SubsystemStateCompleted})

	require.Len(t, man.Status.Subsystems, 2)
	assert.Equal(t, SubsystemStateCompleted, man.Status.Subsystems[0].State)
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Source = "explicit"
	now := time.Now().UTC().Round(time.Second)

	man := New(Options{
		RunID:      "run",
		Kind:       KindExtract,
		CreatedAt:  now,
		Hostname:   "host",
		AppVersion: "version",
		Config:     cfg,
		Layout:     BuildLayout(dir, "run"),
	})
	man.AddSession(SessionStatus{ID: "session_1", Path: "sessions/session_1", State: SessionCompleted, Rows: 3})
	man.Status.Controller = []ControllerTimelineEntry{{State: "listening", Reason: "hotkey f2", Timestamp: now}}

	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, Save(man, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, man.RunID, loaded.RunID)
	assert.Equal(t, man.Totals, loaded.Totals)
	require.Len(t, loaded.Sessions, 1)
	assert.Equal(t, 3, loaded.Sessions[0].Rows)
	require.Len(t, loaded.Status.Controller, 1)
	assert.True(t, loaded.Status.Controller[0].Timestamp.Equal(now))
}

func TestResolveRunID(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, now.Format("20060102_150405")), 0o755))

	id, err := ResolveRunID(dir, now)
	require.NoError(t, err)
	assert.Equal(t, now.Format("20060102_150405")+"_01", id)
}

func TestResolveRunIDEmptyRunsDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("path validation differs on windows")
	}
	_, err := ResolveRunID(" ", time.Now())
	assert.Error(t, err)
}
