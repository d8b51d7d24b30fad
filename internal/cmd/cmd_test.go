package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/mousedynamics/pkg/config"
	"github.com/offlinefirst/mousedynamics/pkg/events"
	"github.com/offlinefirst/mousedynamics/pkg/notify"
	"github.com/offlinefirst/mousedynamics/pkg/runmanifest"
)

const validSession = `record timestamp,client timestamp,button,state,x,y
0,0,NoButton,Move,0,0
1,1,NoButton,Move,3,4
2,2,Left,Pressed,3,4
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// workspace moves into a fresh directory holding config.yaml and pins the
// clock and hostname used for run ids and manifests.
func workspace(t *testing.T, cfgYAML string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, config.DefaultFileName), cfgYAML)

	fixed := time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)
	origNow, origHost := timeNow, hostname
	timeNow = func() time.Time { return fixed }
	hostname = func() (string, error) { return "testhost", nil }
	t.Cleanup(func() {
		timeNow = origNow
		hostname = origHost
	})
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rc := NewRootCommand()
	rc.SetOutput(&stdout, &stderr)
	err := rc.Execute(context.Background(), args)
	return stdout.String(), stderr.String(), err
}

func TestExtractPlanOnly(t *testing.T) {
	dir := workspace(t, "paths:\n  sessions_dir: sessions\n")
	writeFile(t, filepath.Join(dir, "sessions", "user1", "session_1"), validSession)

	out, _, err := execute(t, "extract", "--plan-only", "--workers", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "extract.workers: 3")
	assert.Contains(t, out, "Sessions (1):")
	assert.Contains(t, out, "session_1")

	_, statErr := os.Stat(filepath.Join(dir, "runs"))
	assert.True(t, os.IsNotExist(statErr), "plan-only must not create the runs directory")
}

func TestExtractWritesTableAndManifest(t *testing.T) {
	dir := workspace(t, "paths:\n  sessions_dir: sessions\n  labels_file: labels.csv\nextract:\n  workers: 2\n")
	writeFile(t, filepath.Join(dir, "sessions", "user1", "session_1"), validSession)
	writeFile(t, filepath.Join(dir, "sessions", "user2", "session_2"), validSession)
	writeFile(t, filepath.Join(dir, "sessions", "user2", "session_3"), "record timestamp,client timestamp,button,state,x,y\n0,0,NoButton,Move,abc,0\n")
	writeFile(t, filepath.Join(dir, "sessions", "user2", "session_4"), validSession)
	writeFile(t, filepath.Join(dir, "labels.csv"), "filename,is_illegal\nsession_1,0\nsession_2,1\nsession_3,0\n")

	out, _, err := execute(t, "extract")
	require.NoError(t, err)
	assert.Contains(t, out, "Sessions: 2 completed, 1 skipped, 1 failed")

	runRoot := filepath.Join(dir, "runs", "20240512_093000")
	man, err := runmanifest.Load(filepath.Join(runRoot, "manifest.json"))
	require.NoError(t, err)

	assert.Equal(t, runmanifest.KindExtract, man.Kind)
	assert.Equal(t, "testhost", man.Hostname)
	assert.Equal(t, runmanifest.StateCompleted, man.Status.State)
	assert.Equal(t, "features.csv", man.Paths.FeatureTable)
	assert.Equal(t, runmanifest.Totals{Sessions: 4, Completed: 2, Skipped: 1, Failed: 1, Rows: 6}, man.Totals)
	require.NotNil(t, man.Extract)
	assert.Equal(t, 2, man.Extract.Workers)

	states := map[string]string{}
	for _, s := range man.Sessions {
		states[s.ID] = s.State
	}
	assert.Equal(t, map[string]string{
		"session_1": runmanifest.SessionCompleted,
		"session_2": runmanifest.SessionCompleted,
		"session_3": runmanifest.SessionFailed,
		"session_4": runmanifest.SessionSkipped,
	}, states)

	data, err := os.ReadFile(filepath.Join(runRoot, "features.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 7)
	assert.True(t, strings.HasSuffix(lines[0], ",label"))
	assert.True(t, strings.HasSuffix(lines[1], ",0"))
	assert.True(t, strings.HasSuffix(lines[6], ",1"))

	runLog, err := os.ReadFile(filepath.Join(runRoot, "run.log"))
	require.NoError(t, err)
	assert.Contains(t, string(runLog), "subsystem=session id=session_3 state=failed")
	assert.Contains(t, string(runLog), "subsystem=table wrote 6 rows to features.csv")
}

func TestExtractWithoutSessionsFails(t *testing.T) {
	dir := workspace(t, "paths:\n  sessions_dir: sessions\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sessions"), 0o755))

	_, stderr, err := execute(t, "extract")
	require.Error(t, err)
	assert.Contains(t, stderr, "no sessions found")
}

type fakeUploader struct {
	runID string
	files []string
	err   error
}

func (f *fakeUploader) UploadRun(_ context.Context, runID string, files []string) ([]string, error) {
	f.runID = runID
	f.files = files
	keys := make([]string, len(files))
	for i, file := range files {
		keys[i] = "runs/" + runID + "/" + filepath.Base(file)
	}
	return keys, f.err
}

type fakePublisher struct {
	events []notify.Event
	closed bool
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, ev notify.Event) error {
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func TestExtractUploadsAndNotifies(t *testing.T) {
	dir := workspace(t, "paths:\n  sessions_dir: sessions\nextract:\n  format: parquet\nstorage:\n  enabled: true\nnotify:\n  enabled: true\n")
	writeFile(t, filepath.Join(dir, "sessions", "session_1"), validSession)

	uploader := &fakeUploader{}
	publisher := &fakePublisher{}
	origUp, origPub := newUploader, newPublisher
	newUploader = func(config.StorageConfig) (runUploader, error) { return uploader, nil }
	newPublisher = func(config.NotifyConfig) (runPublisher, error) { return publisher, nil }
	t.Cleanup(func() {
		newUploader = origUp
		newPublisher = origPub
	})

	_, _, err := execute(t, "extract")
	require.NoError(t, err)

	assert.Equal(t, "20240512_093000", uploader.runID)
	require.Len(t, uploader.files, 3)
	assert.Equal(t, "features.parquet", filepath.Base(uploader.files[0]))

	require.Len(t, publisher.events, 1)
	ev := publisher.events[0]
	assert.Equal(t, notify.EventType, ev.Type)
	assert.Equal(t, "20240512_093000", ev.RunID)
	assert.Equal(t, 3, ev.Totals.Rows)
	assert.Len(t, ev.Uploads, 3)
	assert.True(t, publisher.closed)

	man, err := runmanifest.Load(filepath.Join(dir, "runs", "20240512_093000", "manifest.json"))
	require.NoError(t, err)
	assert.Len(t, man.Uploads, 3)
	subsystems := map[string]string{}
	for _, s := range man.Status.Subsystems {
		subsystems[s.Name] = s.State
	}
	assert.Equal(t, runmanifest.SubsystemStateCompleted, subsystems["storage"])
	assert.Equal(t, runmanifest.SubsystemStateCompleted, subsystems["notify"])
}

func TestExtractSurvivesUnavailableOutputs(t *testing.T) {
	dir := workspace(t, "paths:\n  sessions_dir: sessions\nstorage:\n  enabled: true\nnotify:\n  enabled: true\n")
	writeFile(t, filepath.Join(dir, "sessions", "session_1"), validSession)

	origUp, origPub := newUploader, newPublisher
	newUploader = func(config.StorageConfig) (runUploader, error) { return nil, errors.New("endpoint refused") }
	newPublisher = func(config.NotifyConfig) (runPublisher, error) { return &fakePublisher{err: errors.New("channel closed")}, nil }
	t.Cleanup(func() {
		newUploader = origUp
		newPublisher = origPub
	})

	out, _, err := execute(t, "extract")
	require.NoError(t, err)
	assert.Contains(t, out, "storage: unavailable (endpoint refused)")
	assert.Contains(t, out, "notify: error (channel closed)")
}

func TestSessionCommandPrintsCSV(t *testing.T) {
	dir := workspace(t, "")
	path := filepath.Join(dir, "session_1")
	writeFile(t, path, validSession)

	out, _, err := execute(t, "session", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Type_of_action,"))
	assert.False(t, strings.Contains(lines[0], "label"))
	assert.True(t, strings.HasPrefix(lines[2], "Mouse Movement,5,1,"))
}

func TestSessionCommandRejectsMalformedFile(t *testing.T) {
	dir := workspace(t, "")
	path := filepath.Join(dir, "session_bad")
	writeFile(t, path, "x,y\n1,2\n")

	_, _, err := execute(t, "session", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, events.ErrMalformedInput)
}

func TestCaptureCommandRecordsBetweenHotkeys(t *testing.T) {
	dir := workspace(t, "")
	t.Setenv("MOUSEDYN_ACCESSIBILITY", "granted")

	origSource := captureSource
	captureSource = events.SourceFunc(func(ctx context.Context, emit func(events.Sample) error) error {
		samples := []events.Sample{
			events.PointerSample(events.RawEvent{ClientTime: 0, Button: events.ButtonNone, State: events.StateMove}),
			events.KeySample("f2"),
			events.PointerSample(events.RawEvent{ClientTime: 1, Button: events.ButtonNone, State: events.StateMove, X: 1}),
			events.PointerSample(events.RawEvent{ClientTime: 2, Button: events.ButtonNone, State: events.StateMove, X: 2}),
			events.KeySample("f3"),
		}
		for _, s := range samples {
			if err := emit(s); err != nil {
				return err
			}
		}
		return nil
	})
	t.Cleanup(func() { captureSource = origSource })

	out, _, err := execute(t, "capture")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded 2 events (1 dropped while idle, 2 hotkeys)")

	runRoot := filepath.Join(dir, "runs", "20240512_093000")
	man, err := runmanifest.Load(filepath.Join(runRoot, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, runmanifest.KindCapture, man.Kind)
	assert.Equal(t, runmanifest.StateCompleted, man.Status.State)
	assert.Equal(t, "source_ended", man.Status.Termination)
	assert.Equal(t, "session_20240512_093000.csv", man.Paths.Session)
	require.Len(t, man.Status.Controller, 3)
	assert.Equal(t, "listening", man.Status.Controller[1].State)

	f, err := os.Open(filepath.Join(runRoot, man.Paths.Session))
	require.NoError(t, err)
	defer f.Close()
	evs, err := events.ReadSession(f)
	require.NoError(t, err)
	assert.Len(t, evs, 2)
}

func TestDoctorReportsOutputs(t *testing.T) {
	workspace(t, "storage:\n  enabled: true\n")
	out, _, err := execute(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "Config source: config.yaml")
	assert.Contains(t, out, "storage: enabled (localhost:9000, bucket mouse-features)")
	assert.Contains(t, out, "notify: disabled")
	assert.Contains(t, out, "sessions_dir: sessions (missing)")
}

func TestVersionCommand(t *testing.T) {
	origVersion, origGOOS := runtimeVersion, runtimeGOOS
	runtimeVersion = func() string { return "go1.24.0" }
	runtimeGOOS = func() string { return "linux" }
	t.Cleanup(func() {
		runtimeVersion = origVersion
		runtimeGOOS = origGOOS
	})

	var stdout bytes.Buffer
	rc := NewRootCommand()
	rc.SetOutput(&stdout, &bytes.Buffer{})
	require.NoError(t, rc.Execute(context.Background(), []string{"version"}))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stdout.String()), "(go1.24.0/linux)"))
}
