package dataset

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/mousedynamics/pkg/events"
	"github.com/offlinefirst/mousedynamics/pkg/features"
	"github.com/offlinefirst/mousedynamics/pkg/labels"
	"github.com/offlinefirst/mousedynamics/pkg/runmanifest"
	"github.com/offlinefirst/mousedynamics/pkg/table"
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

func TestDiscoverWalksRecursivelyAndSorts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "user9", "session_300"), validSession)
	writeFile(t, filepath.Join(root, "user12", "session_100"), validSession)
	writeFile(t, filepath.Join(root, "user12", "session_200.csv"), validSession)
	writeFile(t, filepath.Join(root, "user12", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, ".cache", "session_000"), validSession)
	writeFile(t, filepath.Join(root, "user9", ".session_050"), validSession)

	sessions, err := Discover(root, "session_")
	require.NoError(t, err)

	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"session_100", "session_200", "session_300"}, ids)
	assert.Equal(t, filepath.Join(root, "user12", "session_200.csv"), sessions[1].Path)

	all, err := Discover(root, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestDiscoverMissingDirectory(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "absent"), "")
	assert.Error(t, err)
}

func TestProcessRecordsPerSessionOutcomes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "session_1"), validSession)
	writeFile(t, filepath.Join(root, "session_2"), "record timestamp,client timestamp,button,state,x,y\n0,0,NoButton,Move,abc,0\n")
	writeFile(t, filepath.Join(root, "session_3"), validSession)
	writeFile(t, filepath.Join(root, "session_4"), "record timestamp,client timestamp,button,state,x,y\n")

	resolver, err := labels.Read(strings.NewReader("filename,is_illegal\nsession_1,0\nsession_2,1\nsession_4,1\n"))
	require.NoError(t, err)

	sessions, err := Discover(root, "session_")
	require.NoError(t, err)
	require.Len(t, sessions, 4)

	outcomes, err := Process(context.Background(), sessions, Options{Workers: 2, Labels: resolver})
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	assert.Equal(t, runmanifest.SessionCompleted, outcomes[0].State)
	assert.Len(t, outcomes[0].Rows, 3)
	require.NotNil(t, outcomes[0].Label)
	assert.Equal(t, 0, *outcomes[0].Label)

	assert.Equal(t, runmanifest.SessionFailed, outcomes[1].State)
	assert.True(t, errors.Is(outcomes[1].Err, events.ErrMalformedInput))
	assert.Empty(t, outcomes[1].Rows)

	assert.Equal(t, runmanifest.SessionSkipped, outcomes[2].State)
	assert.True(t, errors.Is(outcomes[2].Err, labels.ErrUnresolved))

	assert.Equal(t, runmanifest.SessionCompleted, outcomes[3].State)
	assert.Empty(t, outcomes[3].Rows)

	status := outcomes[1].Status()
	assert.Equal(t, "session_2", status.ID)
	assert.NotEmpty(t, status.Message)
}

func TestProcessWithoutLabelsExtractsEverything(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "session_1"), validSession)

	sessions, err := Discover(root, "")
	require.NoError(t, err)
	outcomes, err := Process(context.Background(), sessions, Options{})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, runmanifest.SessionCompleted, outcomes[0].State)
	assert.Nil(t, outcomes[0].Label)

	row := outcomes[0].Rows[1]
	assert.Equal(t, features.MouseMovement, row.Type)
	assert.InDelta(t, 5.0, row.Distance, 1e-9)
}

func TestProcessHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "session_1"), validSession)
	writeFile(t, filepath.Join(root, "session_2"), validSession)

	sessions, err := Discover(root, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes, err := Process(ctx, sessions, Options{Workers: 1})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Equal(t, runmanifest.SessionSkipped, o.State)
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestWriteTableKeepsSessionOrder(t *testing.T) {
	one, two := 1, 0
	row := func(n int) features.Row {
		return features.Row{ActionFeatures: features.ActionFeatures{NumPoints: n}}
	}
	outcomes := []Outcome{
		{Session: Session{ID: "a"}, State: runmanifest.SessionCompleted, Rows: []features.Row{row(1), row(2)}, Label: &one},
		{Session: Session{ID: "b"}, State: runmanifest.SessionFailed},
		{Session: Session{ID: "c"}, State: runmanifest.SessionCompleted, Rows: []features.Row{row(3)}, Label: &two},
	}

	var buf bytes.Buffer
	w := table.NewCSVWriter(&buf, true)
	n, err := WriteTable(w, outcomes)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 3, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasSuffix(lines[1], ",1"))
	assert.True(t, strings.HasSuffix(lines[3], ",0"))
	assert.Contains(t, lines[3], ",3,")
}
