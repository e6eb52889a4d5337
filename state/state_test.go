package state

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTracker_ResumeKeepsCompletedKeys(t *testing.T) {
	dir := t.TempDir()

	tracker, err := NewFileTracker(dir, false)
	require.NoError(t, err)
	require.NoError(t, tracker.MarkProcessed("comp.lang.c/1990-01.mbox.gz", 4))
	require.NoError(t, tracker.MarkProcessed("comp.lang.c/1990-01.mbox.gz", 9))
	require.NoError(t, tracker.MarkProcessed("", 1))
	require.NoError(t, tracker.MarkProcessed("alt.folklore/x.mbox.gz", 2))
	require.NoError(t, tracker.Close())

	resumed, err := NewFileTracker(dir, true)
	require.NoError(t, err)
	defer resumed.Close()
	assert.True(t, resumed.AlreadyProcessed("comp.lang.c/1990-01.mbox.gz"))
	assert.False(t, resumed.AlreadyProcessed("comp.lang.c/1990-02.mbox.gz"))
	assert.Equal(t, Snapshot{Processed: 2, Threads: 6}, resumed.Snapshot())
}

func TestFileTracker_FreshRunTruncates(t *testing.T) {
	dir := t.TempDir()

	tracker, err := NewFileTracker(dir, false)
	require.NoError(t, err)
	require.NoError(t, tracker.MarkProcessed("g/a.mbox.gz", 1))
	require.NoError(t, tracker.Close())

	fresh, err := NewFileTracker(dir, false)
	require.NoError(t, err)
	assert.False(t, fresh.AlreadyProcessed("g/a.mbox.gz"))
	require.NoError(t, fresh.Close())

	data, err := os.ReadFile(fresh.Path())
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileTracker_CorruptState(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewFileTracker(dir, false)
	require.NoError(t, err)
	require.NoError(t, tracker.Close())
	require.NoError(t, os.WriteFile(tracker.Path(), []byte("{not json\n"), 0o600))

	_, err = NewFileTracker(dir, true)
	assert.Error(t, err)
}

func TestNewFileTracker_EmptyDir(t *testing.T) {
	_, err := NewFileTracker("  ", true)
	assert.Error(t, err)
}
