package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	return j
}

func TestJournal_RecordAndList(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	arm, err := j.Record(ctx, Entry{Command: "arm", Timestamp: base})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, arm.ID)
	assert.Equal(t, StatusOK, arm.Status)

	_, err = j.Record(ctx, Entry{
		Command:   "takeoff",
		Timestamp: base.Add(time.Second),
		Params:    map[string]interface{}{"alt": 10.0},
	})
	require.NoError(t, err)

	_, err = j.Record(ctx, Entry{
		Command:   "land",
		Timestamp: base.Add(2 * time.Second),
		Status:    StatusRejected,
		Error:     "cannot land while DISARMED",
	})
	require.NoError(t, err)

	entries, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "land", entries[0].Command)
	assert.Equal(t, StatusRejected, entries[0].Status)
	assert.Equal(t, "cannot land while DISARMED", entries[0].Error)

	assert.Equal(t, "takeoff", entries[1].Command)
	assert.Equal(t, 10.0, entries[1].Params["alt"])

	assert.Equal(t, arm.ID, entries[2].ID)
	assert.True(t, base.Equal(entries[2].Timestamp), "timestamp %v", entries[2].Timestamp)
	assert.Nil(t, entries[2].Params)

	limited, err := j.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "land", limited[0].Command)
}

func TestJournal_RejectsEmptyCommand(t *testing.T) {
	j := setupTestJournal(t)

	_, err := j.Record(context.Background(), Entry{})
	assert.Error(t, err)
}

func TestJournal_ReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.Record(ctx, Entry{Command: "arm"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
