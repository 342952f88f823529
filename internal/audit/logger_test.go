package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/fhc/internal/adapter"
	"github.com/radio-control/fhc/internal/fh"
)

func newLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(Options{Dir: filepath.Join(t.TempDir(), "audit"), MaxSizeMB: 1, MaxBackups: 2})
	require.NoError(t, err)
	l.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestLogAction(t *testing.T) {
	l := newLogger(t)
	ctx := WithUser(context.Background(), "operator-7")

	l.LogAction(ctx, "table.configure", "table/A", map[string]interface{}{"frames": 3}, nil, 12*time.Millisecond)
	l.LogAction(context.Background(), "fh.hop", "fh", nil, fh.Wrap("hop", adapter.ErrTimeout), time.Millisecond)

	entries := readEntries(t, l.GetFilePath())
	require.Len(t, entries, 2)

	ok := entries[0]
	assert.Equal(t, "operator-7", ok.User)
	assert.Equal(t, "table/A", ok.Target)
	assert.Equal(t, "SUCCESS", ok.Outcome)
	assert.Equal(t, "NO_ACTION", ok.Code)
	assert.Equal(t, int64(12), ok.LatencyMs)
	assert.Equal(t, float64(3), ok.Params["frames"])

	bad := entries[1]
	assert.Equal(t, "unknown", bad.User)
	assert.Equal(t, "ERROR", bad.Outcome)
	assert.Equal(t, fh.ErrCheckTimer, bad.ActionCode)
	assert.Equal(t, "ERR_CHECK_TIMER", bad.Code)
	assert.NotEmpty(t, bad.Error)
}

func TestRotateKeepsBackup(t *testing.T) {
	l := newLogger(t)
	l.LogAction(context.Background(), "fh.configure", "fh", nil, nil, 0)
	require.NoError(t, l.Rotate())
	l.LogAction(context.Background(), "fh.configure", "fh", nil, nil, 0)

	files, err := os.ReadDir(filepath.Dir(l.GetFilePath()))
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Len(t, readEntries(t, l.GetFilePath()), 1)
}

func TestCloseDropsLaterEntries(t *testing.T) {
	l := newLogger(t)
	l.LogAction(context.Background(), "fh.hop", "fh", nil, nil, 0)
	require.NoError(t, l.Close())
	l.LogAction(context.Background(), "fh.hop", "fh", nil, nil, 0)
	require.NoError(t, l.Close())
	assert.Len(t, readEntries(t, l.GetFilePath()), 1)
}
