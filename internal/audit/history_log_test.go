package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/guillermoBallester/nlquery/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLog(t *testing.T) (*FileLog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.json")
	l, err := NewFileLog(path, testLogger())
	require.NoError(t, err)
	return l, path
}

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var n int
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestNewFileLog_MissingFileStartsEmpty(t *testing.T) {
	t.Parallel()
	l, path := newTestLog(t)

	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.List(context.Background()))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file should not be created until first write")
}

func TestNewFileLog_CreatesParentDirectory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.json")
	l, err := NewFileLog(path, testLogger())
	require.NoError(t, err)

	_, err = l.Append(context.Background(), domain.HistoryRecord{Question: "q"})
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestNewFileLog_CorruptFileStartsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	l, err := NewFileLog(path, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
}

func TestFileLog_AppendAssignsIDAndTimestamp(t *testing.T) {
	t.Parallel()
	l, _ := newTestLog(t)

	dbMS := int64(12)
	count := 5
	rec, err := l.Append(context.Background(), domain.HistoryRecord{
		ID:                  "caller-supplied",
		Question:            "How many matches?",
		GeneratedSQL:        "SELECT COUNT(*) FROM match",
		ExecutedSQL:         "SELECT COUNT(*) FROM match LIMIT 1000;",
		APIExecutionMS:      40,
		DatabaseExecutionMS: &dbMS,
		ResultCount:         &count,
	})
	require.NoError(t, err)

	assert.NotEqual(t, "caller-supplied", rec.ID)
	assert.Len(t, rec.ID, 36)
	assert.Equal(t, time.UTC, rec.Timestamp.Location())
	assert.WithinDuration(t, time.Now(), rec.Timestamp, time.Minute)
	assert.Equal(t, "How many matches?", rec.Question)
}

func TestFileLog_RoundTrip(t *testing.T) {
	t.Parallel()
	l, _ := newTestLog(t)
	l.now = steppingClock()
	ctx := context.Background()

	const n = 5
	for i := range n {
		_, err := l.Append(ctx, domain.HistoryRecord{Question: fmt.Sprintf("q%d", i)})
		require.NoError(t, err)
	}

	list := l.List(ctx)
	require.Len(t, list, n)
	for i := 1; i < len(list); i++ {
		assert.True(t, list[i-1].Timestamp.After(list[i].Timestamp), "list must be newest first")
	}
	assert.Equal(t, "q4", list[0].Question)
	assert.Equal(t, "q0", list[n-1].Question)

	require.NoError(t, l.Clear(ctx))
	assert.Empty(t, l.List(ctx))
}

func TestFileLog_EqualTimestampsNewestInsertFirst(t *testing.T) {
	t.Parallel()
	l, _ := newTestLog(t)
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	ctx := context.Background()

	for _, q := range []string{"a", "b", "c"} {
		_, err := l.Append(ctx, domain.HistoryRecord{Question: q})
		require.NoError(t, err)
	}

	list := l.List(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].Question)
	assert.Equal(t, "a", list[2].Question)
}

func TestFileLog_ListReturnsCopy(t *testing.T) {
	t.Parallel()
	l, _ := newTestLog(t)
	ctx := context.Background()

	count := 3
	_, err := l.Append(ctx, domain.HistoryRecord{Question: "q", ResultCount: &count})
	require.NoError(t, err)

	list := l.List(ctx)
	list[0].Question = "mutated"
	*list[0].ResultCount = 99

	again := l.List(ctx)
	assert.Equal(t, "q", again[0].Question)
	assert.Equal(t, 3, *again[0].ResultCount)
}

func TestFileLog_PersistsAcrossRestart(t *testing.T) {
	t.Parallel()
	l, path := newTestLog(t)
	ctx := context.Background()

	dbMS := int64(7)
	_, err := l.Append(ctx, domain.HistoryRecord{Question: "first", DatabaseExecutionMS: &dbMS})
	require.NoError(t, err)
	_, err = l.Append(ctx, domain.HistoryRecord{Question: "second", Note: "validation rejected"})
	require.NoError(t, err)

	reopened, err := NewFileLog(path, testLogger())
	require.NoError(t, err)
	list := reopened.List(ctx)
	require.Len(t, list, 2)

	byQuestion := map[string]domain.HistoryRecord{}
	for _, r := range list {
		byQuestion[r.Question] = r
	}
	require.NotNil(t, byQuestion["first"].DatabaseExecutionMS)
	assert.Equal(t, int64(7), *byQuestion["first"].DatabaseExecutionMS)
	assert.Nil(t, byQuestion["second"].DatabaseExecutionMS)
	assert.Equal(t, "validation rejected", byQuestion["second"].Note)
}

func TestFileLog_FileLayout(t *testing.T) {
	t.Parallel()
	l, path := newTestLog(t)

	_, err := l.Append(context.Background(), domain.HistoryRecord{Question: "q", ExecutedSQL: "SELECT 1"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	for _, key := range []string{
		"id", "timestampUtc", "question", "generatedSql", "executedSql",
		"apiExecutionMs", "databaseExecutionMs", "resultCount", "note",
	} {
		assert.Contains(t, raw[0], key)
	}
	assert.Nil(t, raw[0]["databaseExecutionMs"])
}

func TestFileLog_ClearWritesEmptyArray(t *testing.T) {
	t.Parallel()
	l, path := newTestLog(t)
	ctx := context.Background()

	_, err := l.Append(ctx, domain.HistoryRecord{Question: "q"})
	require.NoError(t, err)
	require.NoError(t, l.Clear(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestFileLog_ConcurrentAppends(t *testing.T) {
	t.Parallel()
	l, path := newTestLog(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := l.Append(ctx, domain.HistoryRecord{Question: fmt.Sprintf("q%d", n)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, l.Len())

	reopened, err := NewFileLog(path, testLogger())
	require.NoError(t, err)
	list := reopened.List(ctx)
	require.Len(t, list, 50)

	ids := make(map[string]struct{}, len(list))
	for _, r := range list {
		ids[r.ID] = struct{}{}
	}
	assert.Len(t, ids, 50, "ids must be unique")
}

func TestFileLog_PersistFailureKeepsRecord(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	l, err := NewFileLog(path, testLogger())
	require.NoError(t, err)

	// A directory in place of the target makes the rename fail.
	require.NoError(t, os.Mkdir(path, 0o755))

	_, err = l.Append(context.Background(), domain.HistoryRecord{Question: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuditPersistenceFailed)
	assert.Equal(t, 1, l.Len())
}

func TestNoopLog(t *testing.T) {
	t.Parallel()
	var l NoopLog
	rec, err := l.Append(context.Background(), domain.HistoryRecord{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "q", rec.Question)
	assert.Empty(t, l.List(context.Background()))
	assert.NoError(t, l.Clear(context.Background()))
	assert.NoError(t, l.Close())
}
