package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guillermoBallester/nlquery/internal/core/domain"
)

// FileLog keeps the query history in memory and mirrors it to a single JSON
// document that is rewritten on every mutation. One mutex covers both the
// in-memory change and the file rewrite, so concurrent appenders serialize.
type FileLog struct {
	mu      sync.Mutex
	path    string
	records []domain.HistoryRecord
	logger  *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewFileLog loads the history at path. A missing file starts empty; an
// unreadable or corrupt file is logged and also starts empty.
func NewFileLog(path string, logger *slog.Logger) (*FileLog, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving history path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	l := &FileLog{
		path:   abs,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
	l.records = l.load()
	return l, nil
}

func (l *FileLog) load() []domain.HistoryRecord {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		l.logger.Error("reading query history, starting empty",
			slog.String("path", l.path),
			slog.String("error.message", err.Error()),
		)
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var records []domain.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		l.logger.Error("decoding query history, starting empty",
			slog.String("path", l.path),
			slog.String("error.message", err.Error()),
		)
		return nil
	}
	return records
}

// Append stamps rec with a fresh id and UTC timestamp, stores it and rewrites
// the file. When the rewrite fails the record stays in memory and the error
// wraps domain.ErrAuditPersistenceFailed.
func (l *FileLog) Append(_ context.Context, rec domain.HistoryRecord) (domain.HistoryRecord, error) {
	rec = rec.Clone()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec.ID = l.newID()
	rec.Timestamp = l.now()
	l.records = append(l.records, rec)

	return rec.Clone(), l.persist()
}

// List returns a copy of the history, newest first. Records with equal
// timestamps keep reverse insertion order.
func (l *FileLog) List(_ context.Context) []domain.HistoryRecord {
	l.mu.Lock()
	out := make([]domain.HistoryRecord, len(l.records))
	for i, rec := range l.records {
		out[len(out)-1-i] = rec.Clone()
	}
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Len reports the number of stored records.
func (l *FileLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Clear drops every record and rewrites the file as an empty array.
func (l *FileLog) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = nil
	return l.persist()
}

func (l *FileLog) Close() error { return nil }

// persist must be called with l.mu held.
func (l *FileLog) persist() error {
	records := l.records
	if records == nil {
		records = []domain.HistoryRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding history: %w", domain.ErrAuditPersistenceFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAuditPersistenceFailed, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: writing history: %w", domain.ErrAuditPersistenceFailed, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", domain.ErrAuditPersistenceFailed, err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: replacing history file: %w", domain.ErrAuditPersistenceFailed, err)
	}
	return nil
}

// NoopLog accepts and discards history records.
type NoopLog struct{}

func (NoopLog) Append(_ context.Context, rec domain.HistoryRecord) (domain.HistoryRecord, error) {
	return rec, nil
}
func (NoopLog) List(context.Context) []domain.HistoryRecord { return nil }
func (NoopLog) Clear(context.Context) error                 { return nil }
func (NoopLog) Close() error                                { return nil }
