package store

import (
	"context"
	"errors"

	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/model"
)

// Writer upserts flattened records into a Store
type Writer struct {
	store  Store
	logger logging.Logger
}

// NewWriter creates a writer over store
func NewWriter(store Store, logger logging.Logger) *Writer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Writer{store: store, logger: logger}
}

// Write upserts records keyed on (country, year) and returns the rows the
// store reports as written. Duplicate keys within the batch collapse to the
// last occurrence. Failures are *model.PersistenceError; nothing is retried.
func (w *Writer) Write(ctx context.Context, records []model.FlatRecord) (int, error) {
	batch := Dedupe(records)
	if dropped := len(records) - len(batch); dropped > 0 {
		w.logger.Warn("duplicate keys collapsed, last occurrence wins", logging.Int("dropped", dropped))
	}
	if len(batch) == 0 {
		return 0, nil
	}

	w.logger.Info("upserting records", logging.Int("count", len(batch)))

	written, err := w.store.Upsert(ctx, batch)
	if err != nil {
		var perr *model.PersistenceError
		if !errors.As(err, &perr) {
			err = &model.PersistenceError{Op: "upsert", Err: err}
		}
		return 0, err
	}

	if written != len(batch) {
		w.logger.Warn("store reported a different row count",
			logging.Int("submitted", len(batch)),
			logging.Int("written", written),
		)
	}
	return written, nil
}

// Dedupe keeps the last record for each key, at the position of its first occurrence
func Dedupe(records []model.FlatRecord) []model.FlatRecord {
	index := make(map[model.RecordKey]int, len(records))
	out := make([]model.FlatRecord, 0, len(records))
	for _, r := range records {
		if i, seen := index[r.Key()]; seen {
			out[i] = r
			continue
		}
		index[r.Key()] = len(out)
		out = append(out, r)
	}
	return out
}
