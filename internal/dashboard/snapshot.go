package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ppiankov/vitals/internal/cache"
	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/metrics"
	"github.com/ppiankov/vitals/internal/model"
	"github.com/ppiankov/vitals/internal/store"
)

// Snapshot is the table as the dashboard renders it: rows with at least one
// rate, ordered by country then year
type Snapshot struct {
	Records  []model.FlatRecord `json:"records"`
	LoadedAt time.Time          `json:"loaded_at"`
}

// Source provides the current snapshot
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Loader reads snapshots from a store and keeps the last one in a cache for ttl
type Loader struct {
	store   store.Store
	cache   cache.Cache
	ttl     time.Duration
	key     string
	metrics *metrics.Metrics
	logger  logging.Logger
	now     func() time.Time
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithSnapshotCache caches snapshots in c for ttl
func WithSnapshotCache(c cache.Cache, ttl time.Duration) LoaderOption {
	return func(l *Loader) {
		l.cache = c
		l.ttl = ttl
	}
}

// WithLoaderMetrics counts cache hits, misses and errors
func WithLoaderMetrics(m *metrics.Metrics) LoaderOption {
	return func(l *Loader) { l.metrics = m }
}

// WithLoaderLogger sets the logger
func WithLoaderLogger(logger logging.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a Loader over s. table only scopes the cache key.
func NewLoader(s store.Store, table string, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:  s,
		key:    cache.CacheKey("snapshot", table),
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Snapshot returns the cached snapshot or reads a fresh one from the store
func (l *Loader) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap, ok := l.cached(); ok {
		l.metrics.ObserveSnapshot(metrics.ResultHit)
		return snap, nil
	}

	rows, err := l.store.Select(ctx, store.DefaultQuery())
	if err != nil {
		l.metrics.ObserveSnapshot(metrics.ResultError)
		return nil, err
	}

	snap := &Snapshot{Records: usable(rows), LoadedAt: l.now().UTC()}
	l.metrics.ObserveSnapshot(metrics.ResultMiss)
	l.logger.Info("snapshot loaded",
		logging.Int("rows", len(rows)),
		logging.Int("usable", len(snap.Records)),
	)

	if l.cache != nil {
		if b, err := json.Marshal(snap); err == nil {
			_ = l.cache.Set(l.key, b, l.ttl)
		}
	}
	return snap, nil
}

// Invalidate drops the cached snapshot
func (l *Loader) Invalidate() {
	if l.cache != nil {
		_ = l.cache.Delete(l.key)
	}
}

func (l *Loader) cached() (*Snapshot, bool) {
	if l.cache == nil {
		return nil, false
	}
	b, ok := l.cache.Get(l.key)
	if !ok {
		return nil, false
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		l.logger.Warn("discarding unreadable cached snapshot", logging.Error(err))
		_ = l.cache.Delete(l.key)
		return nil, false
	}
	return &snap, true
}

// usable drops rows where both rates are null
func usable(rows []model.FlatRecord) []model.FlatRecord {
	out := make([]model.FlatRecord, 0, len(rows))
	for _, r := range rows {
		if r.HasRates() {
			out = append(out, r)
		}
	}
	return out
}

// unavailable is a Source that always fails, used when the store cannot be opened
type unavailable struct {
	err error
}

// Unavailable returns a Source whose every snapshot fails with err
func Unavailable(err error) Source {
	return unavailable{err: err}
}

func (u unavailable) Snapshot(context.Context) (*Snapshot, error) {
	return nil, u.err
}
