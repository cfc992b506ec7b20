package instruments

import (
	"context"
	"fmt"
	"time"

	"barcollector/pkg/kite"
	"barcollector/pkg/storage/sqlite"

	"go.uber.org/zap"
)

// Loader fills the in-memory store from the SQLite cache when it is fresh
// enough, falling back to (and re-populating the cache from) the broker's
// REST instrument dump.
type Loader struct {
	Cache  *sqlite.SqliteClient
	Rest   *kite.RESTClient
	MaxAge time.Duration
	Logger *zap.Logger
}

// Load populates the store, preferring the local cache.
func (l *Loader) Load(ctx context.Context, store *Store) error {
	refreshed, err := l.Cache.LastRefreshedAt(ctx)
	if err == nil && !refreshed.IsZero() && time.Since(refreshed) < l.MaxAge {
		list, err := l.Cache.GetAllInstruments(ctx)
		if err == nil && len(list) > 0 {
			store.Replace(list)
			l.Logger.Info("loaded instruments from cache",
				zap.Int("count", len(list)),
				zap.Time("refreshed_at", refreshed))
			return nil
		}
		l.Logger.Warn("instrument cache unreadable, refreshing from REST", zap.Error(err))
	}

	return l.Refresh(ctx, store)
}

// Refresh fetches the instrument dump from REST and replaces both the
// cache and the store.
func (l *Loader) Refresh(ctx context.Context, store *Store) error {
	list, err := l.Rest.GetInstruments(ctx)
	if err != nil {
		return fmt.Errorf("fetch instrument dump: %w", err)
	}
	if len(list) == 0 {
		return fmt.Errorf("instrument dump is empty")
	}

	if err := l.Cache.ReplaceAllInstruments(ctx, list); err != nil {
		// The in-memory store can still serve lookups; log and continue.
		l.Logger.Warn("failed to update instrument cache", zap.Error(err))
	}

	store.Replace(list)
	l.Logger.Info("refreshed instruments from REST", zap.Int("count", len(list)))
	return nil
}

// StartDailyRefresh re-fetches the dump once per day at UTC midnight, when
// the broker publishes the next session's contracts.
func StartDailyRefresh(l *Loader, store *Store, timeout time.Duration) {
	go func() {
		now := time.Now().UTC()
		nextMidnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		time.Sleep(time.Until(nextMidnight))

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			if err := l.Refresh(ctx, store); err != nil {
				l.Logger.Warn("daily instrument refresh failed", zap.Error(err))
			}
			cancel()
			<-ticker.C
		}
	}()
}
