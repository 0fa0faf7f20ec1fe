package workers

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// StorageGCWorker reclaims badger value-log space periodically. Badger never
// garbage-collects on its own; without this loop the value log grows
// unbounded.
type StorageGCWorker struct {
	db       *badger.DB
	interval time.Duration
	log      *slog.Logger
}

func NewStorageGCWorker(db *badger.DB, interval time.Duration, log *slog.Logger) *StorageGCWorker {
	return &StorageGCWorker{db: db, interval: interval, log: log}
}

func (w *StorageGCWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Rewrite value-log files with at least half their space dead.
			err := w.db.RunValueLogGC(0.5)
			if err != nil && !stderrors.Is(err, badger.ErrNoRewrite) {
				w.log.Warn("Value log GC failed", "error", err)
			}
		}
	}
}
