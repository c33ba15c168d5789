package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ecglabel/internal/storage"
)

// Event kinds reported to an EventCallback.
const (
	EventSaved   = "saved"
	EventDeleted = "deleted"
)

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind string, key string)

// Watch follows the local annotations directory with fsnotify and keeps the
// index in step with records written, replaced or removed by any process.
// Writes whose content is already indexed (for example a save that went
// through the API) do not trigger cb. It returns when ctx is cancelled.
func Watch(ctx context.Context, db *DB, src Source, dir string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("dir", dir))

	// reconcileTimer debounces the pass that follows a rename.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(ctx, db, src, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			key := filepath.Base(ev.Name)
			if !strings.HasSuffix(key, ".json") || storage.ValidateKey(key) != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				changed, err := indexKey(ctx, db, src, key)
				if err != nil {
					logger.Warn("watcher: index failed", slog.String("key", key), slog.String("error", err.Error()))
					continue
				}
				if changed {
					logger.Debug("watcher: indexed", slog.String("key", key))
					if cb != nil {
						cb(EventSaved, key)
					}
				}

			case ev.Op&fsnotify.Remove != 0:
				if err := db.DeleteRecord(key); err != nil {
					logger.Warn("watcher: delete failed", slog.String("key", key), slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("key", key))
				if cb != nil {
					cb(EventDeleted, key)
				}

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old name only; the new name arrives
				// as a Create if it stays in the directory.
				if err := db.DeleteRecord(key); err == nil && cb != nil {
					cb(EventDeleted, key)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// indexKey reads key and upserts it unless the indexed etag already matches.
func indexKey(ctx context.Context, db *DB, src Source, key string) (bool, error) {
	rec, raw, err := src.ReadRaw(ctx, key)
	if err != nil {
		return false, err
	}
	etag := storage.Checksum(raw)
	if cur, err := db.GetRecord(key); err == nil && cur != nil && cur.ETag == etag {
		return false, nil
	}
	if err := db.UpsertRecord(RowFromRecord(key, etag, rec)); err != nil {
		return false, err
	}
	return true, nil
}

// reconcile runs a Sync pass and reports its effect as a single callback.
func reconcile(ctx context.Context, db *DB, src Source, logger *slog.Logger, cb EventCallback) {
	res, err := Sync(ctx, db, src, logger)
	if err != nil {
		logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
		return
	}
	if (res.Indexed > 0 || res.Removed > 0) && cb != nil {
		cb(EventSaved, "")
	}
}
