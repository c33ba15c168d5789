package index

import (
	"context"
	"log/slog"

	"github.com/starford/ecglabel/internal/models"
)

// Source is the annotation store as seen by the indexer.
type Source interface {
	List(ctx context.Context) ([]models.DocumentInfo, error)
	ReadRaw(ctx context.Context, key string) (*models.AnnotationRecord, []byte, error)
}

// SyncResult counts what a Sync pass changed.
type SyncResult struct {
	Indexed int `json:"indexed"`
	Removed int `json:"removed"`
	Skipped int `json:"skipped"`
}

// Sync brings the index up to date with src:
//   - new/changed records are read, schema-checked and upserted
//   - malformed records are logged and skipped
//   - records no longer in the store are deleted from the index
func Sync(ctx context.Context, db *DB, src Source, logger *slog.Logger) (SyncResult, error) {
	var res SyncResult

	metas, err := src.List(ctx)
	if err != nil {
		return res, err
	}

	etags, err := db.AllETags()
	if err != nil {
		return res, err
	}

	present := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		present[m.Key] = struct{}{}

		if cur, ok := etags[m.Key]; ok && cur != "" && cur == m.ETag {
			continue
		}

		rec, _, err := src.ReadRaw(ctx, m.Key)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("key", m.Key), slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		if err := db.UpsertRecord(RowFromRecord(m.Key, m.ETag, rec)); err != nil {
			logger.Warn("sync: index failed", slog.String("key", m.Key), slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		logger.Debug("sync: indexed", slog.String("key", m.Key))
		res.Indexed++
	}

	for k := range etags {
		if _, ok := present[k]; ok {
			continue
		}
		if err := db.DeleteRecord(k); err != nil {
			logger.Warn("sync: delete failed", slog.String("key", k), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("key", k))
		res.Removed++
	}

	return res, nil
}
