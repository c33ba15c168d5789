//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS annotations_fts USING fts5(
			key UNINDEXED,
			filename,
			labels,
			notes,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, key, filename string, labels []string, notes string) error {
	_, _ = tx.Exec(`DELETE FROM annotations_fts WHERE key = ?`, key)
	_, err := tx.Exec(`INSERT INTO annotations_fts (key, filename, labels, notes) VALUES (?, ?, ?, ?)`,
		key, filename, strings.Join(labels, "; "), notes)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, key string) {
	_, _ = tx.Exec(`DELETE FROM annotations_fts WHERE key = ?`, key)
}

// Search performs an FTS5 full-text search over labels and notes.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT key,
		       filename,
		       snippet(annotations_fts, -1, '<b>', '</b>', '...', 32)
		FROM annotations_fts
		WHERE annotations_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Key, &r.Filename, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
