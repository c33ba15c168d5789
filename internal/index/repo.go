package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/ecglabel/internal/models"
)

// RecordRow is one indexed annotation record.
type RecordRow struct {
	Key         string   `json:"key"`
	Filename    string   `json:"filename"`
	AnnotatedBy string   `json:"annotated_by"`
	Arrhythmias []string `json:"arrhythmias"`
	Notes       string   `json:"notes"`
	Timestamp   string   `json:"timestamp"`
	ETag        string   `json:"-"`
}

// RowFromRecord builds the row for rec stored under key. etag may be empty
// when the caller does not know the store's etag; the next Sync fills it in.
func RowFromRecord(key, etag string, rec *models.AnnotationRecord) RecordRow {
	return RecordRow{
		Key:         key,
		Filename:    rec.Filename,
		AnnotatedBy: rec.AnnotatedBy,
		Arrhythmias: rec.Arrhythmias,
		Notes:       rec.Notes,
		Timestamp:   rec.Timestamp,
		ETag:        etag,
	}
}

// Stats summarises the index.
type Stats struct {
	Total      int      `json:"total"`
	Annotators int      `json:"annotators"`
	Recent     []string `json:"recent"`
}

// LabelCount is the number of records carrying a label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Query filters Find. Empty fields match everything.
type Query struct {
	Label       string
	AnnotatedBy string
	Limit       int
}

// SearchResult represents one search hit.
type SearchResult struct {
	Key      string `json:"key"`
	Filename string `json:"filename"`
	Snippet  string `json:"snippet"`
}

// UpsertRecord inserts or replaces a record and its labels within a transaction.
func (db *DB) UpsertRecord(r RecordRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	labels := r.Arrhythmias
	if labels == nil {
		labels = []string{}
	}
	labelsJSON, _ := json.Marshal(labels)

	_, err = tx.Exec(`
		INSERT INTO annotations (key, filename, annotated_by, arrhythmias, notes, saved_at, etag, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			filename     = excluded.filename,
			annotated_by = excluded.annotated_by,
			arrhythmias  = excluded.arrhythmias,
			notes        = excluded.notes,
			saved_at     = excluded.saved_at,
			etag         = excluded.etag,
			indexed_at   = excluded.indexed_at
	`, r.Key, r.Filename, r.AnnotatedBy, string(labelsJSON), r.Notes, r.Timestamp, r.ETag)
	if err != nil {
		return fmt.Errorf("index: upsert record: %w", err)
	}

	if err := ftsUpsert(tx, r.Key, r.Filename, labels, r.Notes); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM labels WHERE key = ?`, r.Key); err != nil {
		return fmt.Errorf("index: clear labels: %w", err)
	}
	if len(labels) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO labels (key, label, position) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare label insert: %w", err)
		}
		defer stmt.Close()
		for i, label := range labels {
			if _, err := stmt.Exec(r.Key, label, i); err != nil {
				return fmt.Errorf("index: insert label: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteRecord removes a record, its FTS entry and labels.
func (db *DB) DeleteRecord(key string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, key)
	_, _ = tx.Exec(`DELETE FROM labels WHERE key = ?`, key)
	_, _ = tx.Exec(`DELETE FROM annotations WHERE key = ?`, key)

	return tx.Commit()
}

// GetRecord returns the indexed record, or nil if key is not indexed.
func (db *DB) GetRecord(key string) (*RecordRow, error) {
	row := db.conn.QueryRow(`
		SELECT key, filename, annotated_by, arrhythmias, notes, saved_at, etag
		FROM annotations WHERE key = ?`, key)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get record: %w", err)
	}
	return r, nil
}

// AllETags returns key → etag for every indexed record.
func (db *DB) AllETags() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT key, etag FROM annotations`)
	if err != nil {
		return nil, fmt.Errorf("index: all etags: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, e string
		if err := rows.Scan(&k, &e); err != nil {
			return nil, err
		}
		out[k] = e
	}
	return out, rows.Err()
}

// Stats returns the record count, the number of distinct annotators and up
// to recent keys in reverse key order.
func (db *DB) Stats(recent int) (*Stats, error) {
	if recent <= 0 {
		recent = 5
	}
	s := &Stats{Recent: []string{}}
	if err := db.conn.QueryRow(
		`SELECT count(*), count(DISTINCT annotated_by) FROM annotations`,
	).Scan(&s.Total, &s.Annotators); err != nil {
		return nil, fmt.Errorf("index: stats: %w", err)
	}

	rows, err := db.conn.Query(`SELECT key FROM annotations ORDER BY key DESC LIMIT ?`, recent)
	if err != nil {
		return nil, fmt.Errorf("index: recent: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		s.Recent = append(s.Recent, k)
	}
	return s, rows.Err()
}

// LabelCounts returns how many records carry each label, most frequent first.
// A label repeated within one record counts once.
func (db *DB) LabelCounts() ([]LabelCount, error) {
	rows, err := db.conn.Query(`
		SELECT label, count(DISTINCT key) AS n
		FROM labels
		GROUP BY label
		ORDER BY n DESC, label ASC`)
	if err != nil {
		return nil, fmt.Errorf("index: label counts: %w", err)
	}
	defer rows.Close()
	out := []LabelCount{}
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

// Find returns records matching q, ordered by key.
func (db *DB) Find(q Query) ([]RecordRow, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	var (
		where []string
		args  []any
	)
	if q.Label != "" {
		where = append(where, `key IN (SELECT key FROM labels WHERE label = ?)`)
		args = append(args, q.Label)
	}
	if q.AnnotatedBy != "" {
		where = append(where, `annotated_by = ?`)
		args = append(args, q.AnnotatedBy)
	}
	query := `SELECT key, filename, annotated_by, arrhythmias, notes, saved_at, etag FROM annotations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY key LIMIT ?`
	args = append(args, q.Limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: find: %w", err)
	}
	defer rows.Close()
	out := []RecordRow{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*RecordRow, error) {
	var (
		r          RecordRow
		labelsJSON string
	)
	if err := s.Scan(&r.Key, &r.Filename, &r.AnnotatedBy, &labelsJSON, &r.Notes, &r.Timestamp, &r.ETag); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(labelsJSON), &r.Arrhythmias); err != nil {
		return nil, fmt.Errorf("index: decode labels of %s: %w", r.Key, err)
	}
	if r.Arrhythmias == nil {
		r.Arrhythmias = []string{}
	}
	return &r, nil
}
