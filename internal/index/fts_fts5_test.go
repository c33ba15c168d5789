//go:build sqlite_fts5

package index

import "testing"

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM annotations_fts`).Scan(&count); err != nil {
		t.Fatalf("annotations_fts table missing: %v", err)
	}
}

func TestFTS5_SearchNotes(t *testing.T) {
	db := testDB(t)
	row := RecordRow{
		Key:         "fts.json",
		Filename:    "fts.pdf",
		AnnotatedBy: "Dr. X",
		Arrhythmias: []string{"Atrial Flutter"},
		Notes:       "sawtooth flutter waves in the inferior leads",
		Timestamp:   "2024-03-19 10:00:00",
	}
	if err := db.UpsertRecord(row); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}

	results, err := db.Search("sawtooth", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Key != "fts.json" {
		t.Errorf("key = %q", results[0].Key)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertRecord(RecordRow{Key: "gone.json", Notes: "vanishing content"})
	_ = db.DeleteRecord("gone.json")

	results, _ := db.Search("vanishing", 10)
	for _, r := range results {
		if r.Key == "gone.json" {
			t.Error("deleted record still in FTS index")
		}
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertRecord(RecordRow{Key: "evo.json", Notes: "original text"})
	_ = db.UpsertRecord(RecordRow{Key: "evo.json", Filename: "evo.pdf", Notes: "replacement text"})

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].Filename != "evo.pdf" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
