package index

import (
	"os"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "ecglabel-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func row(key, by string, labels ...string) RecordRow {
	return RecordRow{
		Key:         key,
		Filename:    key[:len(key)-len(".json")] + ".pdf",
		AnnotatedBy: by,
		Arrhythmias: labels,
		Timestamp:   "2024-03-19 10:00:00",
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM annotations`).Scan(&count); err != nil {
		t.Fatalf("annotations table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM labels`).Scan(&count); err != nil {
		t.Fatalf("labels table missing: %v", err)
	}
}

func TestUpsertAndGetRecord(t *testing.T) {
	db := testDB(t)
	r := row("a.json", "Dr. X", "Asystole", "Custom")
	r.Notes = "flat line"
	r.ETag = "e1"
	if err := db.UpsertRecord(r); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	got, err := db.GetRecord("a.json")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got == nil || got.Filename != "a.pdf" || got.Notes != "flat line" || got.ETag != "e1" {
		t.Fatalf("got %+v", got)
	}
	if len(got.Arrhythmias) != 2 || got.Arrhythmias[1] != "Custom" {
		t.Errorf("arrhythmias = %v", got.Arrhythmias)
	}

	missing, err := db.GetRecord("nope.json")
	if err != nil || missing != nil {
		t.Errorf("missing record: %+v, %v", missing, err)
	}
}

func TestUpsertReplacesLabels(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertRecord(row("a.json", "Dr. X", "Asystole", "Atrial Flutter"))
	_ = db.UpsertRecord(row("a.json", "Dr. Y", "Sinus Bradycardia"))

	counts, err := db.LabelCounts()
	if err != nil {
		t.Fatalf("LabelCounts: %v", err)
	}
	if len(counts) != 1 || counts[0].Label != "Sinus Bradycardia" {
		t.Errorf("counts = %+v", counts)
	}
}

func TestDeleteRecord(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertRecord(row("a.json", "Dr. X", "Asystole"))
	if err := db.DeleteRecord("a.json"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if got, _ := db.GetRecord("a.json"); got != nil {
		t.Error("record still indexed")
	}
	counts, _ := db.LabelCounts()
	if len(counts) != 0 {
		t.Errorf("labels left behind: %+v", counts)
	}
}

func TestStats(t *testing.T) {
	db := testDB(t)
	for _, k := range []string{"a.json", "b.json", "c.json", "d.json", "e.json", "f.json"} {
		_ = db.UpsertRecord(row(k, "Dr. X", "Asystole"))
	}
	_ = db.UpsertRecord(row("g.json", "Dr. Y", "Asystole"))

	s, err := db.Stats(5)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.Total != 7 || s.Annotators != 2 {
		t.Errorf("stats = %+v", s)
	}
	want := []string{"g.json", "f.json", "e.json", "d.json", "c.json"}
	if len(s.Recent) != len(want) {
		t.Fatalf("recent = %v", s.Recent)
	}
	for i := range want {
		if s.Recent[i] != want[i] {
			t.Errorf("recent[%d] = %q, want %q", i, s.Recent[i], want[i])
		}
	}
}

func TestLabelCountsAndFind(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertRecord(row("a.json", "Dr. X", "Asystole", "Asystole"))
	_ = db.UpsertRecord(row("b.json", "Dr. Y", "Asystole", "Atrial Flutter"))
	_ = db.UpsertRecord(row("c.json", "Dr. X", "Atrial Flutter"))
	_ = db.UpsertRecord(row("d.json", "Dr. X"))

	counts, err := db.LabelCounts()
	if err != nil {
		t.Fatalf("LabelCounts: %v", err)
	}
	if len(counts) != 2 || counts[0] != (LabelCount{"Asystole", 2}) || counts[1] != (LabelCount{"Atrial Flutter", 2}) {
		t.Errorf("counts = %+v", counts)
	}

	rows, err := db.Find(Query{Label: "Atrial Flutter"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(rows) != 2 || rows[0].Key != "b.json" || rows[1].Key != "c.json" {
		t.Errorf("by label = %+v", rows)
	}

	rows, _ = db.Find(Query{Label: "Atrial Flutter", AnnotatedBy: "Dr. X"})
	if len(rows) != 1 || rows[0].Key != "c.json" {
		t.Errorf("by label and annotator = %+v", rows)
	}

	rows, _ = db.Find(Query{AnnotatedBy: "Dr. X", Limit: 2})
	if len(rows) != 2 {
		t.Errorf("limit ignored: %d rows", len(rows))
	}
}

func TestSearchNotesAndLabels(t *testing.T) {
	db := testDB(t)
	r := row("a.json", "Dr. X", "Junctional Rhythm")
	r.Notes = "retrograde P waves"
	_ = db.UpsertRecord(r)
	_ = db.UpsertRecord(row("b.json", "Dr. X", "Asystole"))

	results, err := db.Search("retrograde", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Key != "a.json" {
		t.Errorf("results = %+v", results)
	}
}
