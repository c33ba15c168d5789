package index

// AnnotationIndex is the read/write surface consumers depend on.
type AnnotationIndex interface {
	UpsertRecord(r RecordRow) error
	DeleteRecord(key string) error
	GetRecord(key string) (*RecordRow, error)
	AllETags() (map[string]string, error)
	Stats(recent int) (*Stats, error)
	LabelCounts() ([]LabelCount, error)
	Find(q Query) ([]RecordRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies AnnotationIndex at compile time.
var _ AnnotationIndex = (*DB)(nil)
