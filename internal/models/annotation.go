// Package models defines the domain types for ecglabel.
package models

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// TimestampLayout is the save-time format of AnnotationRecord.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// AnnotationRecord is the structured label data attached to one document.
// It is persisted as a flat JSON object next to the documents.
type AnnotationRecord struct {
	Filename    string   `json:"filename"`
	Arrhythmias []string `json:"arrhythmias"`
	Notes       string   `json:"notes"`
	AnnotatedBy string   `json:"annotated_by"`
	Timestamp   string   `json:"timestamp"`
}

// Validate is the schema check applied to records read back from a store.
func (r *AnnotationRecord) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Filename, validation.Required),
		validation.Field(&r.Arrhythmias, validation.NotNil),
		validation.Field(&r.AnnotatedBy, validation.Required),
		validation.Field(&r.Timestamp, validation.Required, validation.Date(TimestampLayout)),
	)
}

// SavedAt parses Timestamp in the local time zone.
func (r *AnnotationRecord) SavedAt() (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, r.Timestamp, time.Local)
}

var errEmptyLabels = errors.New("select at least one arrhythmia, enter a custom one, or add notes")

// Submission is what an annotator submits for one document.
type Submission struct {
	Arrhythmias []string `json:"arrhythmias"`
	CustomLabel string   `json:"custom_label"`
	Notes       string   `json:"notes"`
	AnnotatedBy string   `json:"annotated_by"`
}

// Labels returns the selected labels with the custom label appended when set.
func (s *Submission) Labels() []string {
	out := make([]string, 0, len(s.Arrhythmias)+1)
	out = append(out, s.Arrhythmias...)
	if c := strings.TrimSpace(s.CustomLabel); c != "" {
		out = append(out, c)
	}
	return out
}

// Validate rejects a submission without an annotator or without any label
// and notes.
func (s *Submission) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.AnnotatedBy, validation.By(notBlank)),
		validation.Field(&s.Arrhythmias, validation.Each(validation.By(notBlank))),
	)
	if err != nil {
		return err
	}
	if len(s.Labels()) == 0 && strings.TrimSpace(s.Notes) == "" {
		return validation.Errors{"arrhythmias": errEmptyLabels}
	}
	return nil
}

func notBlank(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

// DocumentInfo is the listing metadata of one stored object.
type DocumentInfo struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	ETag      string    `json:"etag"`
	UpdatedAt time.Time `json:"updated_at"`
}
