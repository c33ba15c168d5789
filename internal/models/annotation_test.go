package models

import (
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionLabels(t *testing.T) {
	s := Submission{Arrhythmias: []string{"Asystole"}, CustomLabel: "  Wenckebach  "}
	assert.Equal(t, []string{"Asystole", "Wenckebach"}, s.Labels())

	s = Submission{}
	assert.Empty(t, s.Labels())
}

func TestSubmissionValidate(t *testing.T) {
	tests := []struct {
		name    string
		sub     Submission
		wantErr string
	}{
		{name: "vocabulary label", sub: Submission{Arrhythmias: []string{"Asystole"}, AnnotatedBy: "Dr. X"}},
		{name: "custom label only", sub: Submission{CustomLabel: "Brugada pattern", AnnotatedBy: "Dr. X"}},
		{name: "notes only", sub: Submission{Notes: "artefact, repeat", AnnotatedBy: "Dr. X"}},
		{name: "duplicates allowed", sub: Submission{Arrhythmias: []string{"Asystole", "Asystole"}, AnnotatedBy: "Dr. X"}},
		{name: "nothing", sub: Submission{AnnotatedBy: "Dr. X"}, wantErr: "arrhythmias"},
		{name: "whitespace only", sub: Submission{CustomLabel: "  ", Notes: " ", AnnotatedBy: "Dr. X"}, wantErr: "arrhythmias"},
		{name: "no annotator", sub: Submission{Arrhythmias: []string{"Asystole"}}, wantErr: "annotated_by"},
		{name: "blank label", sub: Submission{Arrhythmias: []string{""}, AnnotatedBy: "Dr. X"}, wantErr: "arrhythmias"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var errs validation.Errors
			require.ErrorAs(t, err, &errs)
			assert.Contains(t, errs, tt.wantErr)
		})
	}
}

func TestRecordValidate(t *testing.T) {
	good := AnnotationRecord{
		Filename:    "a.pdf",
		Arrhythmias: []string{},
		AnnotatedBy: "Dr. X",
		Timestamp:   "2024-03-19 10:11:12",
	}
	require.NoError(t, good.Validate())

	bad := good
	bad.Timestamp = "19/03/2024"
	assert.Error(t, bad.Validate())

	bad = good
	bad.Arrhythmias = nil
	assert.Error(t, bad.Validate())

	bad = good
	bad.Filename = ""
	assert.Error(t, bad.Validate())
}

func TestFormFromRecord(t *testing.T) {
	assert.Equal(t, Form{Selected: []string{}}, FormFromRecord(nil))

	rec := &AnnotationRecord{
		Arrhythmias: []string{"Sinus Tachycardia", "Custom A", "Asystole", "Custom B"},
		Notes:       "see lead II",
	}
	f := FormFromRecord(rec)
	assert.Equal(t, []string{"Sinus Tachycardia", "Asystole"}, f.Selected)
	assert.Equal(t, "Custom A", f.CustomLabel)
	assert.Equal(t, "see lead II", f.Notes)
}

func TestVocabulary(t *testing.T) {
	assert.Len(t, Vocabulary, 15)
	assert.True(t, IsVocabulary("Atrial Fibrillation"))
	assert.False(t, IsVocabulary("atrial fibrillation"))
}
