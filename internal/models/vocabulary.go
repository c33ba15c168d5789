package models

// Vocabulary is the controlled list of arrhythmia labels in display order.
var Vocabulary = []string{
	"Atrial Fibrillation",
	"Atrial Flutter",
	"Ventricular Tachycardia",
	"Ventricular Fibrillation",
	"Premature Ventricular Contraction (PVC)",
	"Premature Atrial Contraction (PAC)",
	"Sinus Bradycardia",
	"Sinus Tachycardia",
	"First-degree AV Block",
	"Second-degree AV Block",
	"Third-degree AV Block",
	"Bundle Branch Block",
	"Supraventricular Tachycardia (SVT)",
	"Junctional Rhythm",
	"Asystole",
}

var vocabularySet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Vocabulary))
	for _, v := range Vocabulary {
		m[v] = struct{}{}
	}
	return m
}()

// IsVocabulary reports whether label is one of the controlled labels.
func IsVocabulary(label string) bool {
	_, ok := vocabularySet[label]
	return ok
}

// Form is the editing form pre-populated from an existing record.
type Form struct {
	Selected    []string `json:"selected"`
	CustomLabel string   `json:"custom_label"`
	Notes       string   `json:"notes"`
}

// FormFromRecord splits a record's labels into vocabulary selections and the
// first free-text label. A nil record yields an empty form.
func FormFromRecord(rec *AnnotationRecord) Form {
	f := Form{Selected: []string{}}
	if rec == nil {
		return f
	}
	for _, a := range rec.Arrhythmias {
		if IsVocabulary(a) {
			f.Selected = append(f.Selected, a)
		} else if f.CustomLabel == "" {
			f.CustomLabel = a
		}
	}
	f.Notes = rec.Notes
	return f
}
