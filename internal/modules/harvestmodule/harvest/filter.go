package harvest

import (
	"strings"

	"github.com/mantonx/harvester/internal/extractor"
)

// FilterEngine evaluates extracted records against session filter criteria.
// A record passes only when every enabled rule passes; failing records are
// counted but never written to the sink or relocated.
type FilterEngine struct{}

func NewFilterEngine() *FilterEngine {
	return &FilterEngine{}
}

// Evaluate reports whether the record satisfies all criteria. Disabled
// criteria pass everything.
func (f *FilterEngine) Evaluate(rec *extractor.Record, criteria FilterCriteria) bool {
	if !criteria.Enabled {
		return true
	}

	if len(criteria.FileTypes) > 0 {
		if !typeAllowed(rec.GetString("extension"), criteria.FileTypes) {
			return false
		}
	}

	if criteria.MinWidth != nil {
		if w, ok := rec.GetInt64("width"); !ok || w < *criteria.MinWidth {
			return false
		}
	}
	if criteria.MinHeight != nil {
		if h, ok := rec.GetInt64("height"); !ok || h < *criteria.MinHeight {
			return false
		}
	}
	if criteria.MinFileSize != nil {
		if s, ok := rec.GetInt64("fileSize"); !ok || s < *criteria.MinFileSize {
			return false
		}
	}
	if criteria.MaxFileSize != nil {
		if s, ok := rec.GetInt64("fileSize"); !ok || s > *criteria.MaxFileSize {
			return false
		}
	}

	for field, predicate := range criteria.Text {
		if !evalText(rec.GetString(field), predicate) {
			return false
		}
	}

	return true
}

// typeAllowed matches the record extension against the allow-list. The tif
// and tiff spellings are interchangeable on both sides.
func typeAllowed(ext string, allowed []string) bool {
	ext = canonicalType(ext)
	for _, t := range allowed {
		if canonicalType(t) == ext {
			return true
		}
	}
	return false
}

func canonicalType(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "tif" {
		return "tiff"
	}
	return ext
}

// evalText applies one text predicate. Comparisons are case-insensitive on
// trimmed values; a field missing from the record evaluates as blank.
func evalText(value string, p TextPredicate) bool {
	got := strings.ToLower(strings.TrimSpace(value))
	want := strings.ToLower(strings.TrimSpace(p.Value))

	switch p.Operator {
	case "":
		// An absent operator imposes no constraint.
		return true
	case OpEquals:
		return got == want
	case OpNotEquals:
		return got != want
	case OpLike:
		return strings.Contains(got, want)
	case OpNotLike:
		return !strings.Contains(got, want)
	case OpStartsWith:
		return strings.HasPrefix(got, want)
	case OpEndsWith:
		return strings.HasSuffix(got, want)
	case OpIsBlank:
		return got == ""
	case OpNotBlank:
		return got != ""
	default:
		// Unknown operators never pass; a typo in criteria should not
		// silently admit records.
		return false
	}
}
