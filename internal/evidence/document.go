package evidence

import (
	"fmt"
	"strings"
	"time"
)

// DocumentKind is the type of a historical source document.
type DocumentKind string

const (
	DocumentColonialDiary DocumentKind = "colonial_diary"
	DocumentIndigenousMap DocumentKind = "indigenous_map"
)

// Document is a historical text handed to the text evidence extractor.
// Structured map data is carried as its serialized text.
type Document struct {
	ID         string       `json:"id"`
	Kind       DocumentKind `json:"type"`
	Content    string       `json:"content"`
	Date       *time.Time   `json:"date,omitempty"`
	Provenance string       `json:"provenance,omitempty"`
}

// Validate checks that the document can be analysed.
func (d Document) Validate() error {
	switch d.Kind {
	case DocumentColonialDiary, DocumentIndigenousMap:
	default:
		return fmt.Errorf("document %s: unknown type %q", d.ID, d.Kind)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("document %s: empty content", d.ID)
	}
	return nil
}

// Ref returns the best reference for logs and provenance.
func (d Document) Ref() string {
	if d.Provenance != "" {
		return d.Provenance
	}
	return d.ID
}
