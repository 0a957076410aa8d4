package api

import "maps"

// Document is a unit of text with its source metadata. Loaded files
// and the chunks split from them share this type.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

func (d Document) Copy() *Document {
	return &Document{
		ID:       d.ID,
		Text:     d.Text,
		Metadata: maps.Clone(d.Metadata),
	}
}

// MetaString returns the metadata value for key if it is a string.
func (d Document) MetaString(key string) string {
	v, _ := d.Metadata[key].(string)
	return v
}

type ScoredDocument struct {
	// Required
	Content string
	Score   float64

	// Optional
	ID     string
	Title  string
	Source string
}

func (d ScoredDocument) Copy() *ScoredDocument {
	return &ScoredDocument{
		Content: d.Content,
		Score:   d.Score,
		ID:      d.ID,
		Title:   d.Title,
		Source:  d.Source,
	}
}
