package ner

import (
	"context"
	"fmt"

	"github.com/jdkato/prose/v2"

	"github.com/couchcryptid/geonews-etl/internal/domain"
)

// ProseRecognizer runs the prose English model in process. Its entity
// labels include GPE and PERSON. It tends to tag a capitalised first word of
// a headline as GPE and misses some countries, so it is an opt-in fallback
// for the NER service.
type ProseRecognizer struct{}

// NewProseRecognizer returns an in-process recognizer.
func NewProseRecognizer() *ProseRecognizer {
	return &ProseRecognizer{}
}

// Recognize implements domain.EntityRecognizer.
func (ProseRecognizer) Recognize(ctx context.Context, text string) ([]domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, fmt.Errorf("prose document: %w", err)
	}

	ents := doc.Entities()
	out := make([]domain.Entity, 0, len(ents))
	for _, e := range ents {
		out = append(out, domain.Entity{Text: e.Text, Label: e.Label})
	}
	return out, nil
}
