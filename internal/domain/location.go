package domain

import "context"

// LabelGPE is the entity label for geopolitical entities (countries, cities,
// states).
const LabelGPE = "GPE"

// Entity is one named entity found by a recognizer.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// EntityRecognizer runs named-entity recognition over text and returns
// entities in left-to-right order.
type EntityRecognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// ExtractLocations returns the GPE mentions in text, in order, duplicates
// retained.
func ExtractLocations(ctx context.Context, r EntityRecognizer, text string) ([]string, error) {
	entities, err := r.Recognize(ctx, text)
	if err != nil {
		return nil, err
	}
	return GPEs(entities), nil
}

// GPEs keeps the text of entities labelled GPE.
func GPEs(entities []Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.Label == LabelGPE {
			out = append(out, e.Text)
		}
	}
	return out
}

// ResolveLocation maps candidates positionally onto country, region and city
// and picks the most specific non-empty level as canonical. It reports false
// for zero or more than three candidates, or when every level is empty.
func ResolveLocation(candidates []string) (ResolvedLocation, bool) {
	var loc ResolvedLocation
	switch len(candidates) {
	case 1:
		loc.Country = candidates[0]
	case 2:
		loc.Country, loc.Region = candidates[0], candidates[1]
	case 3:
		loc.Country, loc.Region, loc.City = candidates[0], candidates[1], candidates[2]
	default:
		return ResolvedLocation{}, false
	}

	loc.Canonical = canonicalOf(loc)
	if loc.Canonical == "" {
		return ResolvedLocation{}, false
	}
	return loc, true
}

func canonicalOf(loc ResolvedLocation) string {
	switch {
	case loc.City != "":
		return loc.City
	case loc.Region != "":
		return loc.Region
	default:
		return loc.Country
	}
}
