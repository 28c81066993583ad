package domain

import (
	"fmt"
	"strings"
)

// Label is a disaster-event classification. Valid labels are the configured
// keywords plus Unknown.
type Label string

// Unknown labels titles that matched no keyword.
const Unknown Label = "Unknown"

// DefaultKeywords is the ordered disaster vocabulary. Order is the tie-break
// when a title contains more than one keyword.
var DefaultKeywords = []string{
	"earthquake", "flood", "tsunami", "hurricane", "wildfire", "forestfire",
	"tornado", "cyclone", "volcano", "drought", "landslide", "storm",
	"blizzard", "avalanche", "heatwave",
}

// Classifier assigns disaster labels from an ordered keyword vocabulary.
type Classifier struct {
	keywords []string
}

// NewClassifier validates and lower-cases the vocabulary.
func NewClassifier(keywords []string) (*Classifier, error) {
	if len(keywords) == 0 {
		return nil, ErrEmptyVocabulary
	}
	kw := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for i, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			return nil, fmt.Errorf("disaster keyword %d is empty", i)
		}
		if k == strings.ToLower(string(Unknown)) {
			return nil, fmt.Errorf("disaster keyword %q is reserved", k)
		}
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("disaster keyword %q is listed twice", k)
		}
		seen[k] = struct{}{}
		kw = append(kw, k)
	}
	return &Classifier{keywords: kw}, nil
}

// Keywords returns the vocabulary in tie-break order.
func (c *Classifier) Keywords() []string {
	out := make([]string, len(c.keywords))
	copy(out, c.keywords)
	return out
}

// Classify returns the first vocabulary keyword found in the title, or Unknown.
func (c *Classifier) Classify(title string) Label {
	if title == "" {
		return Unknown
	}
	lower := strings.ToLower(title)
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			return Label(k)
		}
	}
	return Unknown
}

// ClassifyArticle labels a raw article.
func (c *Classifier) ClassifyArticle(raw RawArticle) ClassifiedArticle {
	return ClassifiedArticle{RawArticle: raw, DisasterEvent: c.Classify(raw.Title)}
}
