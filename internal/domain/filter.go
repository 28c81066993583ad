package domain

import "strings"

// Default exclusion lists.
var (
	DefaultExcludedLocations = []string{"world", "unknown"}
	DefaultExcludedURLTerms  = []string{"politics", "yahoo", "sports", "entertainment", "cricket"}
)

// DropReason names the filter pass that removed an article.
type DropReason string

const (
	DropUnclassified     DropReason = "unclassified"
	DropUnlocated        DropReason = "unlocated"
	DropExcludedLocation DropReason = "excluded_location"
	DropExcludedURL      DropReason = "excluded_url"
	DropUngeocoded       DropReason = "ungeocoded"
	DropDuplicateTitle   DropReason = "duplicate_title"
	DropDuplicateKey     DropReason = "duplicate_key"
	DropNERError         DropReason = "ner_error"
)

// DropStats counts removed articles per reason.
type DropStats map[DropReason]int

// Total is the number of dropped articles.
func (s DropStats) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}

// Merge adds other's counts into s.
func (s DropStats) Merge(other DropStats) {
	for k, v := range other {
		s[k] += v
	}
}

// FilterRules configures the exclusion passes.
type FilterRules struct {
	ExcludedLocations []string
	ExcludedURLTerms  []string
}

// DefaultFilterRules returns the built-in exclusion lists.
func DefaultFilterRules() FilterRules {
	return FilterRules{
		ExcludedLocations: append([]string(nil), DefaultExcludedLocations...),
		ExcludedURLTerms:  append([]string(nil), DefaultExcludedURLTerms...),
	}
}

// Filter removes articles that cannot become map records.
type Filter struct {
	excludedLocations map[string]struct{}
	excludedURLTerms  []string
}

// NewFilter lower-cases the rules. Blank entries are ignored.
func NewFilter(rules FilterRules) *Filter {
	f := &Filter{excludedLocations: make(map[string]struct{}, len(rules.ExcludedLocations))}
	for _, loc := range rules.ExcludedLocations {
		if loc = strings.ToLower(strings.TrimSpace(loc)); loc != "" {
			f.excludedLocations[loc] = struct{}{}
		}
	}
	for _, term := range rules.ExcludedURLTerms {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			f.excludedURLTerms = append(f.excludedURLTerms, term)
		}
	}
	return f
}

// Apply runs every pass over a geocoded batch: unclassified, unlocated,
// excluded location, excluded URL, NaN coordinates, duplicate title (first
// occurrence wins). Applying it to its own output returns the same batch.
func (f *Filter) Apply(batch []Article) ([]Article, DropStats) {
	return f.run(batch, true)
}

// Prefilter runs every pass except the coordinate check, so rows that would
// be dropped anyway never reach the geocoder.
func (f *Filter) Prefilter(batch []Article) ([]Article, DropStats) {
	return f.run(batch, false)
}

func (f *Filter) run(batch []Article, checkGeo bool) ([]Article, DropStats) {
	stats := DropStats{}
	out := make([]Article, 0, len(batch))
	seenTitles := make(map[string]struct{}, len(batch))

	for _, a := range batch {
		reason, keep := f.check(a, checkGeo)
		if keep {
			if _, dup := seenTitles[a.Title]; dup {
				reason, keep = DropDuplicateTitle, false
			}
		}
		if !keep {
			stats[reason]++
			continue
		}
		seenTitles[a.Title] = struct{}{}
		out = append(out, a)
	}
	return out, stats
}

func (f *Filter) check(a Article, checkGeo bool) (DropReason, bool) {
	switch {
	case a.DisasterEvent == Unknown || a.DisasterEvent == "":
		return DropUnclassified, false
	case !a.Located || a.Location.Canonical == "":
		return DropUnlocated, false
	case f.ExcludedLocation(a.Location.Canonical):
		return DropExcludedLocation, false
	case f.ExcludedURL(a.URL):
		return DropExcludedURL, false
	case checkGeo && !a.Geo.Resolved():
		return DropUngeocoded, false
	}
	return "", true
}

// ExcludedLocation reports whether the canonical location is on the
// exclusion list, ignoring case.
func (f *Filter) ExcludedLocation(canonical string) bool {
	_, ok := f.excludedLocations[strings.ToLower(strings.TrimSpace(canonical))]
	return ok
}

// ExcludedURL reports whether the URL contains a disallowed term, ignoring
// case.
func (f *Filter) ExcludedURL(u string) bool {
	lower := strings.ToLower(u)
	for _, term := range f.excludedURLTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
