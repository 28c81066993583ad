package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// recordNamespace seeds UUIDv5 record IDs.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/couchcryptid/geonews-etl/disaster-events"))

// DateLayout formats the date part of the uniqueness triple.
const DateLayout = "2006-01-02"

// PersistedRecord is the stored, map-ready form of an article.
type PersistedRecord struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Source        string    `json:"source"`
	URL           string    `json:"url"`
	PublishedAt   time.Time `json:"timestamp"`
	DisasterEvent Label     `json:"disaster_event"`
	Country       string    `json:"country"`
	Region        string    `json:"region"`
	City          string    `json:"city"`
	Location      string    `json:"location"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// UniqueKey is the triple that defines a semantically duplicate record.
type UniqueKey struct {
	Date          string
	DisasterEvent Label
	Location      string // trimmed, lower-cased canonical location
}

// String renders the key as "date|event|location".
func (k UniqueKey) String() string {
	return k.Date + "|" + string(k.DisasterEvent) + "|" + k.Location
}

// ID is the deterministic record ID for the key.
func (k UniqueKey) ID() string {
	return uuid.NewSHA1(recordNamespace, []byte(k.String())).String()
}

// KeyFor builds the uniqueness key from its parts. The date is the UTC
// calendar day of publishedAt.
func KeyFor(publishedAt time.Time, event Label, canonical string) UniqueKey {
	return UniqueKey{
		Date:          publishedAt.UTC().Format(DateLayout),
		DisasterEvent: event,
		Location:      strings.ToLower(strings.TrimSpace(canonical)),
	}
}

// Key returns the record's uniqueness key.
func (r PersistedRecord) Key() UniqueKey {
	return KeyFor(r.PublishedAt, r.DisasterEvent, r.Location)
}

// NewPersistedRecord flattens a filtered article into a record.
func NewPersistedRecord(a Article, processedAt time.Time) PersistedRecord {
	rec := PersistedRecord{
		Title:         a.Title,
		Source:        a.Source,
		URL:           a.URL,
		PublishedAt:   a.PublishedAt,
		DisasterEvent: a.DisasterEvent,
		Country:       a.Location.Country,
		Region:        a.Location.Region,
		City:          a.Location.City,
		Location:      a.Location.Canonical,
		Latitude:      a.Geo.Lat,
		Longitude:     a.Geo.Lon,
		ProcessedAt:   processedAt.UTC(),
	}
	rec.ID = rec.Key().ID()
	return rec
}

// DedupByKey keeps the first record for each uniqueness key and returns how
// many were collapsed.
func DedupByKey(records []PersistedRecord) ([]PersistedRecord, int) {
	seen := make(map[UniqueKey]struct{}, len(records))
	out := make([]PersistedRecord, 0, len(records))
	for _, r := range records {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, len(records) - len(out)
}

// EventQuery selects stored records. From and To are inclusive; empty Events
// matches every label and a non-positive Limit means no limit.
type EventQuery struct {
	From   time.Time
	To     time.Time
	Events []Label
	Limit  int
}
