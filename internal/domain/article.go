package domain

import (
	"math"
	"time"
)

// RawArticle is a single news article as returned by a news source.
type RawArticle struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// ClassifiedArticle is a RawArticle labelled with a disaster event.
type ClassifiedArticle struct {
	RawArticle
	DisasterEvent Label `json:"disaster_event"`
}

// ResolvedLocation is the country/region/city hierarchy derived from the
// place names mentioned in a title.
type ResolvedLocation struct {
	Country   string `json:"country"`
	Region    string `json:"region"`
	City      string `json:"city"`
	Canonical string `json:"location"`
}

// GeoPoint is a WGS-84 latitude/longitude pair. Unresolved points hold NaN
// in both fields.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// UnresolvedPoint returns the NaN sentinel used when geocoding produced no
// usable coordinates.
func UnresolvedPoint() GeoPoint {
	return GeoPoint{Lat: math.NaN(), Lon: math.NaN()}
}

// Resolved reports whether both coordinates are usable numbers.
func (p GeoPoint) Resolved() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon)
}

// GeoStatus records how geocoding of an article ended.
type GeoStatus string

const (
	GeoPending   GeoStatus = ""
	GeoResolved  GeoStatus = "resolved"
	GeoNotFound  GeoStatus = "not_found"
	GeoFailed    GeoStatus = "failed"
	GeoExhausted GeoStatus = "exhausted" // retry bound exceeded
)

// Article is the in-flight state of one article inside a pipeline run.
type Article struct {
	ClassifiedArticle

	// Candidates are GPE mentions in order of appearance, duplicates kept.
	Candidates []string

	Location ResolvedLocation
	Located  bool

	Geo       GeoPoint
	GeoStatus GeoStatus
}

// NewArticle wraps a classified article with an unresolved geo point.
func NewArticle(c ClassifiedArticle) Article {
	return Article{ClassifiedArticle: c, Geo: UnresolvedPoint()}
}
