// Package domain models disaster news articles as they move through the
// enrichment pipeline.
//
// # Article Lifecycle
//
// A [RawArticle] is what a news source returns: title, source name, URL and
// publication time. Each article then passes through these stages:
//
//	RawArticle -> ClassifiedArticle -> Article (candidates, location, geo) -> PersistedRecord
//
// # Classification
//
// The [Classifier] scans the title for the configured disaster keywords in
// vocabulary order and labels the article with the first keyword found as a
// case-insensitive substring. Titles with no keyword are labelled [Unknown]
// and discarded. A title such as "Storm triggers flood warnings" resolves to
// "flood" under the default vocabulary because "flood" precedes "storm".
//
// # Location Resolution
//
// Place names come from a named-entity recognizer; only entities labelled
// [LabelGPE] are kept, in order of mention. [ResolveLocation] assigns them
// positionally:
//
//	1 candidate   -> country
//	2 candidates  -> country, region
//	3 candidates  -> country, region, city
//	0 or >3       -> nothing (article dropped)
//
// The canonical location is the most specific non-empty level
// (city > region > country). This assumes NER order follows the
// administrative hierarchy, which is a heuristic.
//
// # Geocoding
//
// [GeoResolver] turns the canonical location into coordinates. Timeouts are
// retried with exponential backoff and jitter up to a fixed attempt count;
// anything else resolves immediately. Unresolved points carry NaN
// coordinates and a [GeoStatus] explaining why, and are removed by [Filter].
//
// # Uniqueness
//
// Two records are the same event when they share the [UniqueKey] triple
// (UTC publication date, disaster label, canonical location). Record IDs are
// UUIDv5 hashes of that triple, so repeated runs insert-if-absent instead of
// duplicating rows. See [NewPersistedRecord].
package domain
