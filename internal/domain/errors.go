package domain

import "errors"

var (
	// ErrMissingCredential means a required API credential is not configured.
	// Runs that hit it stop cleanly without writing anything.
	ErrMissingCredential = errors.New("missing credential")

	// ErrGeocodeTimeout marks a geocoding call that exceeded its per-call
	// timeout. It is the only geocoding error that is retried.
	ErrGeocodeTimeout = errors.New("geocode timeout")

	// ErrGeocodeNotFound means the provider answered but had no match.
	ErrGeocodeNotFound = errors.New("geocode: location not found")

	// ErrEmptyVocabulary is returned when no disaster keywords are configured.
	ErrEmptyVocabulary = errors.New("disaster keyword vocabulary is empty")
)
