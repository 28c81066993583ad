package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	PlaceName        string  `json:"place_name,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"` // 0.0–1.0 provider confidence score
}

// Found reports whether the provider returned a match.
func (r GeocodingResult) Found() bool {
	return r.Lat != 0 || r.Lon != 0 || r.FormattedAddress != ""
}

// Point returns the result's coordinates, or the NaN sentinel when empty.
func (r GeocodingResult) Point() GeoPoint {
	if !r.Found() {
		return UnresolvedPoint()
	}
	return GeoPoint{Lat: r.Lat, Lon: r.Lon}
}

// Geocoder resolves a free-text location to coordinates.
//
// Implementations must return an error wrapping ErrGeocodeTimeout when the
// call exceeded its timeout, and either ErrGeocodeNotFound or an empty result
// when the provider has no match.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (GeocodingResult, error)
}
