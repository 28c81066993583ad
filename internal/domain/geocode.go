package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how timeout-class geocoding failures are retried.
type RetryPolicy struct {
	MaxAttempts     int           // total attempts including the first
	InitialInterval time.Duration // wait before the second attempt
	MaxInterval     time.Duration // cap on a single wait
	Multiplier      float64
	Jitter          float64 // randomization factor, 0 disables
}

// DefaultRetryPolicy retries up to five times, starting at 500ms and doubling
// to at most 10s, with ±50% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		Jitter:          0.5,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// GeoOutcome is the terminal result of resolving one location.
type GeoOutcome struct {
	Point    GeoPoint
	Status   GeoStatus
	Result   GeocodingResult
	Attempts int
	Err      error
}

// GeoResolver applies the retry policy around a Geocoder.
type GeoResolver struct {
	geocoder Geocoder
	policy   RetryPolicy
	logger   *slog.Logger
}

// NewGeoResolver creates a resolver. A nil geocoder resolves nothing: every
// outcome is GeoFailed.
func NewGeoResolver(geocoder Geocoder, policy RetryPolicy, logger *slog.Logger) *GeoResolver {
	return &GeoResolver{geocoder: geocoder, policy: policy, logger: logger}
}

// Resolve geocodes location. Timeouts are retried with backoff until the
// attempt bound; the bound turns into GeoExhausted. Not-found answers and
// other errors return immediately. Unresolved outcomes carry NaN coordinates.
func (r *GeoResolver) Resolve(ctx context.Context, location string) GeoOutcome {
	if r.geocoder == nil || location == "" {
		return GeoOutcome{Point: UnresolvedPoint(), Status: GeoFailed}
	}

	var (
		result   GeocodingResult
		attempts int
	)
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		res, err := r.geocoder.Geocode(ctx, location)
		switch {
		case err == nil && !res.Found():
			return backoff.Permanent(ErrGeocodeNotFound)
		case err == nil:
			result = res
			return nil
		case errors.Is(err, ErrGeocodeTimeout):
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("geocoding timed out, retrying",
			"location", location,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(op, r.policy.backOff(ctx), notify)
	out := GeoOutcome{Point: UnresolvedPoint(), Attempts: attempts, Err: err}
	switch {
	case err == nil:
		out.Point = result.Point()
		out.Status = GeoResolved
		out.Result = result
	case errors.Is(err, ErrGeocodeNotFound):
		out.Status = GeoNotFound
	case ctx.Err() != nil:
		out.Status = GeoFailed
	case errors.Is(err, ErrGeocodeTimeout):
		out.Status = GeoExhausted
		r.logger.Warn("geocoding gave up after retries", "location", location, "attempts", attempts)
	default:
		out.Status = GeoFailed
		r.logger.Warn("geocoding failed", "location", location, "error", err)
	}
	return out
}

// Apply resolves the article's canonical location in place.
func (r *GeoResolver) Apply(ctx context.Context, a *Article) GeoOutcome {
	out := r.Resolve(ctx, a.Location.Canonical)
	a.Geo = out.Point
	a.GeoStatus = out.Status
	return out
}
