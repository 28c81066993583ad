package ner

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/geonews-etl/internal/domain"
)

// Provider names accepted by NewRecognizer.
const (
	ProviderService = "service"
	ProviderProse   = "prose"
)

// NewRecognizer selects the entity recognizer. The service provider is the
// default and needs a base URL; prose runs in process with lower accuracy on
// headlines.
func NewRecognizer(provider, serviceURL string, timeout time.Duration, logger *slog.Logger) (domain.EntityRecognizer, error) {
	switch provider {
	case ProviderService, "":
		if serviceURL == "" {
			return nil, errors.New("ner service url is required")
		}
		logger.Info("using NER service", "url", serviceURL)
		return NewClient(serviceURL, timeout, logger), nil
	case ProviderProse:
		logger.Warn("using in-process prose NER, place names in headlines may be misread")
		return NewProseRecognizer(), nil
	default:
		return nil, fmt.Errorf("unknown ner provider %q", provider)
	}
}
