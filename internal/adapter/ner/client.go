package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/geonews-etl/internal/domain"
)

// Client calls an external NER service:
//
//	POST {baseURL}/ner {"text": "..."} -> {"entities": [{"text": "...", "label": "GPE"}]}
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an NER service client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// Recognize implements domain.EntityRecognizer.
func (c *Client) Recognize(ctx context.Context, text string) ([]domain.Entity, error) {
	payload, err := json.Marshal(request{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ner", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ner service error: status %d: %s", resp.StatusCode, body)
	}

	var nerResp response
	if err := json.NewDecoder(resp.Body).Decode(&nerResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("ner request", "entities", len(nerResp.Entities), "duration", time.Since(start))
	return nerResp.Entities, nil
}

type request struct {
	Text string `json:"text"`
}

type response struct {
	Entities []domain.Entity `json:"entities"`
}
