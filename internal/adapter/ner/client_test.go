package ner

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geonews-etl/internal/domain"
)

func testClient(baseURL string, timeout time.Duration) *Client {
	return NewClient(baseURL, timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_Recognize_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ner", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Massive earthquake strikes Tokyo, Japan", req.Text)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entities":[{"text":"Tokyo","label":"GPE"},{"text":"Monday","label":"DATE"},{"text":"Japan","label":"GPE"}]}`))
	}))
	defer srv.Close()

	got, err := testClient(srv.URL, 5*time.Second).Recognize(context.Background(), "Massive earthquake strikes Tokyo, Japan")
	require.NoError(t, err)

	assert.Equal(t, []domain.Entity{
		{Text: "Tokyo", Label: "GPE"},
		{Text: "Monday", Label: "DATE"},
		{Text: "Japan", Label: "GPE"},
	}, got)
	assert.Equal(t, []string{"Tokyo", "Japan"}, domain.GPEs(got))
}

func TestClient_Recognize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("model loading"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 5*time.Second).Recognize(context.Background(), "Flood in Dhaka")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model loading")
}

func TestClient_Recognize_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 5*time.Second).Recognize(context.Background(), "Flood in Dhaka")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestClient_Recognize_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		_, _ = w.Write([]byte(`{"entities":[]}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 20*time.Millisecond).Recognize(context.Background(), "Flood in Dhaka")
	require.Error(t, err)
}

func TestClient_Recognize_EmptyEntities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"entities":[]}`))
	}))
	defer srv.Close()

	got, err := testClient(srv.URL, 5*time.Second).Recognize(context.Background(), "Breaking news from the world")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_HeadlineResolvesToPlace(t *testing.T) {
	const title = "Massive earthquake strikes Tokyo, Japan"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entities":[{"text":"Japan","label":"GPE"},{"text":"Tokyo","label":"GPE"}]}`))
	}))
	defer srv.Close()

	candidates, err := domain.ExtractLocations(context.Background(), testClient(srv.URL, 5*time.Second), title)
	require.NoError(t, err)
	assert.Equal(t, []string{"Japan", "Tokyo"}, candidates)

	loc, ok := domain.ResolveLocation(candidates)
	require.True(t, ok)
	assert.Equal(t, domain.ResolvedLocation{Country: "Japan", Region: "Tokyo", Canonical: "Tokyo"}, loc)
}
