package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/geonews-etl/internal/adapter/http"
	"github.com/couchcryptid/geonews-etl/internal/domain"
	"github.com/couchcryptid/geonews-etl/internal/pipeline"
)

var fixedNow = time.Date(2025, time.June, 15, 6, 0, 0, 0, time.UTC)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockEvents struct {
	got     domain.EventQuery
	records []domain.PersistedRecord
	err     error
}

func (m *mockEvents) QueryEvents(_ context.Context, q domain.EventQuery) ([]domain.PersistedRecord, error) {
	m.got = q
	return m.records, m.err
}

type mockTrigger struct {
	err   error
	calls int
}

func (m *mockTrigger) Trigger() error {
	m.calls++
	return m.err
}

func newTestServer(readyErr error, events httpadapter.EventQuerier, runs httpadapter.RunTrigger) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, events, runs,
		clockwork.NewFakeClockAt(fixedNow), slog.Default())
}

func do(srv *httpadapter.Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(newTestServer(nil, nil, nil), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := do(newTestServer(nil, nil, nil), http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := do(newTestServer(errors.New("no completed run yet"), nil, nil), http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(newTestServer(nil, nil, nil), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestEvents_DefaultWindow(t *testing.T) {
	events := &mockEvents{}
	rec := do(newTestServer(nil, events, nil), http.MethodGet, "/events")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fixedNow.Add(-7*24*time.Hour), events.got.From)
	assert.Equal(t, fixedNow, events.got.To)
	assert.Empty(t, events.got.Events)
	assert.Zero(t, events.got.Limit)

	var body struct {
		Count  int               `json:"count"`
		Events []json.RawMessage `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Zero(t, body.Count)
	assert.NotNil(t, body.Events)
}

func TestEvents_ExplicitFilters(t *testing.T) {
	events := &mockEvents{records: []domain.PersistedRecord{{
		ID:            "rec-1",
		Title:         "Flood waters rise in Dhaka",
		DisasterEvent: "flood",
		Location:      "Dhaka",
		PublishedAt:   time.Date(2025, time.June, 14, 3, 0, 0, 0, time.UTC),
	}}}
	rec := do(newTestServer(nil, events, nil), http.MethodGet, "/events?from=2025-06-10&to=2025-06-14&event=Flood&limit=50")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC), events.got.From)
	assert.Equal(t, time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), events.got.To)
	assert.Equal(t, []domain.Label{"flood"}, events.got.Events)
	assert.Equal(t, 50, events.got.Limit)

	var body struct {
		From   string                   `json:"from"`
		To     string                   `json:"to"`
		Count  int                      `json:"count"`
		Events []domain.PersistedRecord `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2025-06-10", body.From)
	assert.Equal(t, "2025-06-14", body.To)
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "rec-1", body.Events[0].ID)
}

func TestEvents_SeveralEventLabels(t *testing.T) {
	events := &mockEvents{}
	rec := do(newTestServer(nil, events, nil), http.MethodGet, "/events?event=Flood,%20earthquake,&event=storm")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domain.Label{"flood", "earthquake", "storm"}, events.got.Events)
}

func TestEvents_BadRequests(t *testing.T) {
	cases := map[string]string{
		"bad from":       "/events?from=06/10/2025",
		"bad to":         "/events?to=yesterday",
		"inverted range": "/events?from=2025-06-14&to=2025-06-10",
		"zero limit":     "/events?limit=0",
		"huge limit":     "/events?limit=5000",
		"text limit":     "/events?limit=ten",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(newTestServer(nil, &mockEvents{}, nil), http.MethodGet, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestEvents_StoreError(t *testing.T) {
	rec := do(newTestServer(nil, &mockEvents{err: errors.New("connection refused")}, nil), http.MethodGet, "/events")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestEvents_NoStore(t *testing.T) {
	rec := do(newTestServer(nil, nil, nil), http.MethodGet, "/events")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRuns_Accepted(t *testing.T) {
	runs := &mockTrigger{}
	rec := do(newTestServer(nil, nil, runs), http.MethodPost, "/runs")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, runs.calls)
}

func TestRuns_InProgress(t *testing.T) {
	rec := do(newTestServer(nil, nil, &mockTrigger{err: pipeline.ErrRunInProgress}), http.MethodPost, "/runs")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRuns_GetNotAllowed(t *testing.T) {
	rec := do(newTestServer(nil, nil, &mockTrigger{}), http.MethodGet, "/runs")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
