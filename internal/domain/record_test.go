package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var processedAt = time.Date(2025, time.June, 15, 6, 0, 0, 0, time.UTC)

func TestNewPersistedRecord(t *testing.T) {
	a := located(testTitle, "https://news.example.com/quake", "earthquake", []string{"Japan", "Tokyo"}, tokyoPoint)

	rec := NewPersistedRecord(a, processedAt)

	assert.Equal(t, testTitle, rec.Title)
	assert.Equal(t, "Reuters", rec.Source)
	assert.Equal(t, Label("earthquake"), rec.DisasterEvent)
	assert.Equal(t, "Japan", rec.Country)
	assert.Equal(t, "Tokyo", rec.Region)
	assert.Empty(t, rec.City)
	assert.Equal(t, "Tokyo", rec.Location)
	assert.Equal(t, 35.68, rec.Latitude)
	assert.Equal(t, 139.76, rec.Longitude)
	assert.Equal(t, processedAt, rec.ProcessedAt)

	id, err := uuid.Parse(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), id.Version())
}

func TestUniqueKey_SameTripleSameID(t *testing.T) {
	a := located("Earthquake jolts Tokyo", "https://a.example.com/1", "earthquake", []string{"Japan", "Tokyo"}, tokyoPoint)
	b := located("Tokyo shaken by strong earthquake", "https://b.example.com/2", "earthquake", []string{"Japan", "TOKYO "}, tokyoPoint)
	b.PublishedAt = testPublished.Add(10 * time.Hour) // same UTC day

	ra, rb := NewPersistedRecord(a, processedAt), NewPersistedRecord(b, processedAt)

	assert.Equal(t, ra.Key(), rb.Key())
	assert.Equal(t, ra.ID, rb.ID)
	assert.Equal(t, "2025-06-14|earthquake|tokyo", ra.Key().String())
}

func TestUniqueKey_DiffersByPart(t *testing.T) {
	base := KeyFor(testPublished, "flood", "Dhaka")

	assert.NotEqual(t, base, KeyFor(testPublished.AddDate(0, 0, 1), "flood", "Dhaka"))
	assert.NotEqual(t, base, KeyFor(testPublished, "cyclone", "Dhaka"))
	assert.NotEqual(t, base, KeyFor(testPublished, "flood", "Chittagong"))
	assert.NotEqual(t, base.ID(), KeyFor(testPublished, "flood", "Chittagong").ID())
}

func TestUniqueKey_UsesUTCDate(t *testing.T) {
	tz := time.FixedZone("UTC+9", 9*3600)
	local := time.Date(2025, time.June, 15, 2, 0, 0, 0, tz) // 2025-06-14 17:00 UTC

	assert.Equal(t, "2025-06-14", KeyFor(local, "flood", "Osaka").Date)
}

func TestDedupByKey(t *testing.T) {
	a := NewPersistedRecord(located("Earthquake jolts Tokyo", "https://a.example.com/1", "earthquake", []string{"Japan", "Tokyo"}, tokyoPoint), processedAt)
	b := NewPersistedRecord(located("Tokyo shaken by strong earthquake", "https://b.example.com/2", "earthquake", []string{"Japan", "Tokyo"}, tokyoPoint), processedAt)
	c := NewPersistedRecord(located("Flood in Tokyo", "https://c.example.com/3", "flood", []string{"Japan", "Tokyo"}, tokyoPoint), processedAt)

	out, collapsed := DedupByKey([]PersistedRecord{a, b, c})

	require.Len(t, out, 2)
	assert.Equal(t, 1, collapsed)
	assert.Equal(t, a.URL, out[0].URL)
	assert.Equal(t, c.URL, out[1].URL)
}
