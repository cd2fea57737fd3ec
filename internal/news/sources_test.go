package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolygonSource_ActiveOnlyWithKey(t *testing.T) {
	assert.False(t, NewPolygonSource("", "").Active())
	assert.True(t, NewPolygonSource("key", "").Active())
}

func TestPolygonSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("ticker"))
		w.Write([]byte(`{"results":[
			{"title":"Apple hits record","article_url":"https://x/1","published_utc":"2025-06-01T10:00:00Z","description":"desc","publisher":{"name":"Reuters"}},
			{"title":"No publisher","article_url":"https://x/2","published_utc":"2025-06-01T09:00:00Z","publisher":{}}
		]}`))
	}))
	defer srv.Close()

	source := NewPolygonSource("key", srv.URL)
	source.gate.sleep = func(time.Duration) {}

	articles, err := source.Fetch(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "Apple hits record", articles[0].Title)
	assert.Equal(t, "Reuters", articles[0].Source)
	require.NotNil(t, articles[0].Summary)
	assert.Equal(t, "desc", *articles[0].Summary)
	assert.Equal(t, "Unknown", articles[1].Source)
	assert.Nil(t, articles[1].Summary)
}

func TestPolygonSource_RateLimitResponseTriggersBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	source := NewPolygonSource("key", srv.URL)
	source.gate.sleep = func(time.Duration) {}
	before := source.gate.minInterval

	_, err := source.Fetch(context.Background(), "AAPL", 5)
	require.Error(t, err)
	assert.Greater(t, source.gate.minInterval, before)
}

func TestMockSource_RespectsLimit(t *testing.T) {
	source := NewMockSource()

	articles, err := source.Fetch(context.Background(), "MSFT", 1)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Contains(t, articles[0].Title, "MSFT")

	articles, err = source.Fetch(context.Background(), "MSFT", 5)
	require.NoError(t, err)
	assert.Len(t, articles, 2)
}

func TestYahooSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[
			{"content":{"title":"Market update","pubDate":"2025-06-01T12:00:00Z","summary":"s","provider":{"displayName":"Bloomberg"},"canonicalUrl":{"url":"https://y/1"}}},
			{"content":{"title":"No provider","canonicalUrl":{"url":"https://y/2"}}}
		]}`))
	}))
	defer srv.Close()

	source := NewYahooSource(srv.URL)
	source.gate.sleep = func(time.Duration) {}

	articles, err := source.Fetch(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "Bloomberg", articles[0].Source)
	assert.Equal(t, "Yahoo Finance", articles[1].Source)
	assert.NotEmpty(t, articles[1].PublishedUTC)
}

func TestTruncateSummary(t *testing.T) {
	assert.Nil(t, truncateSummary("  "))

	short := truncateSummary("brief")
	require.NotNil(t, short)
	assert.Equal(t, "brief", *short)

	// Multi-byte text must truncate on rune boundaries, not bytes.
	long := strings.Repeat("é", 250)
	got := truncateSummary(long)
	require.NotNil(t, got)
	assert.Equal(t, strings.Repeat("é", 200), *got)
	assert.True(t, utf8.ValidString(*got))
}
