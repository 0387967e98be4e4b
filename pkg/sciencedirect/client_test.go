package sciencedirect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/litpipe/internal/resilience"
)

func TestSearch_ParsesEntries(t *testing.T) {
	var gotKey, gotDate, gotCount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/content/search/sciencedirect", r.URL.Path)
		gotKey = r.Header.Get("X-ELS-APIKey")
		gotDate = r.URL.Query().Get("date")
		gotCount = r.URL.Query().Get("count")
		w.Write([]byte(`{"search-results": {"entry": [{"prism:doi": "10.1016/x", "dc:title": "T"}]}}`))
	}))
	defer srv.Close()

	c := NewClient("elskey", WithBaseURL(srv.URL), WithRPS(1000))
	records, err := c.Search(context.Background(), "q", 15, 2019, 2021)
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "10.1016/x", records[0]["prism:doi"])
	assert.Equal(t, "elskey", gotKey)
	assert.Equal(t, "2019-2021", gotDate)
	assert.Equal(t, "15", gotCount)
}

func TestSearch_FatalOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL), WithRPS(1000))
	_, err := c.Search(context.Background(), "q", 10, 0, 0)
	require.Error(t, err)
	assert.Equal(t, resilience.KindFatal, resilience.Classify(err))
}

func TestSearch_TransientOn500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithRPS(1000))
	_, err := c.Search(context.Background(), "q", 10, 0, 0)
	require.Error(t, err)
	assert.Equal(t, resilience.KindTransient, resilience.Classify(err))
}

func TestName(t *testing.T) {
	assert.Equal(t, "sciencedirect", NewClient("k").Name())
}
