package crossref

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/litpipe/internal/resilience"
)

func TestSearch_ParsesItems(t *testing.T) {
	var gotQuery, gotRows, gotFilter, gotMailto string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		gotQuery = r.URL.Query().Get("query")
		gotRows = r.URL.Query().Get("rows")
		gotFilter = r.URL.Query().Get("filter")
		gotMailto = r.URL.Query().Get("mailto")
		w.Write([]byte(`{"message": {"items": [{"DOI": "10.1/a", "title": ["A"]}, {"DOI": "10.1/b"}]}}`))
	}))
	defer srv.Close()

	c := NewClient("team@example.org", WithBaseURL(srv.URL), WithRPS(1000))
	records, err := c.Search(context.Background(), "deep learning", 25, 2015, 2020)
	require.NoError(t, err)

	assert.Len(t, records, 2)
	assert.Equal(t, "10.1/a", records[0]["DOI"])
	assert.Equal(t, "deep learning", gotQuery)
	assert.Equal(t, "25", gotRows)
	assert.Equal(t, "from-pub-date:2015-01-01,until-pub-date:2020-12-31", gotFilter)
	assert.Equal(t, "team@example.org", gotMailto)
}

func TestSearch_TransientOn503(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL), WithRPS(1000))
	_, err := c.Search(context.Background(), "q", 10, 0, 0)
	require.Error(t, err)
	assert.Equal(t, resilience.KindTransient, resilience.Classify(err))
}

func TestSearch_FatalOn400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad filter", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL), WithRPS(1000))
	_, err := c.Search(context.Background(), "q", 10, 0, 0)
	require.Error(t, err)
	assert.Equal(t, resilience.KindFatal, resilience.Classify(err))
}

func TestDateFilter(t *testing.T) {
	assert.Equal(t, "", dateFilter(0, 0))
	assert.Equal(t, "from-pub-date:2010-01-01", dateFilter(2010, 0))
	assert.Equal(t, "until-pub-date:2020-12-31", dateFilter(0, 2020))
}

func TestName(t *testing.T) {
	assert.Equal(t, "crossref", NewClient("").Name())
}
