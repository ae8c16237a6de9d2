package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchOneCachesAndRevalidates(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "a", URL: srv.URL + "/cal.ics"}

	first, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Contains(t, string(first.Body), "VCALENDAR")

	second, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchOneFallsBackToCacheOnServerError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "a", URL: srv.URL}

	_, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
}

func TestFetchOneErrors(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer empty.Close()
	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()

	f := NewFetcher("")

	_, err := f.FetchOne(context.Background(), Source{URL: empty.URL})
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = f.FetchOne(context.Background(), Source{URL: missing.URL})
	assert.Error(t, err)

	_, err = f.FetchOne(context.Background(), Source{})
	assert.Error(t, err)
}

func TestRequestURLMapsWebcal(t *testing.T) {
	assert.Equal(t, "https://example.com/a.ics", requestURL("webcal://example.com/a.ics"))
	assert.Equal(t, "http://example.com/a.ics", requestURL("http://example.com/a.ics"))
}

func TestFetchOneWebcalOverTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	f := NewFetcher("").WithClient(srv.Client())
	src := Source{ID: "tls", URL: "webcal://" + strings.TrimPrefix(srv.URL, "https://") + "/cal.ics"}

	res, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.Contains(t, string(res.Body), "BEGIN:VCALENDAR")

	// The default client does not trust the test certificate.
	_, err = NewFetcher("").FetchOne(context.Background(), src)
	assert.Error(t, err)
}
