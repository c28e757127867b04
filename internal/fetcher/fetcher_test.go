package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outfitter-dev/blz/internal/types"
)

func TestFetchPrefersFullFlavor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "llms-full.txt") {
			w.Header().Set("ETag", `"v1"`)
			w.Write([]byte("# full\nbody\n"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(nil, Options{})
	out, err := f.Fetch(context.Background(), srv.URL+"/", nil)
	require.NoError(t, err)
	assert.Equal(t, types.FlavorFull, out.Flavor)
	assert.Equal(t, OutcomeModified, out.Kind)
}

func TestFetchFallsBackToBaseOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "llms-full.txt") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("# base\nbody\n"))
	}))
	defer srv.Close()

	f := New(nil, Options{})
	out, err := f.Fetch(context.Background(), srv.URL+"/", nil)
	require.NoError(t, err)
	assert.Equal(t, types.FlavorBase, out.Flavor)
}

func TestFetchNotModifiedOn304(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("# H\nv1\n"))
	}))
	defer srv.Close()

	f := New(nil, Options{})
	out, err := f.Fetch(context.Background(), srv.URL+"/llms.txt", &Prior{ETag: `"v1"`})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotModified, out.Kind)
}

func TestFetchNotModifiedBySHAMatch(t *testing.T) {
	body := []byte("# H\nunchanged\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	f := New(nil, Options{})
	first, err := f.Fetch(context.Background(), srv.URL+"/llms.txt", nil)
	require.NoError(t, err)

	second, err := f.Fetch(context.Background(), srv.URL+"/llms.txt", &Prior{SHA256: first.SHA256})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotModified, second.Kind)
}

func TestFetch4xxIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := New(nil, Options{Flavor: FlavorPolicy{Pin: srv.URL + "/llms.txt"}})
	_, err := f.Fetch(context.Background(), srv.URL+"/llms.txt", nil)
	require.Error(t, err)
}

func TestFetchSizeLimitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	f := New(nil, Options{MaxBytes: 10, Flavor: FlavorPolicy{Pin: srv.URL + "/llms.txt"}})
	_, err := f.Fetch(context.Background(), srv.URL+"/llms.txt", nil)
	require.Error(t, err)
}

func TestFetchRetriesOn5xxThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("# ok\nbody\n"))
	}))
	defer srv.Close()

	f := New(nil, Options{BaseDelay: time.Millisecond, Flavor: FlavorPolicy{Pin: srv.URL + "/llms.txt"}})
	out, err := f.Fetch(context.Background(), srv.URL+"/llms.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeModified, out.Kind)
	assert.GreaterOrEqual(t, calls, 2)
}
