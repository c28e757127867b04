package pipeline

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outfitter-dev/blz/internal/fetcher"
	"github.com/outfitter-dev/blz/internal/index"
	"github.com/outfitter-dev/blz/internal/storage"
	"github.com/outfitter-dev/blz/internal/types"
)

func newTestPipeline(t *testing.T) (*Pipeline, *storage.Store) {
	t.Helper()
	store := storage.NewStore(t.TempDir())
	pool := index.NewPool()
	p := New(store, pool, nil, t.TempDir(), fetcher.Options{})
	return p, store
}

func TestAddFetchesParsesAndIndexes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("# Intro\nhello world\n"))
	}))
	defer srv.Close()

	p, store := newTestPipeline(t)
	summary, err := p.Add(t.Context(), "demo", srv.URL+"/llms.txt", &types.Descriptor{Description: "demo docs"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BlockCount)
	assert.True(t, store.Exists("demo"))

	meta, err := store.LoadMetadata("demo")
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, meta.ETag)
}

func TestAddTwiceFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# H\nbody\n"))
	}))
	defer srv.Close()

	p, _ := newTestPipeline(t)
	_, err := p.Add(t.Context(), "demo", srv.URL+"/llms.txt", nil)
	require.NoError(t, err)

	_, err = p.Add(t.Context(), "demo", srv.URL+"/llms.txt", nil)
	require.Error(t, err)
}

func TestUpdateNotModifiedOnMatchingEtag(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("# H\nbody\n"))
	}))
	defer srv.Close()

	p, _ := newTestPipeline(t)
	_, err := p.Add(t.Context(), "demo", srv.URL+"/llms.txt", nil)
	require.NoError(t, err)

	summary, err := p.Update(t.Context(), "demo")
	require.NoError(t, err)
	assert.Equal(t, types.UpdateStatusNotModified, summary.Status)
	assert.Equal(t, 2, calls)
}

func TestUpdateModifiedRebuildsIndexAndArchives(t *testing.T) {
	body := "# H\noriginal\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	p, store := newTestPipeline(t)
	_, err := p.Add(t.Context(), "demo", srv.URL+"/llms.txt", nil)
	require.NoError(t, err)

	body = "# H\nchanged content\n"
	summary, err := p.Update(t.Context(), "demo")
	require.NoError(t, err)
	assert.Equal(t, types.UpdateStatusModified, summary.Status)

	archives, err := store.ListArchives("demo")
	require.NoError(t, err)
	assert.Len(t, archives, 1)

	raw, err := store.ReadRaw("demo")
	require.NoError(t, err)
	assert.Equal(t, body, string(raw))
}

func TestRemoveDeletesSourceAndInvalidatesPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# H\nbody\n"))
	}))
	defer srv.Close()

	p, store := newTestPipeline(t)
	_, err := p.Add(t.Context(), "demo", srv.URL+"/llms.txt", nil)
	require.NoError(t, err)

	require.NoError(t, p.Remove(t.Context(), "demo"))
	assert.False(t, store.Exists("demo"))
}

func TestAddRemoveAddEqualsSingleAdd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# H\nbody\n"))
	}))
	defer srv.Close()

	p, store := newTestPipeline(t)
	_, err := p.Add(t.Context(), "demo", srv.URL+"/llms.txt", nil)
	require.NoError(t, err)
	require.NoError(t, p.Remove(t.Context(), "demo"))

	summary, err := p.Add(t.Context(), "demo", srv.URL+"/llms.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BlockCount)
	assert.True(t, store.Exists("demo"))

	archives, err := store.ListArchives("demo")
	require.NoError(t, err)
	assert.Empty(t, archives)

	raw, err := store.ReadRaw("demo")
	require.NoError(t, err)
	assert.Equal(t, "# H\nbody\n", string(raw))
}

func TestUpdateAllAggregatesFailures(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# H\nbody\n"))
	}))
	defer okSrv.Close()

	p, _ := newTestPipeline(t)
	_, err := p.Add(t.Context(), "good", okSrv.URL+"/llms.txt", nil)
	require.NoError(t, err)

	// "bad" was never added: LoadMetadata will fail inside Update.
	results, err := p.UpdateAll(t.Context(), []string{"good", "bad"})
	require.Error(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, types.UpdateStatusNotModified, results[0].Status)
	assert.Equal(t, types.UpdateStatusFailed, results[1].Status)
}
