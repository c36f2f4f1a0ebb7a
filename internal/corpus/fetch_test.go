package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distill-labs/distillprep/internal/testutil"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newTestFetcher(t *testing.T, cacheDir string) *Fetcher {
	t.Helper()
	return NewFetcher(cacheDir,
		WithLogger(testutil.NewTestLogger(t)),
		WithRetry(2, time.Millisecond),
	)
}

func TestFetch_DownloadsAndVerifies(t *testing.T) {
	body := []byte("the quick brown fox\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	f := newTestFetcher(t, cacheDir)

	c := Corpus{
		Name: "test-corpus",
		Files: []File{
			{Name: "train.txt", URL: srv.URL + "/train.txt", SHA256: sha256Hex(body)},
		},
	}

	results, err := f.Fetch(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "test-corpus", res.Corpus)
	assert.Equal(t, int64(len(body)), res.Bytes)
	assert.Equal(t, sha256Hex(body), res.SHA256)
	assert.False(t, res.Cached)

	got, err := os.ReadFile(filepath.Join(cacheDir, "test-corpus", "train.txt"))
	require.NoError(t, err)
	assert.Equal(t, body, got)

	// No partial file left behind.
	_, err = os.Stat(filepath.Join(cacheDir, "test-corpus", "train.txt.partial"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetch_SkipsVerifiedCacheHit(t *testing.T) {
	body := []byte("cached content\n")
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	f := newTestFetcher(t, cacheDir)
	c := Corpus{
		Name:  "test-corpus",
		Files: []File{{Name: "data.txt", URL: srv.URL, SHA256: sha256Hex(body)}},
	}

	_, err := f.Fetch(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())

	results, err := f.Fetch(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, results[0].Cached)
	assert.Equal(t, int32(1), hits.Load(), "second fetch must not hit the server")
}

func TestFetch_RefetchesCorruptedCache(t *testing.T) {
	body := []byte("pristine\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	f := newTestFetcher(t, cacheDir)
	c := Corpus{
		Name:  "test-corpus",
		Files: []File{{Name: "data.txt", URL: srv.URL, SHA256: sha256Hex(body)}},
	}

	// Seed a corrupted cache entry.
	dest := f.FilePath("test-corpus", "data.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0750))
	require.NoError(t, os.WriteFile(dest, []byte("tampered"), 0644))

	results, err := f.Fetch(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, results[0].Cached)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	body := []byte("eventually fine\n")
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := newTestFetcher(t, t.TempDir())
	c := Corpus{Name: "flaky", Files: []File{{Name: "data.txt", URL: srv.URL}}}

	results, err := f.Fetch(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, int64(len(body)), results[0].Bytes)
}

func TestFetch_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, t.TempDir())
	c := Corpus{Name: "gone", Files: []File{{Name: "data.txt", URL: srv.URL}}}

	_, err := f.Fetch(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_SHA256Mismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("unexpected content"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, t.TempDir())
	c := Corpus{
		Name:  "pinned",
		Files: []File{{Name: "data.txt", URL: srv.URL, SHA256: sha256Hex([]byte("expected content"))}},
	}

	_, err := f.Fetch(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sha256 mismatch")

	// The bad download must not land in the cache.
	_, err = os.Stat(f.FilePath("pinned", "data.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestLookup(t *testing.T) {
	c, err := Lookup(CorpusGPT2Assets)
	require.NoError(t, err)
	assert.Len(t, c.Files, 2)

	_, err = Lookup("no-such-corpus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown corpus")
}

func TestNames_Sorted(t *testing.T) {
	names := Names()
	require.NotEmpty(t, names)
	assert.Contains(t, names, CorpusWikitext)
	assert.IsIncreasing(t, names)
}
