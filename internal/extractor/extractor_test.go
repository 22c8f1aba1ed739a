package extractor_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0BSoD/newsReader/internal/extractor"
	"github.com/0x0BSoD/newsReader/internal/model"
	"github.com/0x0BSoD/newsReader/internal/storage"
)

// articleHTML carries enough body text for readability to accept it as the
// main content of the page.
var articleHTML = fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>Story</title></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Story headline</h1>
<p>%s</p>
<p>%s</p>
<p>%s</p>
</article>
<footer>footer text</footer>
</body></html>`,
	strings.Repeat("The quick brown fox jumps over the lazy dog. ", 12),
	strings.Repeat("Pack my box with five dozen liquor jugs. ", 12),
	strings.Repeat("Sphinx of black quartz, judge my vow. ", 12),
)

func newTestStorage(t *testing.T) *storage.ArticleStorage {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "articles.db"), 24*time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func newExtractor(t *testing.T, store *storage.ArticleStorage, client *http.Client) *extractor.Extractor {
	t.Helper()

	e := extractor.New(store, client, 4, "test-agent")
	t.Cleanup(e.Close)
	return e
}

func storedArticle(t *testing.T, store *storage.ArticleStorage, id, url string) model.Article {
	t.Helper()

	article := model.Article{
		ID:        id,
		SourceID:  "src",
		Title:     "Story " + id,
		URL:       url,
		Summary:   "summary " + id,
		FetchedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Upsert(context.Background(), article))
	return article
}

func TestExtractArticleFetchesAndPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(articleHTML)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	store := newTestStorage(t)
	e := newExtractor(t, store, srv.Client())
	article := storedArticle(t, store, "a1", srv.URL+"/story")

	text, err := e.ExtractArticle(context.Background(), article, false)
	require.NoError(t, err)
	assert.Contains(t, text, "quick brown fox")

	stored, err := store.Article(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, text, stored.Content)
}

func TestExtractArticleReturnsExistingContent(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Write([]byte(articleHTML)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	store := newTestStorage(t)
	e := newExtractor(t, store, srv.Client())

	article := storedArticle(t, store, "a1", srv.URL)
	article.Content = "already extracted"

	text, err := e.ExtractArticle(context.Background(), article, false)
	require.NoError(t, err)
	assert.Equal(t, "already extracted", text)
	assert.EqualValues(t, 0, requests.Load(), "cached content must short-circuit all I/O")
}

func TestExtractArticleChecksStoreForConcurrentWrite(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
	}))
	t.Cleanup(srv.Close)

	store := newTestStorage(t)
	e := newExtractor(t, store, srv.Client())

	article := storedArticle(t, store, "a1", srv.URL)
	require.NoError(t, store.SetContent(context.Background(), "a1", "stored by another extraction"))

	text, err := e.ExtractArticle(context.Background(), article, false)
	require.NoError(t, err)
	assert.Equal(t, "stored by another extraction", text)
	assert.EqualValues(t, 0, requests.Load())
}

func TestExtractArticleWithoutURLReturnsSummary(t *testing.T) {
	store := newTestStorage(t)
	e := newExtractor(t, store, &http.Client{Timeout: time.Second})

	article := storedArticle(t, store, "a1", "")

	text, err := e.ExtractArticle(context.Background(), article, false)
	require.NoError(t, err)
	assert.Equal(t, "summary a1", text)
}

func TestExtractArticleFallsBackOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	store := newTestStorage(t)
	e := newExtractor(t, store, srv.Client())
	article := storedArticle(t, store, "a1", srv.URL)

	text, err := e.ExtractArticle(context.Background(), article, false)
	require.NoError(t, err)
	assert.Equal(t, "summary a1", text)

	// No failure marker is persisted; a later call may retry from scratch.
	stored, err := store.Article(context.Background(), "a1")
	require.NoError(t, err)
	assert.Empty(t, stored.Content)
}

func TestExtractMultipleBoundsConcurrency(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		highest int
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		active++
		if active > highest {
			highest = active
		}
		mu.Unlock()

		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()

		w.Write([]byte(articleHTML)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	store := newTestStorage(t)
	e := newExtractor(t, store, srv.Client())

	articles := make([]model.Article, 20)
	for i := range articles {
		articles[i] = storedArticle(t, store, fmt.Sprintf("a%d", i), fmt.Sprintf("%s/story/%d", srv.URL, i))
	}

	results := e.ExtractMultiple(context.Background(), articles, nil)

	assert.Len(t, results, 20)
	assert.LessOrEqual(t, highest, 5, "no more than five pipelines may run at once")
	assert.Greater(t, highest, 1, "extractions should actually overlap")
}

func TestExtractMultipleProgressAndFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/bad") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(articleHTML)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	store := newTestStorage(t)
	e := newExtractor(t, store, srv.Client())

	articles := []model.Article{
		storedArticle(t, store, "ok", srv.URL+"/good"),
		storedArticle(t, store, "broken", srv.URL+"/bad"),
	}

	var (
		mu       sync.Mutex
		progress = map[string]int{}
	)

	results := e.ExtractMultiple(context.Background(), articles, func(a model.Article) {
		mu.Lock()
		progress[a.ID]++
		mu.Unlock()
	})

	require.Len(t, results, 2)
	assert.Contains(t, results["ok"], "quick brown fox")
	assert.Equal(t, "summary broken", results["broken"], "a failed extraction maps to the summary")

	assert.Equal(t, map[string]int{"ok": 1, "broken": 1}, progress, "progress fires exactly once per article")
}
