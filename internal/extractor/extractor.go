// Package extractor pulls full readable text for an article on demand. The
// CPU-bound readability pass runs on a small fixed pool of workers so that a
// burst of extractions cannot starve concurrent network fetches; the HTTP
// fetch itself stays on the calling goroutine.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-shiori/go-readability"

	"github.com/0x0BSoD/newsReader/internal/model"
	"github.com/0x0BSoD/newsReader/internal/pipeline"
	"github.com/0x0BSoD/newsReader/internal/storage"
)

// extractConcurrency caps how many extraction pipelines run at once in
// ExtractMultiple; later requests queue behind the cap in FIFO order.
const extractConcurrency = 5

type ArticleStorage interface {
	Article(ctx context.Context, id string) (model.Article, error)
	SetContent(ctx context.Context, id, content string) error
}

type Extractor struct {
	store     ArticleStorage
	client    *http.Client
	userAgent string

	jobs chan extractJob
	wg   sync.WaitGroup
}

type extractJob struct {
	html    string
	pageURL *url.URL
	out     chan<- string
}

// New starts the extractor with the given number of readability workers.
// Close must be called once no further extractions will be requested.
func New(store ArticleStorage, client *http.Client, workers int, userAgent string) *Extractor {
	if workers <= 0 {
		workers = 1
	}

	e := &Extractor{
		store:     store,
		client:    client,
		userAgent: userAgent,
		jobs:      make(chan extractJob),
	}

	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	return e
}

// Close stops the readability workers after in-flight jobs finish.
func (e *Extractor) Close() {
	close(e.jobs)
	e.wg.Wait()
}

func (e *Extractor) worker() {
	defer e.wg.Done()
	for job := range e.jobs {
		job.out <- extractText(job.html, job.pageURL)
	}
}

// ExtractArticle returns the full text for an article, fetching and
// extracting it if the cache has none yet. Every network or extraction
// failure degrades to the article summary; nothing is persisted on failure,
// so a later call retries from scratch. Only storage failures surface as
// errors.
func (e *Extractor) ExtractArticle(ctx context.Context, article model.Article, force bool) (string, error) {
	if article.Content != "" && !force {
		return article.Content, nil
	}

	// A prior or concurrent extraction may have stored content already.
	cached, err := e.store.Article(ctx, article.ID)
	switch {
	case err == nil && cached.Content != "" && !force:
		return cached.Content, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return "", err
	}

	if article.URL == "" {
		return article.Summary, nil
	}

	html, err := e.fetchPage(ctx, article.URL)
	if err != nil {
		slog.Warn("page fetch failed, falling back to summary", "article", article.ID, "err", err)
		return article.Summary, nil
	}

	text, err := e.extract(ctx, html, article.URL)
	if err != nil || text == "" {
		return article.Summary, nil
	}

	if err := e.store.SetContent(ctx, article.ID, text); err != nil {
		// The row may have been purged by retention cleanup in the meantime.
		if errors.Is(err, storage.ErrNotFound) {
			return text, nil
		}
		return "", err
	}

	return text, nil
}

// ExtractMultiple extracts a batch with at most five pipelines in flight.
// A failed extraction settles to the article summary without aborting its
// siblings. onProgress, when given, fires exactly once per article whether
// it succeeded or fell back.
func (e *Extractor) ExtractMultiple(ctx context.Context, articles []model.Article, onProgress func(model.Article)) map[string]string {
	settled := pipeline.Settle(ctx, extractConcurrency, articles, func(ctx context.Context, article model.Article) (string, error) {
		text, err := e.ExtractArticle(ctx, article, false)
		if onProgress != nil {
			onProgress(article)
		}
		return text, err
	})

	results := make(map[string]string, len(articles))
	for i, res := range settled {
		if res.Err != nil {
			slog.Error("extraction failed", "article", articles[i].ID, "err", res.Err)
			results[articles[i].ID] = articles[i].Summary
			continue
		}
		results[articles[i].ID] = res.Value
	}

	return results
}

func (e *Extractor) fetchPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build page request: %w", err)
	}
	// A browser-like agent; some origins block obvious bots outright.
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("fetch page: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read page body: %w", err)
	}

	return string(body), nil
}

// extract hands the HTML to the worker pool and waits for the result.
func (e *Extractor) extract(ctx context.Context, html, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}

	out := make(chan string, 1)
	job := extractJob{html: html, pageURL: parsed, out: out}

	select {
	case e.jobs <- job:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case text := <-out:
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func extractText(html string, pageURL *url.URL) string {
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}
