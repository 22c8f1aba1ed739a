// Package fetcher implements the freshness-gated feed fetch path. A fetch
// prefers serving stale cached articles over surfacing a network or parse
// failure to the caller.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/0x0BSoD/newsReader/internal/model"
	"github.com/0x0BSoD/newsReader/internal/pipeline"
)

// summaryLimit caps the stored summary length in runes.
const summaryLimit = 500

type ArticleStorage interface {
	UpsertMany(ctx context.Context, articles []model.Article) error
	ArticlesBySource(ctx context.Context, sourceID string, limit int, includeExpired bool) ([]model.Article, error)
	IsFresh(ctx context.Context, sourceID string) (bool, error)
}

type Fetcher struct {
	store      ArticleStorage
	client     *http.Client
	parser     *gofeed.Parser
	strip      *bluemonday.Policy
	maxEntries int
	userAgent  string
}

func New(store ArticleStorage, client *http.Client, maxEntries int, userAgent string) *Fetcher {
	return &Fetcher{
		store:      store,
		client:     client,
		parser:     gofeed.NewParser(),
		strip:      bluemonday.StrictPolicy(),
		maxEntries: maxEntries,
		userAgent:  userAgent,
	}
}

// FetchSource returns the articles for one source. When the cache holds rows
// fetched within the last hour and force is false, the network is skipped
// entirely. On any network or parse failure the previously cached articles
// are returned unchanged; only storage failures propagate.
func (f *Fetcher) FetchSource(ctx context.Context, src model.Source, force bool) ([]model.Article, error) {
	if !force {
		fresh, err := f.store.IsFresh(ctx, src.ID)
		if err != nil {
			return nil, err
		}
		if fresh {
			return f.store.ArticlesBySource(ctx, src.ID, f.maxEntries, false)
		}
	}

	feed, err := f.loadFeed(ctx, src.FeedURL)
	if err != nil {
		slog.Warn("feed fetch failed, serving cached articles", "source", src.ID, "err", err)
		return f.store.ArticlesBySource(ctx, src.ID, f.maxEntries, false)
	}

	items := feed.Items
	if len(items) > f.maxEntries {
		items = items[:f.maxEntries]
	}

	fetchedAt := time.Now().UTC()
	articles := make([]model.Article, 0, len(items))
	for _, item := range items {
		article, err := f.itemToArticle(item, src, fetchedAt)
		if err != nil {
			slog.Debug("skipping feed entry", "source", src.ID, "err", err)
			continue
		}
		articles = append(articles, article)
	}

	if len(articles) > 0 {
		if err := f.store.UpsertMany(ctx, articles); err != nil {
			return nil, err
		}
	}

	return articles, nil
}

// FetchAll fetches every source concurrently. Each source settles on its
// own: a source whose fetch fails past its internal cache fallback is left
// out of the result map and never affects its siblings.
func (f *Fetcher) FetchAll(ctx context.Context, sources []model.Source, force bool) map[string][]model.Article {
	settled := pipeline.Settle(ctx, len(sources), sources, func(ctx context.Context, src model.Source) ([]model.Article, error) {
		return f.FetchSource(ctx, src, force)
	})

	results := make(map[string][]model.Article, len(sources))
	for i, res := range settled {
		if res.Err != nil {
			slog.Error("source fetch failed", "source", sources[i].ID, "err", res.Err)
			continue
		}
		results[sources[i].ID] = res.Value
	}

	return results
}

func (f *Fetcher) loadFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch feed: unexpected status %s", resp.Status)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return feed, nil
}

func (f *Fetcher) itemToArticle(item *gofeed.Item, src model.Source, fetchedAt time.Time) (model.Article, error) {
	if item.Link == "" && item.Title == "" {
		return model.Article{}, errors.New("entry has neither link nor title")
	}

	title := item.Title
	if title == "" {
		title = "No title"
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	return model.Article{
		ID:        model.ArticleID(src.ID, item.Link, title),
		SourceID:  src.ID,
		Title:     title,
		URL:       item.Link,
		Summary:   f.cleanSummary(summary),
		Author:    itemAuthor(item),
		Published: itemPublished(item),
		FetchedAt: fetchedAt,
	}, nil
}

func (f *Fetcher) cleanSummary(s string) string {
	s = strings.TrimSpace(html.UnescapeString(f.strip.Sanitize(s)))

	runes := []rune(s)
	if len(runes) > summaryLimit {
		return string(runes[:summaryLimit])
	}
	return s
}

// itemPublished probes the candidate date fields in order, tolerating
// individual fields that fail to parse. A nil result means the feed gave no
// usable date at all.
func itemPublished(item *gofeed.Item) *time.Time {
	for _, parsed := range []*time.Time{item.PublishedParsed, item.UpdatedParsed} {
		if parsed != nil {
			t := parsed.UTC()
			return &t
		}
	}

	for _, raw := range []string{item.Published, item.Updated} {
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			t = t.UTC()
			return &t
		}
	}

	return nil
}

func itemAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name
	}
	return ""
}
