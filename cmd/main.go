// Copyright (c) 2024, 0x0BSoD. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/0x0BSoD/newsReader/internal/config"
	"github.com/0x0BSoD/newsReader/internal/extractor"
	"github.com/0x0BSoD/newsReader/internal/fetcher"
	"github.com/0x0BSoD/newsReader/internal/model"
	"github.com/0x0BSoD/newsReader/internal/source"
	"github.com/0x0BSoD/newsReader/internal/storage"
)

func main() {
	cfg := config.Get()

	store, err := storage.Open(cfg.DatabasePath, cfg.ExpiryWindow())
	if err != nil {
		slog.Error("failed to open article storage", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	catalog, err := source.Load(cfg.SourcesFile)
	if err != nil {
		slog.Error("failed to load source catalog", "err", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: cfg.HTTPTimeout}

	var (
		feeds = fetcher.New(store, client, cfg.MaxPerSource, cfg.FeedUserAgent)
		pages = extractor.New(store, client, cfg.ExtractorWorkers, cfg.PageUserAgent)
	)
	defer pages.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := "fetch"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "fetch":
		force := len(args) > 0 && args[0] == "-force"
		runFetch(ctx, feeds, catalog, force)
	case "list":
		runList(ctx, store)
	case "read":
		if len(args) != 1 {
			usage()
		}
		runRead(ctx, store, pages, args[0])
	case "cleanup":
		removed, err := store.CleanupExpired(ctx)
		if err != nil {
			slog.Error("cleanup failed", "err", err)
			os.Exit(1)
		}
		fmt.Printf("removed %d expired articles\n", removed)
	default:
		usage()
	}
}

func runFetch(ctx context.Context, feeds *fetcher.Fetcher, catalog *source.Catalog, force bool) {
	results := feeds.FetchAll(ctx, catalog.Sources(), force)

	for _, src := range catalog.Sources() {
		articles, ok := results[src.ID]
		if !ok {
			fmt.Printf("%-20s fetch failed\n", src.Name)
			continue
		}
		fmt.Printf("%-20s %d articles\n", src.Name, len(articles))
	}
}

func runList(ctx context.Context, store *storage.ArticleStorage) {
	articles, err := store.Articles(ctx, 200, false)
	if err != nil {
		slog.Error("failed to list articles", "err", err)
		os.Exit(1)
	}

	for _, a := range articles {
		marker := " "
		if !a.IsRead {
			marker = "*"
		}
		fmt.Printf("%s %s  %-10s %s\n", marker, a.ID, a.DisplayDate(), a.Title)
	}
}

func runRead(ctx context.Context, store *storage.ArticleStorage, pages *extractor.Extractor, id string) {
	article, err := store.Article(ctx, id)
	if err != nil {
		slog.Error("failed to load article", "id", id, "err", err)
		os.Exit(1)
	}

	text, err := pages.ExtractArticle(ctx, article, false)
	if err != nil {
		slog.Error("failed to extract article", "id", id, "err", err)
		os.Exit(1)
	}

	printArticle(article, text)

	if err := store.MarkRead(ctx, id); err != nil {
		slog.Error("failed to mark article read", "id", id, "err", err)
	}
}

func printArticle(article model.Article, text string) {
	fmt.Println(article.Title)
	if article.Author != "" {
		fmt.Printf("by %s\n", article.Author)
	}
	if date := article.DisplayDate(); date != "" {
		fmt.Println(date)
	}
	fmt.Printf("\n%s\n\n%s\n", text, article.URL)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: newsReader [fetch [-force] | list | read <article-id> | cleanup]")
	os.Exit(2)
}
