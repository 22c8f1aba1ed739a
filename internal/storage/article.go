// Package storage implements the persistent article cache on SQLite. All
// timestamps are stored in UTC so range comparisons against fetched_at are
// stable regardless of the local zone.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/0x0BSoD/newsReader/internal/model"
)

// ErrNotFound is returned by lookups and targeted updates when no article
// with the given id exists.
var ErrNotFound = errors.New("article not found")

// freshnessWindow is the fixed threshold for IsFresh. It is intentionally
// independent of the configurable expiry window: expiry governs what the
// caller sees, freshness governs whether a fetch may skip the network.
const freshnessWindow = time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL,
	title      TEXT NOT NULL,
	url        TEXT NOT NULL,
	summary    TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	author     TEXT NOT NULL DEFAULT '',
	published  TIMESTAMP,
	fetched_at TIMESTAMP NOT NULL,
	is_read    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source_id);
CREATE INDEX IF NOT EXISTS idx_articles_fetched ON articles(fetched_at);
`

type ArticleStorage struct {
	db     *sqlx.DB
	expiry time.Duration
}

// Open connects to (or creates) the SQLite database at path and prepares the
// schema. Storage unavailability here is the only unrecoverable failure in
// the pipeline, so callers are expected to treat an error as fatal.
func Open(path string, expiry time.Duration) (*ArticleStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path+"?_journal=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &ArticleStorage{db: db, expiry: expiry}, nil
}

func (s *ArticleStorage) Close() error {
	return s.db.Close()
}

// upsertQuery replaces the row by id while keeping two fields sticky:
// content survives a refetch unless the incoming row carries its own, and
// is_read never flips back to unread.
const upsertQuery = `
INSERT INTO articles (id, source_id, title, url, summary, content, author, published, fetched_at, is_read)
VALUES (:id, :source_id, :title, :url, :summary, :content, :author, :published, :fetched_at, :is_read)
ON CONFLICT(id) DO UPDATE SET
	source_id  = excluded.source_id,
	title      = excluded.title,
	url        = excluded.url,
	summary    = excluded.summary,
	content    = CASE WHEN excluded.content <> '' THEN excluded.content ELSE articles.content END,
	author     = excluded.author,
	published  = excluded.published,
	fetched_at = excluded.fetched_at,
	is_read    = articles.is_read OR excluded.is_read`

func (s *ArticleStorage) Upsert(ctx context.Context, article model.Article) error {
	if _, err := s.db.NamedExecContext(ctx, upsertQuery, normalize(article)); err != nil {
		return fmt.Errorf("upsert article %s: %w", article.ID, err)
	}
	return nil
}

// UpsertMany stores the batch in a single transaction; either every article
// lands or none does.
func (s *ArticleStorage) UpsertMany(ctx context.Context, articles []model.Article) error {
	if len(articles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, article := range articles {
		if _, err := tx.NamedExecContext(ctx, upsertQuery, normalize(article)); err != nil {
			return fmt.Errorf("upsert article %s: %w", article.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert batch: %w", err)
	}
	return nil
}

func (s *ArticleStorage) Article(ctx context.Context, id string) (model.Article, error) {
	var article model.Article
	err := s.db.GetContext(ctx, &article, `SELECT * FROM articles WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Article{}, ErrNotFound
	}
	if err != nil {
		return model.Article{}, fmt.Errorf("get article %s: %w", id, err)
	}
	return article, nil
}

// ArticlesBySource returns cached articles for one source ordered by
// published descending; undated articles sort after every dated one, in the
// order they were first stored. With includeExpired=false only rows fetched
// within the expiry window are returned.
func (s *ArticleStorage) ArticlesBySource(ctx context.Context, sourceID string, limit int, includeExpired bool) ([]model.Article, error) {
	var articles []model.Article
	err := s.db.SelectContext(ctx, &articles, `
		SELECT * FROM articles
		WHERE source_id = $1 AND ($2 OR fetched_at > $3)
		ORDER BY published IS NULL, published DESC, rowid
		LIMIT $4`,
		sourceID, includeExpired, s.expiryCutoff(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list articles for source %s: %w", sourceID, err)
	}
	return articles, nil
}

// Articles returns cached articles across all sources, same ordering and
// expiry semantics as ArticlesBySource.
func (s *ArticleStorage) Articles(ctx context.Context, limit int, includeExpired bool) ([]model.Article, error) {
	var articles []model.Article
	err := s.db.SelectContext(ctx, &articles, `
		SELECT * FROM articles
		WHERE $1 OR fetched_at > $2
		ORDER BY published IS NULL, published DESC, rowid
		LIMIT $3`,
		includeExpired, s.expiryCutoff(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return articles, nil
}

func (s *ArticleStorage) MarkRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE articles SET is_read = 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark article %s read: %w", id, err)
	}
	return requireRow(res)
}

func (s *ArticleStorage) SetContent(ctx context.Context, id, content string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE articles SET content = $1 WHERE id = $2`, content, id)
	if err != nil {
		return fmt.Errorf("set content for article %s: %w", id, err)
	}
	return requireRow(res)
}

// IsFresh reports whether at least one article for the source was fetched
// within the fixed one-hour freshness window.
func (s *ArticleStorage) IsFresh(ctx context.Context, sourceID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM articles
		WHERE source_id = $1 AND fetched_at > $2`,
		sourceID, time.Now().UTC().Add(-freshnessWindow),
	)
	if err != nil {
		return false, fmt.Errorf("freshness check for source %s: %w", sourceID, err)
	}
	return count > 0, nil
}

// CleanupExpired deletes articles whose last fetch is older than twice the
// expiry window and returns how many rows were removed.
func (s *ArticleStorage) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-2 * s.expiry)
	res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE fetched_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired articles: %w", err)
	}
	return res.RowsAffected()
}

func (s *ArticleStorage) expiryCutoff() time.Time {
	return time.Now().UTC().Add(-s.expiry)
}

// normalize forces stored timestamps to UTC so text comparisons in SQLite
// stay monotonic.
func normalize(a model.Article) model.Article {
	a.FetchedAt = a.FetchedAt.UTC()
	if a.Published != nil {
		p := a.Published.UTC()
		a.Published = &p
	}
	return a
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
