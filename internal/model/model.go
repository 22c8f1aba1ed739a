// Package model defines the data structures used in the newsReader application, including Source and Article. Sources describe the configured feeds, articles are the cached entries fetched from them.
package model

import (
	"crypto/md5" //nolint:gosec
	"fmt"
	"time"
)

// Country groups sources by region or topic for the presentation layer.
type Country string

const (
	CountryJapan      Country = "Japan"
	CountrySouthKorea Country = "South Korea"
	CountryChina      Country = "China"
	CountryPoland     Country = "Poland"
	CountryGermany    Country = "Germany"
	CountryAcademic   Country = "Academic"
	CountryRegional   Country = "Regional"
)

type Source struct {
	ID      string
	Name    string
	Country Country
	URL     string
	FeedURL string
	Enabled bool
}

type Article struct {
	ID        string     `db:"id"`
	SourceID  string     `db:"source_id"`
	Title     string     `db:"title"`
	URL       string     `db:"url"`
	Summary   string     `db:"summary"`
	Content   string     `db:"content"`
	Author    string     `db:"author"`
	Published *time.Time `db:"published"`
	FetchedAt time.Time  `db:"fetched_at"`
	IsRead    bool       `db:"is_read"`
}

// ArticleID derives the cache key for an article. The digest is stable across
// refetches so a re-fetched entry upserts in place instead of duplicating.
func ArticleID(sourceID, url, title string) string {
	sum := md5.Sum(fmt.Appendf(nil, "%s:%s:%s", sourceID, url, title)) //nolint:gosec
	return fmt.Sprintf("%x", sum)[:16]
}

// DisplayDate renders the published time relative to now ("3h ago",
// "yesterday"), or an empty string when the feed provided no date.
func (a Article) DisplayDate() string {
	if a.Published == nil {
		return ""
	}

	diff := time.Since(*a.Published)
	days := int(diff.Hours() / 24)

	switch {
	case days == 0 && diff < time.Minute:
		return "just now"
	case days == 0 && diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case days == 0:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%dd ago", days)
	default:
		return a.Published.Format("Jan 02")
	}
}
