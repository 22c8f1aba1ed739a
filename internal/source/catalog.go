// Package source loads the immutable source catalog. The catalog is read
// once at startup; sources never change for the lifetime of the process.
package source

import (
	"fmt"
	"os"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/0x0BSoD/newsReader/internal/model"
)

type Catalog struct {
	sources []model.Source
}

type sourceEntry struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Country string `yaml:"country"`
	URL     string `yaml:"url"`
	FeedURL string `yaml:"rss_url"`
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`
}

type catalogFile struct {
	Sources []sourceEntry `yaml:"sources"`
}

// Load reads the catalog from a YAML file and drops disabled sources.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}

	var sources []model.Source
	for i, entry := range file.Sources {
		if entry.ID == "" || entry.FeedURL == "" {
			return nil, fmt.Errorf("source %d in %s: id and rss_url are required", i, path)
		}
		if entry.Enabled != nil && !*entry.Enabled {
			continue
		}
		sources = append(sources, model.Source{
			ID:      entry.ID,
			Name:    entry.Name,
			Country: model.Country(entry.Country),
			URL:     entry.URL,
			FeedURL: entry.FeedURL,
			Enabled: true,
		})
	}

	return &Catalog{sources: sources}, nil
}

// Sources returns the enabled sources in file order.
func (c *Catalog) Sources() []model.Source {
	return c.sources
}

func (c *Catalog) ByID(id string) (model.Source, bool) {
	return lo.Find(c.sources, func(src model.Source) bool {
		return src.ID == id
	})
}

// ByCountry groups the enabled sources by their country tag.
func (c *Catalog) ByCountry() map[model.Country][]model.Source {
	return lo.GroupBy(c.sources, func(src model.Source) model.Country {
		return src.Country
	})
}
