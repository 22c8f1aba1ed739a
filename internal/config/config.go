package config

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
)

type Config struct {
	DatabasePath     string        `hcl:"database_path" env:"DATABASE_PATH" default:"newsreader.db"`
	SourcesFile      string        `hcl:"sources_file" env:"SOURCES_FILE" default:"sources.yaml"`
	ExpiryHours      int           `hcl:"expiry_hours" env:"EXPIRY_HOURS" default:"24"`
	HTTPTimeout      time.Duration `hcl:"http_timeout" env:"HTTP_TIMEOUT" default:"30s"`
	MaxPerSource     int           `hcl:"max_per_source" env:"MAX_PER_SOURCE" default:"50"`
	ExtractorWorkers int           `hcl:"extractor_workers" env:"EXTRACTOR_WORKERS" default:"4"`
	FeedUserAgent    string        `hcl:"feed_user_agent" env:"FEED_USER_AGENT" default:"newsReader/1.0 (Terminal News Reader)"`
	PageUserAgent    string        `hcl:"page_user_agent" env:"PAGE_USER_AGENT" default:"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"`
}

// ExpiryWindow is the configurable display window; articles fetched longer
// ago than this are hidden from default listings and purged by cleanup at
// twice this age.
func (c Config) ExpiryWindow() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

var (
	cfg  Config
	once sync.Once
)

func Get() Config {
	once.Do(func() {
		loader := aconfig.LoaderFor(&cfg, aconfig.Config{
			EnvPrefix: "NEWS",
			Files:     []string{"./config.hcl", "./config.local.hcl", "$HOME/.config/newsReader/config.hcl"},
			FileDecoders: map[string]aconfig.FileDecoder{
				".hcl": aconfighcl.New(),
			},
		})

		if err := loader.Load(); err != nil {
			slog.Error("failed to load config", "err", err)
		}
	})

	return cfg
}
