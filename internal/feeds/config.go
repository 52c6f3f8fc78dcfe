package feeds

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/k544228/for-news/internal/models"
)

// Feed is one RSS/Atom source. An empty Category lets the keyword classifier decide.
type Feed struct {
	Name     string          `yaml:"name"`
	URL      string          `yaml:"url"`
	Source   models.Source   `yaml:"source"`
	Category models.Category `yaml:"category,omitempty"`
	Enabled  *bool           `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the feed should be fetched; feeds are on unless disabled explicitly.
func (f Feed) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// Config is the YAML file layout:
//
//	feeds:
//	  - name: BBC World
//	    url: https://feeds.bbci.co.uk/news/world/rss.xml
//	    source: BBC
//	    category: world
type Config struct {
	Feeds []Feed `yaml:"feeds"`
}

// DefaultFeeds is used when no feed file exists.
var DefaultFeeds = []Feed{
	{Name: "BBC World", URL: "https://feeds.bbci.co.uk/news/world/rss.xml", Source: models.SourceBBC, Category: models.CategoryWorld},
	{Name: "CNN World", URL: "http://rss.cnn.com/rss/edition_world.rss", Source: models.SourceCNN, Category: models.CategoryWorld},
	{Name: "BBC Technology", URL: "https://feeds.bbci.co.uk/news/technology/rss.xml", Source: models.SourceBBC, Category: models.CategoryTech},
	{Name: "BBC Science & Environment", URL: "https://feeds.bbci.co.uk/news/science_and_environment/rss.xml", Source: models.SourceBBC, Category: models.CategoryEnvironment},
	{Name: "BBC Top Stories", URL: "https://feeds.bbci.co.uk/news/rss.xml", Source: models.SourceBBC},
}

// LoadFeeds reads the feed list from a YAML file. A missing file yields DefaultFeeds.
func LoadFeeds(path string) ([]Feed, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultFeeds, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode feeds %s: %w", path, err)
	}
	if err := Validate(cfg.Feeds); err != nil {
		return nil, fmt.Errorf("feeds %s: %w", path, err)
	}
	return cfg.Feeds, nil
}

// Validate checks every feed has a url, a known source and, when set, a known category.
func Validate(feeds []Feed) error {
	if len(feeds) == 0 {
		return errors.New("no feeds configured")
	}
	for i, f := range feeds {
		if f.URL == "" {
			return fmt.Errorf("feed %d (%s): url is required", i, f.Name)
		}
		if !f.Source.Valid() {
			return fmt.Errorf("feed %d (%s): unknown source %q", i, f.Name, f.Source)
		}
		if f.Category != "" && !f.Category.Valid() {
			return fmt.Errorf("feed %d (%s): unknown category %q", i, f.Name, f.Category)
		}
	}
	return nil
}

func enabled(feeds []Feed) []Feed {
	out := make([]Feed, 0, len(feeds))
	for _, f := range feeds {
		if f.IsEnabled() {
			out = append(out, f)
		}
	}
	return out
}
