package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"
)

// Category partitions news items in a snapshot.
type Category string

const (
	CategoryWorld       Category = "world"
	CategoryTech        Category = "tech"
	CategoryEnvironment Category = "environment"
)

// Categories is the fixed, ordered category set. Every per-category loop uses this order.
var Categories = []Category{CategoryWorld, CategoryTech, CategoryEnvironment}

// Valid reports whether c belongs to the fixed category set.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// Source names the outlet a news item came from.
type Source string

const (
	SourceBBC       Source = "BBC"
	SourceCNN       Source = "CNN"
	SourceAP        Source = "AP"
	SourceAlJazeera Source = "AlJazeera"
)

var sources = []Source{SourceBBC, SourceCNN, SourceAP, SourceAlJazeera}

// Valid reports whether s is one of the known outlets.
func (s Source) Valid() bool {
	return slices.Contains(sources, s)
}

// Analysis is the optional commentary attached to a news item.
type Analysis struct {
	AffectedGroups         []string `json:"affectedGroups"`
	BeforeImpact           string   `json:"beforeImpact"`
	AfterImpact            string   `json:"afterImpact"`
	HumorousInterpretation string   `json:"humorousInterpretation"`
}

// NewsItem is a single article as shown on the site.
type NewsItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Link        string    `json:"link,omitempty"`
	Category    Category  `json:"category"`
	Source      Source    `json:"source"`
	PublishedAt time.Time `json:"publishedAt"`
	Analysis    *Analysis `json:"analysis,omitempty"`
}

// Equal compares every field of two items. Timestamps are compared by instant.
func (n NewsItem) Equal(o NewsItem) bool {
	if n.ID != o.ID ||
		n.Title != o.Title ||
		n.Content != o.Content ||
		n.Link != o.Link ||
		n.Category != o.Category ||
		n.Source != o.Source ||
		!n.PublishedAt.Equal(o.PublishedAt) {
		return false
	}
	return n.Analysis.Equal(o.Analysis)
}

// Equal compares two analyses; two nil values are equal.
func (a *Analysis) Equal(o *Analysis) bool {
	if a == nil || o == nil {
		return a == nil && o == nil
	}
	return a.BeforeImpact == o.BeforeImpact &&
		a.AfterImpact == o.AfterImpact &&
		a.HumorousInterpretation == o.HumorousInterpretation &&
		slices.Equal(a.AffectedGroups, o.AffectedGroups)
}

// SnapshotMetadata describes how a snapshot was produced.
type SnapshotMetadata struct {
	TotalNews    int          `json:"totalNews"`
	UpdateSource RecordSource `json:"updateSource,omitempty"`
	Version      string       `json:"version,omitempty"`
	DataOrigin   DataOrigin   `json:"dataOrigin,omitempty"`
}

// Snapshot is a point-in-time view of the site's news, partitioned by category.
type Snapshot struct {
	World       []NewsItem        `json:"world"`
	Tech        []NewsItem        `json:"tech"`
	Environment []NewsItem        `json:"environment"`
	LastUpdated time.Time         `json:"lastUpdated"`
	Metadata    *SnapshotMetadata `json:"metadata,omitempty"`
}

// Items returns the list stored for c. Unknown categories yield nil.
func (s Snapshot) Items(c Category) []NewsItem {
	switch c {
	case CategoryWorld:
		return s.World
	case CategoryTech:
		return s.Tech
	case CategoryEnvironment:
		return s.Environment
	default:
		return nil
	}
}

// SetItems replaces the list stored for c.
func (s *Snapshot) SetItems(c Category, items []NewsItem) {
	switch c {
	case CategoryWorld:
		s.World = items
	case CategoryTech:
		s.Tech = items
	case CategoryEnvironment:
		s.Environment = items
	}
}

// Total counts items across all categories.
func (s Snapshot) Total() int {
	total := 0
	for _, c := range Categories {
		total += len(s.Items(c))
	}
	return total
}

// CategoryCounts returns the per-category item counts.
func (s Snapshot) CategoryCounts() map[Category]int {
	counts := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		counts[c] = len(s.Items(c))
	}
	return counts
}

// Find looks an item up by id in every category.
func (s Snapshot) Find(id string) (NewsItem, bool) {
	for _, c := range Categories {
		for _, item := range s.Items(c) {
			if item.ID == id {
				return item, true
			}
		}
	}
	return NewsItem{}, false
}

// ErrMalformedSnapshot is returned when snapshot input does not have the expected shape.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// DecodeSnapshot reads a JSON snapshot and validates it. A category that is not a list
// is rejected rather than coerced.
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Validate checks that every item has an id and sits in the list matching its category.
func (s Snapshot) Validate() error {
	for _, c := range Categories {
		for i, item := range s.Items(c) {
			if item.ID == "" {
				return fmt.Errorf("%w: %s[%d] has empty id", ErrMalformedSnapshot, c, i)
			}
			if item.Category != c {
				return fmt.Errorf("%w: %s[%d] has category %q", ErrMalformedSnapshot, c, i, item.Category)
			}
		}
	}
	return nil
}
