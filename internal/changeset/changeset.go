// Package changeset computes the difference between two news snapshots and renders it
// as a short summary and a version tag. Everything here is pure and safe for concurrent use.
package changeset

import (
	"fmt"
	"strings"
	"time"

	"github.com/k544228/for-news/internal/models"
)

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

// VersionFormat is the layout of version tags: year, month, day, hour and minute.
const VersionFormat = "2006.01.02.1504"

// Compute diffs old against new category by category. Items are matched by id; when an id
// repeats inside one list the last occurrence wins. Added and updated items keep the order of
// the new list, removed ids keep the order of the old list.
func Compute(oldSnap, newSnap models.Snapshot) models.ChangeSet {
	cs := models.ChangeSet{
		Added:   make([]models.NewsItem, 0),
		Updated: make([]models.NewsItem, 0),
		Removed: make([]string, 0),
	}
	for _, c := range models.Categories {
		diffCategory(oldSnap.Items(c), newSnap.Items(c), &cs)
	}
	return cs
}

func diffCategory(oldItems, newItems []models.NewsItem, cs *models.ChangeSet) {
	oldIdx := lastIndex(oldItems)
	newIdx := lastIndex(newItems)

	for i, item := range newItems {
		if newIdx[item.ID] != i {
			continue
		}
		j, ok := oldIdx[item.ID]
		switch {
		case !ok:
			cs.Added = append(cs.Added, item)
		case !oldItems[j].Equal(item):
			cs.Updated = append(cs.Updated, item)
		}
	}

	for i, item := range oldItems {
		if oldIdx[item.ID] != i {
			continue
		}
		if _, ok := newIdx[item.ID]; !ok {
			cs.Removed = append(cs.Removed, item.ID)
		}
	}
}

// lastIndex maps each id to the position of its last occurrence.
func lastIndex(items []models.NewsItem) map[string]int {
	idx := make(map[string]int, len(items))
	for i, item := range items {
		idx[item.ID] = i
	}
	return idx
}

// HasChanges reports whether any of the three lists is non-empty.
func HasChanges(cs models.ChangeSet) bool {
	return len(cs.Added) > 0 || len(cs.Updated) > 0 || len(cs.Removed) > 0
}

// Template renders change counts. Each clause is a format string taking one %d.
type Template struct {
	Added     string
	Updated   string
	Removed   string
	Separator string
	Empty     string
}

// English is the default summary template.
var English = Template{
	Added:     "%d added",
	Updated:   "%d updated",
	Removed:   "%d removed",
	Separator: ", ",
	Empty:     "no changes",
}

// TraditionalChinese matches the wording shown on the site.
var TraditionalChinese = Template{
	Added:     "新增 %d 篇新聞",
	Updated:   "更新 %d 篇新聞",
	Removed:   "移除 %d 篇新聞",
	Separator: "，",
	Empty:     "無變更",
}

// Summarize renders cs with the English template.
func Summarize(cs models.ChangeSet) string {
	return English.Summarize(cs)
}

// Summarize lists non-zero counts in the order added, updated, removed.
func (t Template) Summarize(cs models.ChangeSet) string {
	parts := make([]string, 0, 3)
	if n := len(cs.Added); n > 0 {
		parts = append(parts, fmt.Sprintf(t.Added, n))
	}
	if n := len(cs.Updated); n > 0 {
		parts = append(parts, fmt.Sprintf(t.Updated, n))
	}
	if n := len(cs.Removed); n > 0 {
		parts = append(parts, fmt.Sprintf(t.Removed, n))
	}
	if len(parts) == 0 {
		return t.Empty
	}
	return strings.Join(parts, t.Separator)
}

// VersionTag formats the clock's current time with minute resolution. Calls within the same
// minute return the same tag; the tag names an update batch, not an event.
func VersionTag(clock Clock) string {
	if clock == nil {
		clock = time.Now
	}
	return clock().Format(VersionFormat)
}
