package processing

import (
	"regexp"
	"strings"

	"github.com/k544228/for-news/internal/models"
)

// categoryKeywords feeds the keyword-scoring classifier. Multi-word phrases and long words
// are counted as substrings, tokens of three bytes or fewer only as whole words.
var categoryKeywords = map[models.Category][]string{
	models.CategoryWorld: {
		"government", "president", "minister", "election", "war", "ceasefire", "summit",
		"united nations", "un", "nato", "eu", "diplomat", "sanctions", "border", "refugee",
		"parliament", "treaty", "military", "protest", "economy", "trade", "tariff", "inflation",
		"國際", "政府", "總統", "選舉", "戰爭", "經濟", "貿易",
	},
	models.CategoryTech: {
		"technology", "tech", "ai", "artificial intelligence", "software", "app", "apple", "google",
		"microsoft", "meta", "openai", "chip", "semiconductor", "quantum", "robot", "startup",
		"cyber", "hack", "data", "smartphone", "internet", "computer", "algorithm", "vr",
		"科技", "人工智慧", "晶片", "軟體", "量子",
	},
	models.CategoryEnvironment: {
		"climate", "environment", "emission", "carbon", "pollution", "plastic", "ocean",
		"wildlife", "species", "biodiversity", "renewable", "solar", "wind power", "forest",
		"drought", "flood", "wildfire", "heatwave", "glacier", "recycling", "energy",
		"氣候", "環境", "污染", "海洋", "再生能源", "碳排",
	},
}

var wordPatterns = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp)
	for _, words := range categoryKeywords {
		for _, w := range words {
			if len(w) <= 3 && !strings.Contains(w, " ") {
				out[w] = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
			}
		}
	}
	return out
}()

// Score counts keyword occurrences for every category.
func Score(title, content string) map[models.Category]int {
	text := strings.ToLower(title + " " + content)
	scores := make(map[models.Category]int, len(models.Categories))
	for _, c := range models.Categories {
		for _, kw := range categoryKeywords[c] {
			if re, ok := wordPatterns[kw]; ok {
				scores[c] += len(re.FindAllStringIndex(text, -1))
				continue
			}
			scores[c] += strings.Count(text, kw)
		}
	}
	return scores
}

// Classify picks the category with the highest keyword score. Ties go to the category
// listed first in models.Categories; no hit at all returns fallback.
func Classify(title, content string, fallback models.Category) models.Category {
	scores := Score(title, content)
	best, bestScore := fallback, 0
	for _, c := range models.Categories {
		if scores[c] > bestScore {
			best, bestScore = c, scores[c]
		}
	}
	return best
}
