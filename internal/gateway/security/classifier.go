// Package security classifies request text for sensitivity so routing can
// be restricted to high-security-tier providers before any provider call.
package security

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Content categories a request can match. A category is reported when at
// least one of its terms appears in the text.
const (
	CategoryCredentials  = "credentials"
	CategoryPersonalData = "personal_data"
	CategoryFinancial    = "financial"
	CategoryHealth       = "health"
	CategoryBusiness     = "business_confidential"
	CategoryLegal        = "legal"
)

// scorePerTerm is the score contribution of each distinct matched term;
// the total is capped at 1.0.
const scorePerTerm = 0.2

// Analysis is the outcome of classifying one request. Computed fresh per
// call and never persisted.
type Analysis struct {
	Sensitive       bool     `json:"is_sensitive"`
	Score           float64  `json:"score"`
	MatchedTerms    []string `json:"matched_terms"`
	Categories      []string `json:"categories"`
	Recommendations []string `json:"recommendations"`
}

// Classifier scans text against a configurable keyword set grouped by
// category. Classification is stateless per call; the shared keyword set
// may grow at runtime via UpdateKeywords (additive only).
type Classifier struct {
	// mu guards the keyword set against concurrent updates.
	mu        sync.RWMutex
	keywords  map[string][]string
	threshold float64

	logger *slog.Logger
}

// NewClassifier creates a classifier seeded with the default keyword set.
// Content scoring at or above threshold is reported sensitive.
func NewClassifier(threshold float64) *Classifier {
	return &Classifier{
		keywords:  defaultKeywords(),
		threshold: threshold,
		logger:    slog.Default().With("component", "security"),
	}
}

// Classify scores text for sensitivity. The score grows by scorePerTerm
// for each distinct matched term, capped at 1.0; matched categories drive
// the advisory recommendations.
func (c *Classifier) Classify(text string) *Analysis {
	lowered := strings.ToLower(text)

	c.mu.RLock()
	defer c.mu.RUnlock()

	matched := make([]string, 0, 4)
	seen := make(map[string]struct{})
	categories := make([]string, 0, 2)

	for _, category := range sortedCategories(c.keywords) {
		hit := false
		for _, term := range c.keywords[category] {
			if !strings.Contains(lowered, term) {
				continue
			}
			hit = true
			if _, dup := seen[term]; !dup {
				seen[term] = struct{}{}
				matched = append(matched, term)
			}
		}
		if hit {
			categories = append(categories, category)
		}
	}

	score := scorePerTerm * float64(len(matched))
	if score > 1.0 {
		score = 1.0
	}

	return &Analysis{
		Sensitive:       score >= c.threshold,
		Score:           score,
		MatchedTerms:    matched,
		Categories:      categories,
		Recommendations: recommendationsFor(categories),
	}
}

// UpdateKeywords adds terms to a category. Additions only; existing terms
// are never removed so the sensitivity floor can only rise at runtime.
// Unknown categories create a new group.
func (c *Classifier) UpdateKeywords(category string, terms []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := make(map[string]struct{}, len(c.keywords[category]))
	for _, t := range c.keywords[category] {
		existing[t] = struct{}{}
	}

	added := 0
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, dup := existing[term]; dup {
			continue
		}
		c.keywords[category] = append(c.keywords[category], term)
		existing[term] = struct{}{}
		added++
	}

	c.logger.Info("keyword set updated", "category", category, "added", added)
}

// Keywords returns a snapshot of the keyword set for diagnostics.
func (c *Classifier) Keywords() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]string, len(c.keywords))
	for category, terms := range c.keywords {
		out[category] = append([]string(nil), terms...)
	}
	return out
}

// Threshold returns the configured sensitivity threshold.
func (c *Classifier) Threshold() float64 { return c.threshold }

// sortedCategories keeps match ordering deterministic across calls.
func sortedCategories(keywords map[string][]string) []string {
	names := make([]string, 0, len(keywords))
	for name := range keywords {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
