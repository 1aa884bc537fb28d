package services

import (
	"strings"

	"github.com/techagentng/civicpulse/models"
)

type categoryKeywords struct {
	category models.Category
	keywords []string
}

// categoryTable is evaluated in order; on equal match counts the earlier
// entry wins.
var categoryTable = []categoryKeywords{
	{models.CategoryPothole, []string{"pothole", "road", "damage", "hole", "asphalt", "crack", "pavement"}},
	{models.CategoryGarbage, []string{"garbage", "trash", "waste", "litter", "dump", "rubbish", "bin"}},
	{models.CategoryStreetlight, []string{"light", "lamp", "pole", "streetlight", "broken", "dark"}},
	{models.CategoryWaterLeak, []string{"water", "leak", "pipe", "burst", "overflow", "flooding"}},
	{models.CategoryDrainage, []string{"drain", "sewage", "clog", "overflow", "manhole", "gutter"}},
	{models.CategoryTrafficSignal, []string{"signal", "traffic", "light", "crossing", "junction"}},
	{models.CategoryEncroachment, []string{"encroachment", "illegal", "blocking", "occupied"}},
}

var (
	highSeverityKeywords = []string{"dangerous", "blocked", "major", "severe", "critical", "accident"}
	lowSeverityKeywords  = []string{"minor", "small", "cosmetic"}
)

// Classify maps detected features (labels, objects, OCR words) to a category
// and priority. Matching is by substring: a feature counts for a category when
// it contains any of the category's keywords.
func Classify(features []string) (models.Category, models.Priority) {
	tokens := normalizeFeatures(features)
	category := classifyCategory(tokens)
	return category, ApplyPriorityOverrides(category, severity(tokens))
}

func normalizeFeatures(features []string) []string {
	tokens := make([]string, 0, len(features))
	for _, f := range features {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func classifyCategory(tokens []string) models.Category {
	category := models.CategoryOther
	maxMatches := 0
	for _, entry := range categoryTable {
		matches := 0
		for _, token := range tokens {
			if containsAny(token, entry.keywords) {
				matches++
			}
		}
		if matches > maxMatches {
			maxMatches = matches
			category = entry.category
		}
	}
	return category
}

// severity is the generic priority pass. High-severity keywords are checked
// first and win over low-severity ones.
func severity(tokens []string) models.Priority {
	for _, token := range tokens {
		if containsAny(token, highSeverityKeywords) {
			return models.PriorityHigh
		}
	}
	for _, token := range tokens {
		if containsAny(token, lowSeverityKeywords) {
			return models.PriorityLow
		}
	}
	return models.PriorityMedium
}

// ApplyPriorityOverrides applies the category-specific rules on top of a
// generic priority: water leaks are always high, potholes are never below high.
func ApplyPriorityOverrides(category models.Category, priority models.Priority) models.Priority {
	switch category {
	case models.CategoryWaterLeak:
		return models.PriorityHigh
	case models.CategoryPothole:
		if priority == models.PriorityMedium || priority == models.PriorityLow {
			return models.PriorityHigh
		}
	}
	return priority
}

func containsAny(token string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(token, kw) {
			return true
		}
	}
	return false
}

// FeaturesFromText splits free text (e.g. OCR output) into lowercase tokens.
func FeaturesFromText(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
