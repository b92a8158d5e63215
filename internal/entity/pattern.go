package entity

import (
	"regexp"
	"strings"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

// patternRule is one regex-driven extraction rule for a single entity
// type. baseConfidence is the starting score before the capitalization/
// length adjustments in score().
type patternRule struct {
	entityType     string
	pattern        *regexp.Regexp
	baseConfidence float64
}

// patternCatalogue is the fixed regex table for the pattern strategy,
// one or more rules per entity type (location, date, time, temperature,
// person, room, artist, genre, song).
var patternCatalogue = []patternRule{
	{entityType: "time", pattern: regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`), baseConfidence: 0.85},
	{entityType: "temperature", pattern: regexp.MustCompile(`\b(-?\d{1,3})\s?(?:°c|grados|ºc|c)\b`), baseConfidence: 0.8},
	{entityType: "date", pattern: regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`), baseConfidence: 0.9},
	{entityType: "date", pattern: regexp.MustCompile(`\b(hoy|mañana|pasado mañana|ayer)\b`), baseConfidence: 0.7},
	{entityType: "location", pattern: regexp.MustCompile(`\ben\s+([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+(?:\s[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)*)\b`), baseConfidence: 0.65},
	{entityType: "room", pattern: regexp.MustCompile(`\b(cocina|salón|salon|dormitorio|baño|garaje|jardín|jardin|oficina)\b`), baseConfidence: 0.8},
	{entityType: "person", pattern: regexp.MustCompile(`\bcon\s+([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)\b`), baseConfidence: 0.55},
	{entityType: "genre", pattern: regexp.MustCompile(`\b(rock|pop|jazz|clásica|clasica|reggaeton|electrónica|electronica|salsa)\b`), baseConfidence: 0.75},
	{entityType: "artist", pattern: regexp.MustCompile(`\bde\s+([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+(?:\s[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)*)\b`), baseConfidence: 0.5},
	{entityType: "song", pattern: regexp.MustCompile(`"([^"]{1,80})"`), baseConfidence: 0.7},
}

// Pattern is the first of C10's three extraction strategies: a fixed
// regex catalogue scored by type-specific base confidence adjusted by
// capitalization, format specificity, and length.
type Pattern struct{}

// NewPattern constructs the pattern-based extractor.
func NewPattern() *Pattern {
	return &Pattern{}
}

// Extract runs every pattern rule against utterance and returns one
// ExtractedEntity per match, scored by score().
func (p *Pattern) Extract(utterance string) []models.ExtractedEntity {
	var out []models.ExtractedEntity
	for _, rule := range patternCatalogue {
		matches := rule.pattern.FindAllStringSubmatch(utterance, -1)
		for _, m := range matches {
			value := m[0]
			if len(m) > 1 && strings.TrimSpace(m[1]) != "" {
				value = m[1]
			}
			out = append(out, models.ExtractedEntity{
				Type:       rule.entityType,
				Value:      value,
				Confidence: score(rule, value),
				Source:     "pattern",
			})
		}
	}
	return out
}

// score adjusts a rule's base confidence: capitalized proper-noun-shaped
// values and longer, more specific matches score higher; very short
// matches score lower.
func score(rule patternRule, value string) float64 {
	conf := rule.baseConfidence
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0
	}
	if isCapitalized(trimmed) {
		conf += 0.05
	}
	switch {
	case len(trimmed) >= 8:
		conf += 0.05
	case len(trimmed) <= 2:
		conf -= 0.1
	}
	return clamp01(conf)
}

func isCapitalized(s string) bool {
	r := []rune(s)
	if len(r) == 0 {
		return false
	}
	return strings.ToUpper(string(r[0])) == string(r[0]) && strings.ToLower(string(r[0])) != string(r[0])
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
