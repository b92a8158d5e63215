package entity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

var (
	timePattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)
	isoDate     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	relativeDate = map[string]bool{
		"hoy": true, "mañana": true, "pasado mañana": true, "ayer": true,
	}
	genreWhitelist = map[string]bool{
		"rock": true, "pop": true, "jazz": true, "clásica": true, "clasica": true,
		"reggaeton": true, "electrónica": true, "electronica": true, "salsa": true,
	}
)

const (
	minTemperatureC = -50
	maxTemperatureC = 60
)

// Validator normalizes and validates extracted entities per spec §4.9's
// per-type rules: range checks, pattern matches, and enumeration
// membership. Validation failures are returned, not silently dropped, so
// a caller can decide whether to discard or re-prompt.
type Validator struct{}

// NewValidator constructs a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate normalizes e.Value in place (returning the normalized copy)
// and reports a validation error if the value fails its type's rule.
// Room values are lowercased; entity types with no specific rule (person,
// artist, song) pass through with only whitespace trimming.
func (v *Validator) Validate(e models.ExtractedEntity) (models.ExtractedEntity, *models.EntityValidationError) {
	e.Value = strings.TrimSpace(e.Value)
	if e.Value == "" {
		return e, &models.EntityValidationError{Type: e.Type, Reason: "empty value"}
	}
	e.Confidence = clamp01(e.Confidence)

	switch e.Type {
	case "location":
		e.Value = capitalizeWords(e.Value)
	case "time":
		if !timePattern.MatchString(e.Value) {
			return e, &models.EntityValidationError{Type: e.Type, Reason: "expected HH:MM"}
		}
	case "date":
		lower := strings.ToLower(e.Value)
		if isoDate.MatchString(e.Value) {
			// already canonical
		} else if relativeDate[lower] {
			e.Value = lower
		} else {
			return e, &models.EntityValidationError{Type: e.Type, Reason: "expected YYYY-MM-DD or a relative keyword"}
		}
	case "temperature":
		n, ok := parseTemperature(e.Value)
		if !ok {
			return e, &models.EntityValidationError{Type: e.Type, Reason: "not a numeric temperature"}
		}
		if n < minTemperatureC || n > maxTemperatureC {
			return e, &models.EntityValidationError{Type: e.Type, Reason: fmt.Sprintf("out of range [%d, %d]", minTemperatureC, maxTemperatureC)}
		}
		e.Value = fmt.Sprintf("%g°C", n)
	case "genre":
		lower := strings.ToLower(e.Value)
		if !genreWhitelist[lower] {
			return e, &models.EntityValidationError{Type: e.Type, Reason: "not in the genre whitelist"}
		}
		e.Value = lower
	case "room":
		e.Value = strings.ToLower(e.Value)
	}

	return e, nil
}

// ValidateAll normalizes and validates each entity, dropping those that
// fail validation and returning the valid, normalized set plus the
// collected errors for the dropped ones.
func (v *Validator) ValidateAll(entities []models.ExtractedEntity) ([]models.ExtractedEntity, []models.EntityValidationError) {
	valid := make([]models.ExtractedEntity, 0, len(entities))
	var errs []models.EntityValidationError
	for _, e := range entities {
		normalized, verr := v.Validate(e)
		if verr != nil {
			errs = append(errs, *verr)
			continue
		}
		valid = append(valid, normalized)
	}
	return valid, errs
}

func capitalizeWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}

func parseTemperature(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "°C")
	s = strings.TrimSuffix(s, "°c")
	s = strings.TrimSpace(s)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
