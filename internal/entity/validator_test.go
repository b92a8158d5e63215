package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

func TestValidator_NormalizesLocationCapitalization(t *testing.T) {
	v := NewValidator()
	out, err := v.Validate(models.ExtractedEntity{Type: "location", Value: "madrid", Confidence: 0.7})
	assert.Nil(t, err)
	assert.Equal(t, "Madrid", out.Value)
}

func TestValidator_RejectsMalformedTime(t *testing.T) {
	v := NewValidator()
	_, err := v.Validate(models.ExtractedEntity{Type: "time", Value: "25:99", Confidence: 0.7})
	assert.NotNil(t, err)
}

func TestValidator_AcceptsValidTime(t *testing.T) {
	v := NewValidator()
	out, err := v.Validate(models.ExtractedEntity{Type: "time", Value: "07:00", Confidence: 0.7})
	assert.Nil(t, err)
	assert.Equal(t, "07:00", out.Value)
}

func TestValidator_RejectsOutOfRangeTemperature(t *testing.T) {
	v := NewValidator()
	_, err := v.Validate(models.ExtractedEntity{Type: "temperature", Value: "500", Confidence: 0.7})
	assert.NotNil(t, err)
}

func TestValidator_NormalizesTemperatureUnit(t *testing.T) {
	v := NewValidator()
	out, err := v.Validate(models.ExtractedEntity{Type: "temperature", Value: "21", Confidence: 0.7})
	assert.Nil(t, err)
	assert.Equal(t, "21°C", out.Value)
}

func TestValidator_AcceptsRelativeDateKeyword(t *testing.T) {
	v := NewValidator()
	out, err := v.Validate(models.ExtractedEntity{Type: "date", Value: "mañana", Confidence: 0.7})
	assert.Nil(t, err)
	assert.Equal(t, "mañana", out.Value)
}

func TestValidator_RejectsGenreNotInWhitelist(t *testing.T) {
	v := NewValidator()
	_, err := v.Validate(models.ExtractedEntity{Type: "genre", Value: "polka", Confidence: 0.7})
	assert.NotNil(t, err)
}

func TestValidator_ValidateAllDropsFailuresKeepsValid(t *testing.T) {
	v := NewValidator()
	entities := []models.ExtractedEntity{
		{Type: "time", Value: "07:00", Confidence: 0.8},
		{Type: "time", Value: "garbage", Confidence: 0.8},
	}
	valid, errs := v.ValidateAll(entities)
	assert.Len(t, valid, 1)
	assert.Len(t, errs, 1)
}
