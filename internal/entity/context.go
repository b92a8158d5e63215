package entity

import (
	"github.com/atlasvoice/assistant/internal/domain/models"
)

// Context is C10's third extraction strategy: entities the user likely
// referenced but did not repeat, recovered from the session's entity
// cache and recent turns' slot snapshots.
type Context struct{}

// NewContext constructs the context-based extractor.
func NewContext() *Context {
	return &Context{}
}

// Extract returns the cached entity for each requested type still found
// in ctx.EntityCache or in recentTurns' slot snapshots (most recent turn
// wins), tagged as source "context" with the cached confidence carried
// over. wantedTypes that are neither cached nor present in any recent
// turn are simply absent from the result.
func (c *Context) Extract(ctx *models.Context, recentTurns []*models.Turn, wantedTypes []string) []models.ExtractedEntity {
	if ctx == nil {
		return nil
	}
	wanted := make(map[string]bool, len(wantedTypes))
	for _, t := range wantedTypes {
		wanted[t] = true
	}

	out := make([]models.ExtractedEntity, 0, len(wantedTypes))
	seen := make(map[string]bool)

	for entityType, entry := range ctx.EntityCache {
		if len(wanted) > 0 && !wanted[entityType] {
			continue
		}
		out = append(out, models.ExtractedEntity{
			Type:       entityType,
			Value:      entry.Value,
			Confidence: entry.Confidence,
			Source:     "context",
		})
		seen[entityType] = true
	}

	// Walk recent turns from most to least recent, filling in any
	// requested type not already recovered from the entity cache.
	for i := len(recentTurns) - 1; i >= 0; i-- {
		turn := recentTurns[i]
		for slotName, value := range turn.SlotsSnapshot {
			if seen[slotName] || value == "" {
				continue
			}
			if len(wanted) > 0 && !wanted[slotName] {
				continue
			}
			out = append(out, models.ExtractedEntity{
				Type:       slotName,
				Value:      value,
				Confidence: 0.4,
				Source:     "context",
			})
			seen[slotName] = true
		}
	}

	return out
}
