package models

// ExtractedEntity is one value recognized by C10, before or after
// validation/normalization. Source identifies which strategy produced it,
// for observability; merge decisions are made on Type+Value+Confidence
// alone.
type ExtractedEntity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"` // "pattern", "llm", "context"
}

// EntityValidationError describes why a single extracted entity was
// rejected by the validator, keyed by entity type so a caller can report
// which slot failed.
type EntityValidationError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
