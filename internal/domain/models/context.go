package models

import "time"

// EntityCacheEntry is the last known value observed for an entity type,
// with the turn that produced it.
type EntityCacheEntry struct {
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observed_at"`
	TurnID     string    `json:"turn_id"`
}

// Context is per-session shared state threaded through classification,
// slot-filling, and decomposition. CompressionLevel is monotonically
// non-decreasing; when it is greater than zero, ConversationSummary
// reflects all turns older than the retained window.
type Context struct {
	EntityCache        map[string]EntityCacheEntry `json:"entity_cache"`
	ConversationSummary string                     `json:"conversation_summary"`
	ActiveIntent        string                     `json:"active_intent"`
	PendingSlots        map[string]string          `json:"pending_slots"`
	TopicStack          []string                   `json:"topic_stack"`
	CompressionLevel    int                        `json:"compression_level"`
}

// NewContext returns an empty Context for a freshly created session.
func NewContext() *Context {
	return &Context{
		EntityCache:  make(map[string]EntityCacheEntry),
		PendingSlots: make(map[string]string),
		TopicStack:   make([]string, 0),
	}
}

// Clone returns a deep copy, used when snapshotting a version before mutation.
func (c *Context) Clone() *Context {
	clone := &Context{
		ConversationSummary: c.ConversationSummary,
		ActiveIntent:        c.ActiveIntent,
		CompressionLevel:    c.CompressionLevel,
		EntityCache:         make(map[string]EntityCacheEntry, len(c.EntityCache)),
		PendingSlots:        make(map[string]string, len(c.PendingSlots)),
		TopicStack:          append([]string(nil), c.TopicStack...),
	}
	for k, v := range c.EntityCache {
		clone.EntityCache[k] = v
	}
	for k, v := range c.PendingSlots {
		clone.PendingSlots[k] = v
	}
	return clone
}

// RecordEntity updates the entity cache only if the new observation is from
// a turn at least as recent as what is already cached, so that entries
// always reflect the most recent turn that produced them.
func (c *Context) RecordEntity(entityType, value string, confidence float64, turnID string, now time.Time) {
	existing, ok := c.EntityCache[entityType]
	if ok && existing.ObservedAt.After(now) {
		return
	}
	c.EntityCache[entityType] = EntityCacheEntry{
		Value:      value,
		Confidence: confidence,
		ObservedAt: now,
		TurnID:     turnID,
	}
}

// PushTopic appends a topic to the ordered topic stack.
func (c *Context) PushTopic(topic string) {
	c.TopicStack = append(c.TopicStack, topic)
}

// ContextVersion is a historical snapshot retained for RestoreVersion.
type ContextVersion struct {
	Index     int       `json:"index"`
	Snapshot  *Context  `json:"snapshot"`
	CreatedAt time.Time `json:"created_at"`
}
