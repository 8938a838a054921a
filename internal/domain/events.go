package domain

import "time"

// Event types published to the audit stream after bulk writes.
const (
	EventTypeBatchStored    = "article_batch.stored"
	EventTypeScrapeFinished = "scrape.finished"
)

// BatchStoredEvent records the outcome of one bulk upsert against the
// persistent collection. One event is emitted per (batch, tag) pair.
type BatchStoredEvent struct {
	SessionID     string     `json:"session_id"`
	Source        SourceType `json:"source"`
	Tag           string     `json:"tag"`
	BatchSize     int        `json:"batch_size"`
	Upserted      int        `json:"upserted"`
	TagAdded      int        `json:"tag_added"`
	AlreadyTagged int        `json:"already_tagged"`
	Failed        int        `json:"failed"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// ScrapeFinishedEvent summarizes a completed scrape session for one source.
type ScrapeFinishedEvent struct {
	SessionID  string     `json:"session_id"`
	Source     SourceType `json:"source"`
	Scanned    int        `json:"scanned"`
	Unreadable int        `json:"unreadable"`
	NoIdentity int        `json:"no_identity"`
	Duration   string     `json:"duration"`
	OccurredAt time.Time  `json:"occurred_at"`
}
