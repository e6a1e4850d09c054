// Package tasks defines the messages exchanged over Kafka.
package tasks

import (
	"encoding/json"
	"time"
)

// InterceptTask is one forwarded network response queued for processing.
type InterceptTask struct {
	SessionID  string          `json:"session_id"`
	FinalURL   string          `json:"final_url"`
	Data       json.RawMessage `json:"data"`
	ReceivedAt time.Time       `json:"received_at"`
}

// ExportEvent announces that an artifact has been written for an entity.
type ExportEvent struct {
	SessionID     string    `json:"session_id"`
	Entity        string    `json:"entity"`
	ObjectKey     string    `json:"object_key"`
	SizeBytes     int64     `json:"size_bytes"`
	Conversations int       `json:"conversations"`
	Messages      int       `json:"messages"`
	ExportedAt    time.Time `json:"exported_at"`
}
