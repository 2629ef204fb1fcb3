// Package models - chat_log.go defines the ChatLog row of the digest-only audit trail.
package models

import "time"

// ChatLog is one row of chat_logs. Both hash columns hold 64-character hex
// HMAC-SHA256 digests; the table has no plaintext columns.
type ChatLog struct {
	ID             int64     `db:"id" json:"id"`
	HashedQuery    string    `db:"hashed_query" json:"hashed_query"`
	HashedResponse string    `db:"hashed_response" json:"hashed_response"`
	Timestamp      time.Time `db:"timestamp" json:"timestamp"`
}
