package domain

import "time"

// PlaceholderText is shown in the assistant bubble while a completion is pending.
const PlaceholderText = "Thinking..."

// ChatMessage is a single entry of the linear chat history.
//
// ID, IsFromUser and Timestamp are fixed at creation. Only Text is ever
// rewritten, and only to fill a pending assistant placeholder.
type ChatMessage struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	IsFromUser bool      `json:"isFromUser"`
	Timestamp  time.Time `json:"timestamp"`
}

// Before reports whether m sorts before other in history order: timestamp
// first, then ID. IDs are UUIDv7 so equal timestamps fall back to insertion order.
func (m ChatMessage) Before(other ChatMessage) bool {
	if !m.Timestamp.Equal(other.Timestamp) {
		return m.Timestamp.Before(other.Timestamp)
	}
	return m.ID < other.ID
}
