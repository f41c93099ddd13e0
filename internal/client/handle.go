// Package client holds the consumer-side state machinery: the reconciler
// that merges the durable message feed with the live job feed, the paced
// reveal scheduler, and the SSE stream consumer.
package client

import (
	"time"
)

// handleStaleAfter bounds how long a handle stays trusted with no events.
const handleStaleAfter = 5 * time.Minute

// ActiveStreamHandle is the client's volatile record of the stream it is
// currently following. It is never persisted; a fresh session rebuilds it
// from the job-status feed.
type ActiveStreamHandle struct {
	ChatID      string
	MessageID   string
	StreamID    string
	LastEventID int64
	Content     string
	Reasoning   string
	StartedAt   time.Time
	lastEventAt time.Time
}

// NewActiveStreamHandle creates a handle for a stream observed now.
func NewActiveStreamHandle(chatID, messageID, streamID string) *ActiveStreamHandle {
	now := time.Now()
	return &ActiveStreamHandle{
		ChatID:      chatID,
		MessageID:   messageID,
		StreamID:    streamID,
		StartedAt:   now,
		lastEventAt: now,
	}
}

// Touch records event activity and advances the cursor if id is newer.
func (h *ActiveStreamHandle) Touch(id int64) {
	h.lastEventAt = time.Now()
	if id > h.LastEventID {
		h.LastEventID = id
	}
}

// Expired reports whether the handle has gone stale and should no longer be
// trusted as evidence of a live stream.
func (h *ActiveStreamHandle) Expired(now time.Time) bool {
	return now.Sub(h.lastEventAt) > handleStaleAfter
}
