package domain

// StreamEventType is the type tag of a relay wire frame.
type StreamEventType string

const (
	StreamEventText      StreamEventType = "text"
	StreamEventReasoning StreamEventType = "reasoning"
	StreamEventDone      StreamEventType = "done"
	StreamEventError     StreamEventType = "error"
)

// StreamEvent is one relay frame, sent to the client as a line-delimited
// `data: <json>` SSE payload. ID is the token's log id; clients supply the
// last id they saw to resume a tail read.
type StreamEvent struct {
	Type StreamEventType `json:"type"`
	Text string          `json:"text,omitempty"`
	ID   int64           `json:"id,omitempty"`
}

// KindToEventType maps a log token kind to its wire frame type.
func KindToEventType(kind TokenKind) StreamEventType {
	switch kind {
	case TokenKindReasoning:
		return StreamEventReasoning
	case TokenKindDone:
		return StreamEventDone
	case TokenKindError:
		return StreamEventError
	default:
		return StreamEventText
	}
}
