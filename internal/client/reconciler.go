package client

import (
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/tailstream/internal/domain"
)

// ChatStatus is the reconciler's view of the chat lifecycle.
type ChatStatus string

const (
	StatusReady     ChatStatus = "ready"
	StatusSubmitted ChatStatus = "submitted"
	StatusStreaming ChatStatus = "streaming"
	StatusResuming  ChatStatus = "resuming"
	StatusError     ChatStatus = "error"
)

// PartKind tags the variants of a message part.
type PartKind string

const (
	PartText      PartKind = "text"
	PartReasoning PartKind = "reasoning"
)

// PartState tracks whether a reasoning part is still being produced.
type PartState string

const (
	PartStateStreaming PartState = "streaming"
	PartStateDone      PartState = "done"
)

// Part is one block of a rendered message. Text parts carry no state;
// reasoning parts flip from streaming to done when the job ends.
type Part struct {
	Kind  PartKind
	Text  string
	State PartState
}

// UIMessage is a message as the client renders it. Provisional messages were
// created locally from the live job feed and have not yet been confirmed by
// the durable feed.
type UIMessage struct {
	ID          string
	Role        domain.Role
	Parts       []Part
	Provisional bool
}

// Text returns the concatenated text parts.
func (m *UIMessage) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// Reasoning returns the concatenated reasoning parts.
func (m *UIMessage) Reasoning() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartReasoning {
			out += p.Text
		}
	}
	return out
}

// ChatState merges the durable message feed and the live job-status feed
// into one rendered message list. All methods are called from a single
// event loop; the state is never shared across goroutines.
type ChatState struct {
	ChatID   string
	Status   ChatStatus
	Messages []UIMessage
	Handle   *ActiveStreamHandle
	Err      error
}

// NewChatState creates an idle state for the chat.
func NewChatState(chatID string) *ChatState {
	return &ChatState{
		ChatID: chatID,
		Status: StatusReady,
	}
}

// BeginSend appends an optimistic user message and moves to submitted. The
// returned id is the client-assigned message id.
func (s *ChatState) BeginSend(content string) string {
	id := "local_" + uuid.New().String()[:8]
	s.Messages = append(s.Messages, UIMessage{
		ID:          id,
		Role:        domain.RoleUser,
		Parts:       []Part{{Kind: PartText, Text: content}},
		Provisional: true,
	})
	s.Status = StatusSubmitted
	s.Err = nil
	return id
}

// SendAccepted attaches a handle for the job the server created.
func (s *ChatState) SendAccepted(resp *domain.SendMessageResponse) {
	s.Handle = NewActiveStreamHandle(resp.ChatID, resp.MessageID, resp.StreamID)
	s.Status = StatusStreaming
}

// SendFailed surfaces a send error. The optimistic user message stays in the
// list; its text was already echoed and rolling it back would lose input.
func (s *ChatState) SendFailed(err error) {
	s.Status = StatusError
	s.Err = err
	s.Handle = nil
}

// ApplyJobStatus folds one job-feed tick into the state. A nil job means no
// job is active for the chat.
func (s *ChatState) ApplyJobStatus(job *domain.JobStatus) {
	s.dropExpiredHandle()

	if job == nil || job.Status.IsTerminal() {
		s.finalize(job)
		return
	}

	// A live job while the local state thought nothing was running is a
	// resumption: seed a provisional message so something renders before
	// the next durable read.
	if s.Status != StatusStreaming && s.Status != StatusSubmitted && s.Status != StatusResuming {
		s.Status = StatusResuming
		s.Handle = NewActiveStreamHandle(s.ChatID, job.MessageID, "")
		s.Messages = append(s.Messages, UIMessage{
			ID:          s.provisionalID(job.MessageID),
			Role:        domain.RoleAssistant,
			Provisional: true,
		})
	}

	if s.Handle == nil {
		s.Handle = NewActiveStreamHandle(s.ChatID, job.MessageID, "")
	}
	if s.Handle.MessageID == "" {
		s.Handle.MessageID = job.MessageID
	}
	s.Handle.Content = job.Content
	s.Handle.Reasoning = job.Reasoning
	s.Handle.lastEventAt = time.Now()

	msg := s.provisionalMessage()
	if msg == nil {
		s.Messages = append(s.Messages, UIMessage{
			ID:          s.provisionalID(job.MessageID),
			Role:        domain.RoleAssistant,
			Provisional: true,
		})
		msg = &s.Messages[len(s.Messages)-1]
	}
	setParts(msg, job.Content, job.Reasoning, job.Status == domain.StreamStatusStreaming)

	if job.Status == domain.StreamStatusStreaming {
		s.Status = StatusStreaming
	}
}

// finalize models the job disappearing or ending: reasoning blocks still in
// progress flip to done, the handle is cleared, and the durable feed takes
// over as the source of truth.
func (s *ChatState) finalize(job *domain.JobStatus) {
	if s.Status == StatusStreaming || s.Status == StatusSubmitted || s.Status == StatusResuming {
		for i := range s.Messages {
			for j := range s.Messages[i].Parts {
				if s.Messages[i].Parts[j].Kind == PartReasoning {
					s.Messages[i].Parts[j].State = PartStateDone
				}
			}
		}
		if job != nil && job.Status == domain.StreamStatusError {
			// The error token's text is ephemeral; keep whatever content
			// arrived and surface the failure.
			s.Status = StatusError
			s.Err = domain.ErrGenerationFailed
		} else {
			s.Status = StatusReady
		}
		s.Handle = nil
	}
}

// ApplyMessages folds one durable-feed tick into the state.
//
// Messages already confirmed by the durable feed are replaced wholesale.
// Trailing locally created messages the feed has not delivered yet survive:
// the optimistic user message stays appended until its persisted copy shows
// up, and when the feed's newest message is the assistant reply that was
// streamed, it is re-keyed onto the provisional message's id so the rendered
// element survives the hand-off. While the job is live its feed stays
// authoritative for the reply's content; once it has ended the durable copy
// is authoritative and the message stops being provisional.
//
// Re-keying does not depend on the handle: the feeds are independent, and
// the saved message may arrive after the job feed already finalized.
func (s *ChatState) ApplyMessages(msgs []domain.Message) {
	s.dropExpiredHandle()

	pending := s.pendingTail(msgs)
	ui := toUIMessages(msgs)

	for _, p := range pending {
		if p.Role == domain.RoleAssistant && len(ui) > 0 && ui[len(ui)-1].Role == domain.RoleAssistant {
			last := &ui[len(ui)-1]
			last.ID = p.ID
			if s.Handle != nil {
				last.Parts = p.Parts
				last.Provisional = true
			}
			continue
		}
		ui = append(ui, p)
	}
	s.Messages = ui
}

// pendingTail returns the trailing locally created messages that durable has
// not delivered yet, oldest first.
func (s *ChatState) pendingTail(durable []domain.Message) []UIMessage {
	byID := make(map[string]bool, len(durable))
	var lastUserContent string
	for _, m := range durable {
		byID[m.MessageID] = true
		if m.Role == domain.RoleUser {
			lastUserContent = m.Content
		}
	}

	start := len(s.Messages)
	for start > 0 {
		m := s.Messages[start-1]
		if !m.Provisional || byID[m.ID] {
			break
		}
		if m.Role == domain.RoleUser && m.Text() == lastUserContent {
			// The optimistic send's persisted copy has arrived.
			break
		}
		start--
	}
	return s.Messages[start:]
}

// provisionalMessage returns the trailing provisional assistant message, if
// any.
func (s *ChatState) provisionalMessage() *UIMessage {
	if len(s.Messages) == 0 {
		return nil
	}
	last := &s.Messages[len(s.Messages)-1]
	if last.Provisional && last.Role == domain.RoleAssistant {
		return last
	}
	return nil
}

// dropExpiredHandle finalizes a handle whose stream stopped producing events
// long ago. Without this, a handle from a dead job would suppress durable
// refreshes forever if no further job tick arrived.
func (s *ChatState) dropExpiredHandle() {
	if s.Handle != nil && s.Handle.Expired(time.Now()) {
		s.finalize(nil)
	}
}

func (s *ChatState) provisionalID(messageID string) string {
	if messageID != "" {
		return messageID
	}
	return "local_" + uuid.New().String()[:8]
}

// setParts rewrites the message's parts from accumulated job content.
// Reasoning renders before text, matching emission order.
func setParts(msg *UIMessage, content, reasoning string, streaming bool) {
	parts := make([]Part, 0, 2)
	if reasoning != "" {
		state := PartStateDone
		if streaming {
			state = PartStateStreaming
		}
		parts = append(parts, Part{Kind: PartReasoning, Text: reasoning, State: state})
	}
	if content != "" || len(parts) == 0 {
		parts = append(parts, Part{Kind: PartText, Text: content})
	}
	msg.Parts = parts
}

func toUIMessages(msgs []domain.Message) []UIMessage {
	ui := make([]UIMessage, 0, len(msgs))
	for _, m := range msgs {
		var parts []Part
		if m.Reasoning != "" {
			parts = append(parts, Part{Kind: PartReasoning, Text: m.Reasoning, State: PartStateDone})
		}
		parts = append(parts, Part{Kind: PartText, Text: m.Content})
		ui = append(ui, UIMessage{
			ID:    m.MessageID,
			Role:  m.Role,
			Parts: parts,
		})
	}
	return ui
}
