// Package main provides a terminal chat client for the tailstream server.
//
// It merges independent feeds into one rendered transcript: the durable
// message list polled over HTTP, job-status snapshots pushed over WebSocket,
// and the resumable SSE token tail, with streamed text revealed at a paced
// cadence.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/tailstream/internal/client"
	"github.com/xiaot623/tailstream/internal/domain"
)

const (
	frameInterval    = time.Second / 60
	messagesInterval = 1 * time.Second
	statusInterval   = 500 * time.Millisecond
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	reasoningStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle    = lipgloss.NewStyle().Faint(true)
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "Server base URL")
	chatID := flag.String("chat", "", "Chat ID (required)")
	userID := flag.String("user", "cli", "User ID")
	reasoning := flag.String("reasoning", "", "Reasoning effort (low, medium, high)")
	flag.Parse()

	if *chatID == "" {
		fmt.Fprintln(os.Stderr, "Usage: tailstream -chat <chat_id> [-server URL] [-user ID]")
		os.Exit(1)
	}

	m := newModel(*serverURL, *chatID, *userID, *reasoning)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

// Feed messages delivered into the update loop.
type (
	messagesMsg  []domain.Message
	jobStatusMsg struct {
		job      *domain.JobStatus
		fromFeed bool
	}
	sendResultMsg struct {
		resp *domain.SendMessageResponse
		err  error
	}
	tailEventMsg    struct{ event domain.StreamEvent }
	tailClosedMsg   struct{}
	frameTickMsg    time.Time
	messagesTickMsg time.Time
	statusTickMsg   time.Time
	wsClosedMsg     struct{ err error }
)

type model struct {
	api    *client.API
	state  *client.ChatState
	server string
	userID string
	opts   domain.GenerationOptions

	// reveals paces the display of each assistant message, keyed by the
	// rendered message id.
	reveals map[string]*client.Reveal

	jobFeed <-chan *domain.JobStatus
	wsStop  context.CancelFunc

	// Live token tail over the resumable SSE relay. The accumulated text is
	// folded into ChatState as synthetic job snapshots, so the reconciler
	// treats it like any other job-feed tick.
	tailCh        chan domain.StreamEvent
	tailCancel    context.CancelFunc
	tailMsgID     string
	tailText      strings.Builder
	tailReasoning strings.Builder

	input   string
	sending bool
	width   int
	err     error
}

func newModel(serverURL, chatID, userID, reasoning string) *model {
	jobFeed, wsStop := dialJobFeed(serverURL, chatID)
	return &model{
		api:     client.NewAPI(serverURL),
		state:   client.NewChatState(chatID),
		server:  serverURL,
		userID:  userID,
		opts:    domain.GenerationOptions{ReasoningEffort: reasoning},
		reveals: make(map[string]*client.Reveal),
		jobFeed: jobFeed,
		wsStop:  wsStop,
		width:   80,
	}
}

// dialJobFeed connects to the server's WebSocket job feed and pumps decoded
// snapshots into a channel. A nil channel is returned when the dial fails;
// the client then relies on status polling alone.
func dialJobFeed(serverURL, chatID string) (<-chan *domain.JobStatus, context.CancelFunc) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, func() {}
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	wsURL := fmt.Sprintf("%s://%s/ws?chat_id=%s", scheme, u.Host, url.QueryEscape(chatID))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan *domain.JobStatus, 16)
	go func() {
		defer close(ch)
		defer conn.Close()
		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var job domain.JobStatus
			if err := json.Unmarshal(data, &job); err != nil {
				continue
			}
			select {
			case ch <- &job:
			default:
				// Drop stale frame; a newer snapshot follows.
			}
		}
	}()
	return ch, cancel
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchMessages(),
		m.fetchJobStatus(),
		m.waitJobFeed(),
		tickCmd(frameInterval, func(t time.Time) tea.Msg { return frameTickMsg(t) }),
		tickCmd(messagesInterval, func(t time.Time) tea.Msg { return messagesTickMsg(t) }),
		tickCmd(statusInterval, func(t time.Time) tea.Msg { return statusTickMsg(t) }),
	)
}

func tickCmd(d time.Duration, wrap func(time.Time) tea.Msg) tea.Cmd {
	return tea.Tick(d, wrap)
}

func (m *model) fetchMessages() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		msgs, err := m.api.GetMessages(ctx, m.state.ChatID)
		if err != nil {
			return messagesMsg(nil)
		}
		return messagesMsg(msgs)
	}
}

func (m *model) fetchJobStatus() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		job, err := m.api.GetJobStatus(ctx, m.state.ChatID)
		if err != nil {
			// Transient fetch failure says nothing about the job.
			return nil
		}
		return jobStatusMsg{job: job}
	}
}

// startTail opens a relay tail for the active stream, resuming from lastID.
// At most one tail runs at a time.
func (m *model) startTail(messageID string, lastID int64) tea.Cmd {
	if m.tailCh != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan domain.StreamEvent, 64)
	m.tailCh = ch
	m.tailCancel = cancel
	m.tailMsgID = messageID
	m.tailText.Reset()
	m.tailReasoning.Reset()
	// Resuming mid-stream: the relay only replays from the cursor, so the
	// accumulators start from what the handle already saw.
	if lastID > 0 && m.state.Handle != nil && m.state.Handle.MessageID == messageID {
		m.tailText.WriteString(m.state.Handle.Content)
		m.tailReasoning.WriteString(m.state.Handle.Reasoning)
	}

	consumer := client.NewStreamConsumer(m.server, lastID)
	chatID := m.state.ChatID
	go func() {
		defer close(ch)
		consumer.Run(ctx, chatID, func(ev domain.StreamEvent) error {
			select {
			case ch <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return m.waitTail()
}

func (m *model) waitTail() tea.Cmd {
	ch := m.tailCh
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return tailClosedMsg{}
		}
		return tailEventMsg{event: ev}
	}
}

func (m *model) stopTail() {
	if m.tailCancel != nil {
		m.tailCancel()
	}
}

func (m *model) waitJobFeed() tea.Cmd {
	if m.jobFeed == nil {
		return nil
	}
	feed := m.jobFeed
	return func() tea.Msg {
		job, ok := <-feed
		if !ok {
			return wsClosedMsg{}
		}
		return jobStatusMsg{job: job, fromFeed: true}
	}
}

func (m *model) send(content string) tea.Cmd {
	req := domain.SendMessageRequest{
		ChatID:  m.state.ChatID,
		UserID:  m.userID,
		Content: content,
		Options: m.opts,
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		resp, err := m.api.SendMessage(ctx, m.state.ChatID, req)
		return sendResultMsg{resp: resp, err: err}
	}
}

func (m *model) cancelStream() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.api.CancelStream(ctx, m.state.ChatID)
		return nil
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case messagesMsg:
		if msg != nil {
			m.state.ApplyMessages([]domain.Message(msg))
		}
		return m, nil

	case jobStatusMsg:
		m.state.ApplyJobStatus(msg.job)
		m.err = m.state.Err
		var cmds []tea.Cmd
		if msg.fromFeed {
			cmds = append(cmds, m.waitJobFeed())
		}
		// A live job with no tail running is a resumption: pick up the
		// token stream from the cursor.
		if msg.job != nil && !msg.job.Status.IsTerminal() && m.tailCh == nil {
			cmds = append(cmds, m.startTail(msg.job.MessageID, m.tailCursor()))
		}
		return m, tea.Batch(cmds...)

	case sendResultMsg:
		m.sending = false
		if msg.err != nil {
			m.state.SendFailed(msg.err)
			m.err = msg.err
			return m, nil
		}
		m.state.SendAccepted(msg.resp)
		return m, m.startTail(msg.resp.MessageID, 0)

	case tailEventMsg:
		return m, m.handleTailEvent(msg.event)

	case tailClosedMsg:
		m.tailCh = nil
		m.tailCancel = nil
		return m, nil

	case wsClosedMsg:
		m.jobFeed = nil
		return m, nil

	case frameTickMsg:
		m.advanceReveals()
		return m, tickCmd(frameInterval, func(t time.Time) tea.Msg { return frameTickMsg(t) })

	case messagesTickMsg:
		return m, tea.Batch(
			m.fetchMessages(),
			tickCmd(messagesInterval, func(t time.Time) tea.Msg { return messagesTickMsg(t) }),
		)

	case statusTickMsg:
		cmds := []tea.Cmd{tickCmd(statusInterval, func(t time.Time) tea.Msg { return statusTickMsg(t) })}
		if m.jobFeed == nil {
			cmds = append(cmds, m.fetchJobStatus())
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.wsStop()
		m.stopTail()
		return m, tea.Quit
	case tea.KeyEsc:
		if m.state.Status == client.StatusStreaming || m.state.Status == client.StatusResuming {
			return m, m.cancelStream()
		}
		return m, nil
	case tea.KeyEnter:
		content := strings.TrimSpace(m.input)
		if content == "" || m.sending {
			return m, nil
		}
		m.input = ""
		m.err = nil
		m.sending = true
		m.state.BeginSend(content)
		return m, m.send(content)
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil
	case tea.KeySpace:
		m.input += " "
		return m, nil
	case tea.KeyRunes:
		m.input += string(msg.Runes)
		return m, nil
	}
	return m, nil
}

// tailCursor resumes from the handle's last seen event id when one exists.
func (m *model) tailCursor() int64 {
	if m.state.Handle != nil {
		return m.state.Handle.LastEventID
	}
	return 0
}

// handleTailEvent folds one relay event into the chat state as a synthetic
// job snapshot, keeping the handle's cursor current for resumes.
func (m *model) handleTailEvent(ev domain.StreamEvent) tea.Cmd {
	if m.state.Handle != nil && ev.ID > 0 {
		m.state.Handle.Touch(ev.ID)
	}

	switch ev.Type {
	case domain.StreamEventText:
		m.tailText.WriteString(ev.Text)
	case domain.StreamEventReasoning:
		m.tailReasoning.WriteString(ev.Text)
	case domain.StreamEventDone:
		m.state.ApplyJobStatus(&domain.JobStatus{
			Status:    domain.StreamStatusCompleted,
			Content:   m.tailText.String(),
			Reasoning: m.tailReasoning.String(),
			MessageID: m.tailMsgID,
		})
		m.stopTail()
		return m.waitTail()
	case domain.StreamEventError:
		m.state.ApplyJobStatus(&domain.JobStatus{
			Status:    domain.StreamStatusError,
			Content:   m.tailText.String(),
			Reasoning: m.tailReasoning.String(),
			MessageID: m.tailMsgID,
		})
		m.err = m.state.Err
		m.stopTail()
		return m.waitTail()
	}

	m.state.ApplyJobStatus(&domain.JobStatus{
		Status:    domain.StreamStatusStreaming,
		Content:   m.tailText.String(),
		Reasoning: m.tailReasoning.String(),
		MessageID: m.tailMsgID,
	})
	return m.waitTail()
}

// advanceReveals feeds the current text of every assistant message into its
// pacer and steps each one frame forward.
func (m *model) advanceReveals() {
	live := make(map[string]bool, len(m.state.Messages))
	for i := range m.state.Messages {
		msg := &m.state.Messages[i]
		if msg.Role != domain.RoleAssistant {
			continue
		}
		live[msg.ID] = true
		r, ok := m.reveals[msg.ID]
		if !ok {
			// History loaded on mount must not type itself out again.
			r = client.NewReveal(!msg.Provisional)
			m.reveals[msg.ID] = r
		}
		r.SetText(msg.Text(), msg.Provisional && m.state.Handle != nil)
		r.Tick()
	}
	for id := range m.reveals {
		if !live[id] {
			delete(m.reveals, id)
		}
	}
}

func (m *model) View() string {
	var b strings.Builder

	b.WriteString(statusStyle.Render(fmt.Sprintf("chat %s [%s]", m.state.ChatID, m.state.Status)))
	b.WriteString("\n\n")

	for i := range m.state.Messages {
		msg := &m.state.Messages[i]
		switch msg.Role {
		case domain.RoleUser:
			b.WriteString(userStyle.Render("you") + "  " + msg.Text())
		case domain.RoleAssistant:
			b.WriteString(assistantStyle.Render("assistant"))
			b.WriteString("\n")
			if reasoning := msg.Reasoning(); reasoning != "" {
				b.WriteString(reasoningStyle.Render(wrap(reasoning, m.width)))
				b.WriteString("\n")
			}
			text := msg.Text()
			if r, ok := m.reveals[msg.ID]; ok {
				text = r.Visible()
			}
			b.WriteString(wrap(text, m.width))
		}
		b.WriteString("\n\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n\n")
	}

	b.WriteString(promptStyle.Render("> ") + m.input)
	b.WriteString(statusStyle.Render("\n\nenter to send, esc to cancel stream, ctrl+c to quit"))
	return b.String()
}

func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}
