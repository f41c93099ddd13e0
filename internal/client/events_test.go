package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/tailstream/internal/domain"
)

// sseServer serves canned frames from the supplied cursor, mimicking the
// relay's at-least-once redelivery across reconnects.
func sseServer(t *testing.T, frames []domain.StreamEvent, dropAfter int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastID, _ := strconv.ParseInt(r.URL.Query().Get("last_id"), 10, 64)
		w.Header().Set("Content-Type", "text/event-stream")

		fresh := 0
		for _, ev := range frames {
			// The frame exactly at the cursor is redelivered, exercising
			// the consumer's dedupe.
			if ev.ID != 0 && ev.ID < lastID {
				continue
			}
			fmt.Fprintf(w, "data: {\"type\":%q,\"text\":%q,\"id\":%d}\n\n", ev.Type, ev.Text, ev.ID)
			if ev.ID == 0 || ev.ID > lastID {
				fresh++
			}
			if dropAfter > 0 && fresh >= dropAfter {
				return // connection drop mid-stream
			}
		}
	}))
}

func doneFrames() []domain.StreamEvent {
	return []domain.StreamEvent{
		{Type: domain.StreamEventText, Text: "hel", ID: 1},
		{Type: domain.StreamEventText, Text: "lo", ID: 2},
		{Type: domain.StreamEventDone, ID: 3},
	}
}

func TestConsumeToTerminal(t *testing.T) {
	srv := sseServer(t, doneFrames(), 0)
	defer srv.Close()

	c := NewStreamConsumer(srv.URL, 0)
	var got []domain.StreamEvent
	terminal, err := c.Consume(context.Background(), "c1", func(ev domain.StreamEvent) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, terminal)
	require.Len(t, got, 3)
	assert.Equal(t, "hel", got[0].Text)
	assert.Equal(t, domain.StreamEventDone, got[2].Type)
	assert.Equal(t, int64(3), c.LastID())
}

func TestRunResumesAfterDrop(t *testing.T) {
	srv := sseServer(t, doneFrames(), 1)
	defer srv.Close()

	c := NewStreamConsumer(srv.URL, 0)
	var text strings.Builder
	seen := map[int64]int{}
	err := c.Run(context.Background(), "c1", func(ev domain.StreamEvent) error {
		seen[ev.ID]++
		if ev.Type == domain.StreamEventText {
			text.WriteString(ev.Text)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", text.String(), "no gaps and no duplicated text after resume")
	for id, n := range seen {
		assert.Equal(t, 1, n, "event %d delivered more than once to the handler", id)
	}
}

func TestConsumeDedupesRedelivery(t *testing.T) {
	srv := sseServer(t, doneFrames(), 0)
	defer srv.Close()

	// Cursor already past the first two tokens; the server redelivers at
	// the boundary and the consumer must drop anything at or before it.
	c := NewStreamConsumer(srv.URL, 2)
	var got []domain.StreamEvent
	terminal, err := c.Consume(context.Background(), "c1", func(ev domain.StreamEvent) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, terminal)
	require.Len(t, got, 1)
	assert.Equal(t, domain.StreamEventDone, got[0].Type)
}

func TestConsumeStopsOnHandlerError(t *testing.T) {
	srv := sseServer(t, doneFrames(), 0)
	defer srv.Close()

	c := NewStreamConsumer(srv.URL, 0)
	wantErr := fmt.Errorf("render failed")
	_, err := c.Consume(context.Background(), "c1", func(ev domain.StreamEvent) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestConsumeNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewStreamConsumer(srv.URL, 0)
	_, err := c.Consume(context.Background(), "c1", func(domain.StreamEvent) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}
