package client

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// revealDivisor sets the drain rate: each tick reveals queue/8 more
	// characters, so a 100-character burst drains in about a third of a
	// second at 60 ticks per second.
	revealDivisor = 8

	frameInterval = time.Second / 60
)

// Reveal paces the display of one text field so streamed content appears to
// type out instead of arriving in bursts. SetText may be called while the
// source is still growing; Visible returns the currently revealed prefix.
type Reveal struct {
	mu        sync.Mutex
	text      string
	revealed  int
	streaming bool

	skipInitial bool
	firstSet    bool

	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReveal creates a pacer. With skipInitial set, the first text the field
// receives is shown in full immediately, so content loaded from storage on
// mount does not type itself out again.
func NewReveal(skipInitial bool) *Reveal {
	return &Reveal{
		skipInitial: skipInitial,
		firstSet:    true,
	}
}

// SetText replaces the source text. A shrinking source (chat switch, full
// replacement) snaps rather than animating backwards, and a field leaving
// the streaming state snaps to its full final text.
func (r *Reveal) SetText(text string, streaming bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	first := r.firstSet && text != ""
	if first {
		r.firstSet = false
	}

	r.text = text
	r.streaming = streaming

	switch {
	case len(text) < r.revealed:
		r.revealed = len(text)
	case !streaming:
		r.revealed = len(text)
	case first && r.skipInitial:
		r.revealed = len(text)
	}
}

// Tick advances the revealed prefix by one pacing step and reports whether
// anything is still unrevealed.
func (r *Reveal) Tick() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	queue := len(r.text) - r.revealed
	if queue > 0 {
		step := queue / revealDivisor
		if step < 1 {
			step = 1
		}
		r.revealed += step
	}
	return len(r.text)-r.revealed > 0
}

// Visible returns the currently revealed prefix. The pacer counts bytes, so
// the cut point is rounded back to a rune boundary; multi-byte characters
// never render half-emitted.
func (r *Reveal) Visible() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := r.revealed
	for end > 0 && end < len(r.text) && !utf8.RuneStart(r.text[end]) {
		end--
	}
	return r.text[:end]
}

// Done reports whether the field is fully revealed and no longer streaming.
func (r *Reveal) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revealed == len(r.text) && !r.streaming
}

// Run drives the pacer at frame cadence, calling onFrame with each new
// visible prefix. It returns when the field is fully revealed and no more
// text may arrive, on Stop, or when ctx is cancelled. At most one loop runs
// per field; a second Run while one is active returns immediately. Run is
// restartable after it returns.
func (r *Reveal) Run(ctx context.Context, onFrame func(visible string)) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopped = false
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			pending := r.Tick()
			onFrame(r.Visible())
			if !pending && r.Done() {
				return
			}
		}
	}
}

// Stop halts a running loop and returns once it has exited. Stopping an
// idle pacer is a no-op, and Stop may be called more than once.
func (r *Reveal) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	if !r.stopped {
		close(r.stopCh)
		r.stopped = true
	}
	doneCh := r.doneCh
	r.mu.Unlock()

	<-doneCh
}
