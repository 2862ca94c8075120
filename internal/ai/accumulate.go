package ai

import (
	"strings"
	"sync"
)

// Ticket identifies one accumulation. Chunks carrying an older ticket are
// discarded.
type Ticket uint64

// Accumulator collects the chunks of the in-flight response. Starting a new
// response or aborting invalidates the previous ticket, so chunks that
// arrive late from an abandoned stream never leak into the next one.
type Accumulator struct {
	mu      sync.Mutex
	current Ticket
	live    bool
	buf     strings.Builder
}

// Begin starts a new accumulation and returns its ticket.
func (a *Accumulator) Begin() Ticket {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current++
	a.live = true
	a.buf.Reset()
	return a.current
}

// Append adds chunk if t is still current. It reports whether the chunk
// was kept.
func (a *Accumulator) Append(t Ticket, chunk string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.live || t != a.current {
		return false
	}
	a.buf.WriteString(chunk)
	return true
}

// Text returns the accumulated text if t is still current.
func (a *Accumulator) Text(t Ticket) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.live || t != a.current {
		return "", false
	}
	return a.buf.String(), true
}

// Abort invalidates the current ticket and drops the buffer.
func (a *Accumulator) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live = false
	a.buf.Reset()
}

// Valid reports whether t is the live ticket.
func (a *Accumulator) Valid(t Ticket) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live && t == a.current
}
