// Package overlay implements panes that wrap another pane: they interpose
// on the view-side methods (lines, cursor, change tracking) while
// forwarding writes to the wrapped pane. Overlays stack per pane.
package overlay

import (
	"sync"

	"github.com/ellery/kiln/internal/pane"
)

// Wrapper is the base of every overlay: it embeds the inner pane so all
// capabilities delegate by default, and overlays override the few methods
// they change.
type Wrapper struct {
	pane.Pane
}

// Inner returns the wrapped pane.
func (w *Wrapper) Inner() pane.Pane { return w.Pane }

// Stack manages the overlays attached to one pane. The top overlay is what
// the window renders and feeds input to.
type Stack struct {
	mu    sync.Mutex
	base  pane.Pane
	stack []pane.Pane
}

// NewStack starts with a bare pane.
func NewStack(base pane.Pane) *Stack {
	return &Stack{base: base}
}

// Top returns the pane the window should present.
func (s *Stack) Top() pane.Pane {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return s.base
	}
	return s.stack[len(s.stack)-1]
}

// Push installs an overlay over the current top.
func (s *Stack) Push(p pane.Pane) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = append(s.stack, p)
}

// Pop removes the top overlay, returning whether one was present.
func (s *Stack) Pop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return false
	}
	s.stack = s.stack[:len(s.stack)-1]
	return true
}

// Depth returns the number of active overlays.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stack)
}
