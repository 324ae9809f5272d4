package input

import (
	"log"
	"time"
)

// stackEntry is one activation on the key-table stack.
type stackEntry struct {
	activation TableActivation
	// deadline is zero when the activation has no timeout.
	deadline time.Time
}

// KeyTableStack resolves key events against a stack of named key tables
// plus the leader state. One stack exists per window; it is driven from the
// main loop only.
type KeyTableStack struct {
	im    *InputMap
	stack []stackEntry

	leaderActive   bool
	leaderDeadline time.Time

	// now is injectable for tests.
	now func() time.Time
}

// NewKeyTableStack builds a stack over the given input map.
func NewKeyTableStack(im *InputMap) *KeyTableStack {
	return &KeyTableStack{im: im, now: time.Now}
}

// SetNowFunc injects a clock for tests.
func (s *KeyTableStack) SetNowFunc(now func() time.Time) { s.now = now }

// Push activates a named table.
func (s *KeyTableStack) Push(a TableActivation) {
	entry := stackEntry{activation: a}
	if a.Timeout > 0 {
		entry.deadline = s.now().Add(a.Timeout)
	}
	s.stack = append(s.stack, entry)
	log.Printf("input: pushed key table %q (depth %d)", a.Name, len(s.stack))
}

// Pop removes the top activation.
func (s *KeyTableStack) Pop() {
	if len(s.stack) > 0 {
		s.stack = s.stack[:len(s.stack)-1]
	}
}

// Clear removes every activation.
func (s *KeyTableStack) Clear() {
	s.stack = nil
}

// Depth returns the number of active tables.
func (s *KeyTableStack) Depth() int { return len(s.stack) }

// Top returns the name of the top activation, or "".
func (s *KeyTableStack) Top() string {
	if len(s.stack) == 0 {
		return ""
	}
	return s.stack[len(s.stack)-1].activation.Name
}

// LeaderActive reports whether the leader prefix is armed.
func (s *KeyTableStack) LeaderActive() bool {
	if !s.leaderActive {
		return false
	}
	if s.now().After(s.leaderDeadline) {
		s.leaderActive = false
	}
	return s.leaderActive
}

// popExpired drops expired activations from the top of the stack. Expired
// entries below a live one wait their turn, matching lazy expiration.
func (s *KeyTableStack) popExpired() {
	now := s.now()
	for len(s.stack) > 0 {
		top := &s.stack[len(s.stack)-1]
		if top.deadline.IsZero() || top.deadline.After(now) {
			return
		}
		log.Printf("input: key table %q expired", top.activation.Name)
		s.stack = s.stack[:len(s.stack)-1]
	}
}

// Lookup resolves a key event to an assignment:
//
//  1. A leader press arms leader state and swallows the event.
//  2. Expired activations at the top are popped.
//  3. The stack is consulted top to bottom; a hit refreshes a finite
//     timeout. A miss at an until_unknown entry marks it for post-pop; a
//     miss at a prevent_fallback entry yields Nop without consulting
//     further tables.
//  4. If every entry missed, the default table is consulted. While the
//     leader is armed every candidate carries the LEADER bit, so only
//     leader bindings of the default table can match.
//  5. A resolved assignment pops any one_shot entry at the top.
//
// The boolean reports whether the event was consumed by a binding (or
// swallowed); false means the event should be encoded to the pane.
func (s *KeyTableStack) Lookup(key KeyCode, mods Modifiers) (Assignment, bool) {
	// Leader arming
	if s.im.Leader != nil && !s.LeaderActive() {
		if key == s.im.Leader.Key && mods == s.im.Leader.Mods {
			s.leaderActive = true
			s.leaderDeadline = s.now().Add(s.im.Leader.Timeout)
			return Assignment{Kind: ActivateLeader}, true
		}
	}

	s.popExpired()

	effMods := mods
	if s.LeaderActive() {
		effMods |= ModLeader
	}
	cands := candidates(key, effMods)

	var untilUnknownPops []int
	for i := len(s.stack) - 1; i >= 0; i-- {
		entry := &s.stack[i]
		table, ok := s.im.ByName[entry.activation.Name]
		if !ok {
			continue
		}
		for _, combo := range cands {
			if a, hit := table[combo]; hit {
				if entry.activation.Timeout > 0 {
					entry.deadline = s.now().Add(entry.activation.Timeout)
				}
				s.resolve()
				return a, true
			}
		}
		if entry.activation.UntilUnknown {
			untilUnknownPops = append(untilUnknownPops, i)
		}
		if entry.activation.PreventFallback {
			s.popN(untilUnknownPops)
			s.resolve()
			return Assignment{Kind: Nop}, true
		}
	}
	s.popN(untilUnknownPops)

	// The default table is consulted with the effective modifiers: while
	// the leader is armed every candidate carries the LEADER bit, so only
	// leader-registered bindings can match.
	for _, combo := range cands {
		if a, hit := s.im.Default[combo]; hit {
			s.resolve()
			return a, true
		}
	}

	// Unbound: leader state is spent either way
	s.leaderActive = false
	return Assignment{}, false
}

// popN drops the entries marked until_unknown. idxs are stack indices in
// descending order, so each removal leaves the remaining indices valid.
func (s *KeyTableStack) popN(idxs []int) {
	for _, i := range idxs {
		s.stack = append(s.stack[:i], s.stack[i+1:]...)
	}
}

// resolve finalizes a successful lookup: the leader is consumed and any
// one_shot activation at the top never survives a match.
func (s *KeyTableStack) resolve() {
	s.leaderActive = false
	for len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1]
		if !top.activation.OneShot {
			return
		}
		s.stack = s.stack[:len(s.stack)-1]
	}
}
