package overlay

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ellery/kiln/internal/pane"
	"github.com/ellery/kiln/internal/screen"
)

// DefaultQuickSelectAlphabet orders label characters by home-row reach.
const DefaultQuickSelectAlphabet = "asdfqwerzxcvjklmiuopghtybn"

// DefaultQuickSelectPatterns matches the things people usually want to
// grab: urls, paths, hashes, addresses.
var DefaultQuickSelectPatterns = []string{
	`https?://\S+`,
	`[0-9a-f]{7,40}`,
	`(?:[.\w\-@~]+)?(?:/[.\w\-@]+)+`,
	`[0-9a-fA-F]{2}(?::[0-9a-fA-F]{2}){5}`,
}

// Match is one selectable hit in the visible region.
type Match struct {
	Row    screen.StableRowIndex
	StartX int
	EndX   int
	Text   string
	Label  string
}

// QuickSelect scans the viewport for pattern matches, labels each with a
// short prefix-free code, and fires the action when the user types a label.
type QuickSelect struct {
	Wrapper

	alphabet string
	patterns []*regexp.Regexp

	matches []Match
	typed   string

	// OnSelect receives the chosen text. When it is nil, typing a label
	// only finishes the overlay.
	OnSelect func(text string)
	// Done is signaled when the overlay should pop.
	Done bool
}

// NewQuickSelect builds the overlay and scans the current viewport.
func NewQuickSelect(inner pane.Pane, alphabet string, patternSrc []string, onSelect func(string)) (*QuickSelect, error) {
	if alphabet == "" {
		alphabet = DefaultQuickSelectAlphabet
	}
	if len(patternSrc) == 0 {
		patternSrc = DefaultQuickSelectPatterns
	}
	var patterns []*regexp.Regexp
	for _, src := range patternSrc {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, re)
	}
	q := &QuickSelect{
		Wrapper:  Wrapper{Pane: inner},
		alphabet: alphabet,
		patterns: patterns,
		OnSelect: onSelect,
	}
	q.scan()
	return q, nil
}

// scan collects unique matches over the visible region and labels them.
func (q *QuickSelect) scan() {
	viewport := q.Pane.VisibleRange()
	idxs, lines := q.Pane.GetLines(viewport)

	seen := make(map[string]bool)
	var matches []Match
	for i, line := range lines {
		text := line.String()
		for _, re := range q.patterns {
			for _, m := range re.FindAllStringIndex(text, -1) {
				matched := text[m[0]:m[1]]
				if seen[matched] {
					continue
				}
				seen[matched] = true
				matches = append(matches, Match{
					Row:    idxs[i],
					StartX: len([]rune(text[:m[0]])),
					EndX:   len([]rune(text[:m[1]])),
					Text:   matched,
				})
			}
		}
	}

	// Deterministic label order: top to bottom, left to right
	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Row != matches[b].Row {
			return matches[a].Row < matches[b].Row
		}
		return matches[a].StartX < matches[b].StartX
	})

	labels := ComputeLabels(len(matches), q.alphabet)
	for i := range matches {
		matches[i].Label = labels[i]
	}
	q.matches = matches
}

// Matches returns the labeled matches for rendering.
func (q *QuickSelect) Matches() []Match { return q.matches }

// TypedPrefix returns what the user has typed so far.
func (q *QuickSelect) TypedPrefix() string { return q.typed }

// KeyTyped feeds one label character. A full label fires the action and
// finishes the overlay; a dead-end prefix resets.
func (q *QuickSelect) KeyTyped(r rune) {
	q.typed += string(r)

	prefixAlive := false
	for _, m := range q.matches {
		if m.Label == q.typed {
			if q.OnSelect != nil {
				q.OnSelect(m.Text)
			}
			q.Done = true
			return
		}
		if strings.HasPrefix(m.Label, q.typed) {
			prefixAlive = true
		}
	}
	if !prefixAlive {
		q.typed = ""
	}
}

// ComputeLabels assigns n prefix-free labels from the alphabet: single
// characters while they last, then two-character codes built from the tail
// of the alphabet. With alphabet "abcd" and 8 matches the sequence is
// a, b, ca, cb, da, db, dc, dd.
func ComputeLabels(n int, alphabet string) []string {
	if n <= 0 {
		return nil
	}
	chars := []rune(alphabet)
	k := len(chars)
	if k == 0 {
		return nil
	}

	// Minimal number of characters sacrificed as two-char prefixes
	p := 0
	for ; p <= k; p++ {
		if (k-p)+p*k >= n {
			break
		}
	}
	if p > k {
		p = k // saturated: some matches go unlabeled
	}

	singles := k - p
	if singles > n {
		singles = n
	}

	out := make([]string, 0, n)
	for i := 0; i < singles; i++ {
		out = append(out, string(chars[i]))
	}

	// Distribute doubles: the last prefix fills first, so earlier prefixes
	// keep shorter suffix runs
	doubles := n - singles
	counts := make([]int, p)
	for i := p - 1; i >= 0 && doubles > 0; i-- {
		take := doubles
		if take > k {
			take = k
		}
		counts[i] = take
		doubles -= take
	}

	for i := 0; i < p; i++ {
		prefix := chars[singles+i]
		for j := 0; j < counts[i]; j++ {
			out = append(out, string(prefix)+string(chars[j]))
		}
	}
	return out
}
