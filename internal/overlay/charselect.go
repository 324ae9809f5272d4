package overlay

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ellery/kiln/internal/pane"
	"github.com/mitchellh/go-homedir"
	"github.com/sahilm/fuzzy"
	"golang.org/x/text/unicode/runenames"
)

// RecentChar is one remembered pick, persisted as JSON. Frecency grows by
// one on each pick and does not decay.
type RecentChar struct {
	Glyph    string  `json:"glyph"`
	Name     string  `json:"name"`
	Frecency float64 `json:"frecency"`
}

// recentsFileName under the data dir.
const recentsFileName = "recent-chars.json"

// maxRecents bounds the persisted list.
const maxRecents = 128

// RecentsPath resolves the persisted list location.
func RecentsPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".kiln", recentsFileName), nil
}

// LoadRecents reads the persisted list. A missing file is simply an empty
// list.
func LoadRecents(path string) []RecentChar {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("charselect: read recents: %v", err)
		}
		return nil
	}
	var out []RecentChar
	if err := json.Unmarshal(data, &out); err != nil {
		log.Printf("charselect: parse recents: %v", err)
		return nil
	}
	return out
}

// SaveRecents writes the list, creating the directory as needed.
func SaveRecents(path string, recents []RecentChar) error {
	if len(recents) > maxRecents {
		recents = recents[:maxRecents]
	}
	data, err := json.MarshalIndent(recents, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// candidate ranges scanned for name search. Bounded so building the table
// stays cheap.
var charRanges = [][2]rune{
	{0x0020, 0x007e}, // ascii
	{0x00a1, 0x00ff}, // latin-1 supplement
	{0x2000, 0x206f}, // general punctuation
	{0x2190, 0x21ff}, // arrows
	{0x2200, 0x22ff}, // mathematical operators
	{0x2500, 0x259f}, // box drawing and blocks
	{0x25a0, 0x25ff}, // geometric shapes
	{0x2600, 0x27bf}, // misc symbols and dingbats
	{0x1f300, 0x1f5ff}, // misc symbols and pictographs
	{0x1f600, 0x1f64f}, // emoticons
	{0x1f900, 0x1f9ff}, // supplemental symbols
}

// CharEntry is one searchable character.
type CharEntry struct {
	Glyph string
	Name  string
}

var charTable []CharEntry

// buildCharTable builds the searchable table lazily.
func buildCharTable() []CharEntry {
	if charTable != nil {
		return charTable
	}
	for _, rng := range charRanges {
		for r := rng[0]; r <= rng[1]; r++ {
			name := runenames.Name(r)
			if name == "" || strings.HasPrefix(name, "<") {
				continue
			}
			charTable = append(charTable, CharEntry{Glyph: string(r), Name: name})
		}
	}
	return charTable
}

// charNames adapts the table for fuzzy matching.
type charNames []CharEntry

func (c charNames) String(i int) string { return c[i].Name }
func (c charNames) Len() int            { return len(c) }

// CharSelect lets the user pick a character by fuzzy name search, seeded
// with frecency-ranked recents. The pick is written to the wrapped pane.
type CharSelect struct {
	Wrapper

	recentsPath string
	recents     []RecentChar

	query   string
	results []CharEntry

	Done bool
}

// NewCharSelect loads the recents and presents them first.
func NewCharSelect(inner pane.Pane, recentsPath string) *CharSelect {
	cs := &CharSelect{
		Wrapper:     Wrapper{Pane: inner},
		recentsPath: recentsPath,
		recents:     LoadRecents(recentsPath),
	}
	cs.updateResults()
	return cs
}

// Query returns the current search text.
func (cs *CharSelect) Query() string { return cs.query }

// Results returns the ranked candidates.
func (cs *CharSelect) Results() []CharEntry { return cs.results }

// SetQuery re-runs the search.
func (cs *CharSelect) SetQuery(q string) {
	cs.query = q
	cs.updateResults()
}

func (cs *CharSelect) updateResults() {
	if cs.query == "" {
		// Frecency order while there is no query
		sorted := make([]RecentChar, len(cs.recents))
		copy(sorted, cs.recents)
		sort.Slice(sorted, func(a, b int) bool {
			return sorted[a].Frecency > sorted[b].Frecency
		})
		cs.results = cs.results[:0]
		for _, r := range sorted {
			cs.results = append(cs.results, CharEntry{Glyph: r.Glyph, Name: r.Name})
		}
		return
	}

	table := buildCharTable()
	ranked := fuzzy.FindFrom(strings.ToUpper(cs.query), charNames(table))
	cs.results = cs.results[:0]
	for i, m := range ranked {
		if i >= 50 {
			break
		}
		cs.results = append(cs.results, table[m.Index])
	}
}

// Pick sends the chosen glyph to the pane and records the use.
func (cs *CharSelect) Pick(entry CharEntry) {
	if err := cs.Pane.SendText(entry.Glyph); err != nil {
		log.Printf("charselect: send: %v", err)
	}

	found := false
	for i := range cs.recents {
		if cs.recents[i].Glyph == entry.Glyph {
			cs.recents[i].Frecency += 1
			found = true
			break
		}
	}
	if !found {
		cs.recents = append(cs.recents, RecentChar{
			Glyph:    entry.Glyph,
			Name:     entry.Name,
			Frecency: 1,
		})
	}
	if cs.recentsPath != "" {
		if err := SaveRecents(cs.recentsPath, cs.recents); err != nil {
			log.Printf("charselect: save recents: %v", err)
		}
	}
	cs.Done = true
}
