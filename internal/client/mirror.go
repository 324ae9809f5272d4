package client

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/rangeset"
	"github.com/ellery/kiln/internal/wire"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const (
	// BasePollInterval is the poll cadence while the session is active.
	BasePollInterval = 20 * time.Millisecond
	// MaxPollInterval caps the exponential backoff on idle sessions.
	MaxPollInterval = 30 * time.Second
	// PredictionMinRTT gates predictive echo: below this latency the real
	// response arrives fast enough that predictions only add flicker.
	PredictionMinRTT = 100 * time.Millisecond
	// TardyGrace is the floor before a quiet connection is called tardy.
	TardyGrace = 3 * time.Second
	// fetchRate limits how aggressively missing lines are requested.
	fetchRate = 100 // lines per second
	// fetchBurst allows a viewport-sized burst.
	fetchBurst = 1000

	// passwordHint suppresses predictions on lines that look like password
	// prompts. The check is a bare substring on purpose; anything cleverer
	// belongs to the application.
	passwordHint = "sword"
)

// EntryState is the freshness of one mirrored row.
type EntryState uint8

const (
	// StateLine is fresh content.
	StateLine EntryState = iota
	// StateDirty is fetched content not yet repainted.
	StateDirty
	// StateFetching means a fetch is in flight and no content is held.
	StateFetching
	// StateDirtyAndFetching holds stale content while a fetch is in flight.
	StateDirtyAndFetching
	// StateStale is old content for a row outside the viewport.
	StateStale
)

// LineEntry tracks one stable row in the mirror. Fetch tags carry the
// Instant the fetch started; a late response with a different tag is
// ignored.
type LineEntry struct {
	State EntryState
	Line  *cell.Line
	Fetch time.Time
}

// Sender is the outbound half the mirror drives. The production
// implementation sends PDUs through a Client; tests substitute a recorder.
type Sender interface {
	SendKeyDown(paneID uint64, data []byte, serial wire.InputSerial)
	SendPaste(paneID uint64, data string, serial wire.InputSerial)
	FetchLines(paneID uint64, rows *rangeset.RangeSet, tag time.Time)
	PollChanges(paneID uint64, force wire.InputSerial)
}

// Mirror is the client-side shadow of one remote pane: a bounded cache of
// line entries, the remote cursor, and the predictive-echo machinery.
type Mirror struct {
	paneID uint64
	sender Sender

	mu    sync.Mutex
	lines *lru.Cache[int64, *LineEntry]

	dims         wire.RenderDimensions
	cursor       wire.CursorPosition
	title        string
	workingDir   string
	mouseGrabbed bool

	inputSerial wire.InputSerial
	rtt         time.Duration

	pollInterval time.Duration

	limiter *rate.Limiter

	lastSend time.Time
	lastRecv time.Time

	lastTardyInvalidate time.Time

	predictedRows map[int64]struct{}

	// now is injectable for tests.
	now func() time.Time

	seqno uint64
}

// NewMirror builds a mirror bounded by the configured scrollback depth.
func NewMirror(paneID uint64, sender Sender, scrollbackDepth int) *Mirror {
	if scrollbackDepth < 1 {
		scrollbackDepth = 3500
	}
	cache, err := lru.New[int64, *LineEntry](scrollbackDepth)
	if err != nil {
		// Only reachable with a non-positive size
		panic(fmt.Sprintf("mirror lru: %v", err))
	}
	return &Mirror{
		paneID:        paneID,
		sender:        sender,
		lines:         cache,
		pollInterval:  BasePollInterval,
		limiter:       rate.NewLimiter(rate.Limit(fetchRate), fetchBurst),
		predictedRows: make(map[int64]struct{}),
		now:           time.Now,
	}
}

// PaneID returns the remote pane this mirror shadows.
func (m *Mirror) PaneID() uint64 { return m.paneID }

// Title returns the mirrored title.
func (m *Mirror) Title() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.title
}

// WorkingDir returns the mirrored working directory.
func (m *Mirror) WorkingDir() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workingDir
}

// Dimensions returns the mirrored geometry.
func (m *Mirror) Dimensions() wire.RenderDimensions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dims
}

// Cursor returns the mirrored (possibly predicted) cursor.
func (m *Mirror) Cursor() wire.CursorPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// MouseGrabbed reports the remote application's mouse interest.
func (m *Mirror) MouseGrabbed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mouseGrabbed
}

// SeqNo returns the last seqno the server reported.
func (m *Mirror) SeqNo() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seqno
}

// RTT returns the measured round-trip latency.
func (m *Mirror) RTT() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rtt
}

// PollInterval returns the current poll cadence.
func (m *Mirror) PollInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollInterval
}

// viewport returns the stable range currently visible.
func (m *Mirror) viewport() rangeset.Range {
	return rangeset.Range{
		Start: m.dims.ViewportStart,
		End:   m.dims.ViewportStart + m.dims.Rows,
	}
}

// Viewport exposes the visible stable range.
func (m *Mirror) Viewport() rangeset.Range {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewport()
}

// GetLine returns the cached line and state for a stable row. A row never
// seen (or evicted) returns nil and StateFetching is NOT implied.
func (m *Mirror) GetLine(row int64) (*cell.Line, EntryState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.lines.Get(row)
	if !ok {
		return nil, StateLine, false
	}
	return entry.Line, entry.State, true
}

// --- Input and prediction ---

// SendKey transmits user input, assigning a fresh input serial and applying
// a local prediction when the link is slow enough to warrant one.
func (m *Mirror) SendKey(data string) {
	m.mu.Lock()
	m.inputSerial = wire.NextInputSerial(m.inputSerial)
	serial := m.inputSerial
	m.pollInterval = BasePollInterval
	m.lastSend = m.now()

	if m.shouldPredict() {
		m.applyPrediction(data)
	}
	m.mu.Unlock()

	m.sender.SendKeyDown(m.paneID, []byte(data), serial)
}

// SendPaste transmits pasted text. Pastes replace whole stretches of the
// line, so the prediction is a coarse line overwrite of the first pasted
// line.
func (m *Mirror) SendPaste(data string) {
	m.mu.Lock()
	m.inputSerial = wire.NextInputSerial(m.inputSerial)
	serial := m.inputSerial
	m.pollInterval = BasePollInterval
	m.lastSend = m.now()

	if m.shouldPredict() {
		first := data
		if i := strings.IndexByte(first, '\n'); i >= 0 {
			first = first[:i]
		}
		m.applyPrediction(first)
	}
	m.mu.Unlock()

	m.sender.SendPaste(m.paneID, data, serial)
}

// shouldPredict gates prediction on measured latency and the password
// heuristic. Caller holds the lock.
func (m *Mirror) shouldPredict() bool {
	if m.rtt <= PredictionMinRTT {
		return false
	}
	row := m.dims.ViewportStart + m.cursor.Y
	if entry, ok := m.lines.Get(row); ok && entry.Line != nil {
		if strings.Contains(entry.Line.String(), passwordHint) {
			return false
		}
	}
	return true
}

// applyPrediction performs the logical edit the input would cause on the
// mirror's own copy, styled so the renderer can distinguish it. Caller
// holds the lock.
func (m *Mirror) applyPrediction(data string) {
	row := m.dims.ViewportStart + m.cursor.Y
	entry, ok := m.lines.Get(row)
	if !ok || entry.Line == nil {
		return
	}
	line := entry.Line.Clone()

	var predicted cell.Attributes
	predicted.SetUnderline(cell.UnderlineDouble)

	x := int(m.cursor.X)
	for _, r := range data {
		switch r {
		case '\b', 0x7f:
			if x > 0 {
				x--
				line.SetCell(x, cell.Blank(predicted), line.SeqNo()+1)
			}
		case '\r', '\n':
			// Movement only; the server echo will reveal the real effect
		default:
			if r < 0x20 {
				continue
			}
			if x < line.Width() {
				c := cell.New(string(r), predicted)
				line.SetCell(x, c, line.SeqNo()+1)
				x += c.Width
			}
		}
	}

	entry.Line = line
	m.lines.Add(row, entry)
	m.predictedRows[row] = struct{}{}
	m.cursor.X = int64(x)
}

// HasPrediction reports whether a row currently shows predicted content.
func (m *Mirror) HasPrediction(row int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.predictedRows[row]
	return ok
}

// --- Applying server responses ---

// ApplyRenderChanges folds a render-changes response into the mirror:
// measure RTT, accept or reject the server cursor by input serial, install
// bonus lines, and kick fetches for still-dirty viewport rows.
func (m *Mirror) ApplyRenderChanges(resp *wire.GetPaneRenderChangesResponse) {
	m.mu.Lock()

	m.lastRecv = m.now()
	if resp.InputSerial != 0 {
		m.rtt = resp.InputSerial.Elapsed()
	}
	m.pollInterval = BasePollInterval

	// Cursor updates are serialized with the input stream: a response that
	// predates our latest input must not wiggle the cursor backwards.
	if resp.InputSerial == 0 || resp.InputSerial >= m.inputSerial {
		m.cursor = resp.Cursor
	}

	m.dims = resp.Dims
	m.title = resp.Title
	if resp.WorkingDir != "" {
		m.workingDir = resp.WorkingDir
	}
	m.mouseGrabbed = resp.MouseGrabbed
	m.seqno = resp.SeqNo

	dirty := rangeset.New()
	if resp.DirtyLines != nil {
		dirty = resp.DirtyLines.Clone()
	}

	// Bonus lines land as fresh content; later entries for the same row
	// win (the cursor row may arrive twice by design)
	for _, bl := range resp.BonusLines {
		m.lines.Add(bl.Row, &LineEntry{State: StateLine, Line: bl.Line})
		delete(m.predictedRows, bl.Row)
		dirty.Remove(bl.Row)
	}

	// Remaining dirty rows: fetch what is visible, demote the rest
	viewport := m.viewport()
	fetchSet := rangeset.New()
	tag := m.now()
	for _, row := range dirty.Values() {
		if viewport.Contains(row) {
			if m.admitFetch(row, tag) {
				fetchSet.Add(row)
			}
		} else {
			if entry, ok := m.lines.Get(row); ok {
				entry.State = StateStale
			}
		}
	}
	m.mu.Unlock()

	if !fetchSet.IsEmpty() {
		m.sender.FetchLines(m.paneID, fetchSet, tag)
	}
}

// admitFetch transitions a dirty viewport row toward Fetching, subject to
// the rate limiter. Caller holds the lock.
func (m *Mirror) admitFetch(row int64, tag time.Time) bool {
	entry, ok := m.lines.Get(row)
	if ok {
		switch entry.State {
		case StateFetching, StateDirtyAndFetching:
			// Already in flight
			return false
		}
	}
	if !m.limiter.Allow() {
		return false
	}
	if !ok {
		m.lines.Add(row, &LineEntry{State: StateFetching, Fetch: tag})
		return true
	}
	if entry.Line != nil {
		entry.State = StateDirtyAndFetching
	} else {
		entry.State = StateFetching
	}
	entry.Fetch = tag
	return true
}

// NoteViewportEntered promotes stale rows that scrolled back into view to
// DirtyAndFetching and requests their content.
func (m *Mirror) NoteViewportEntered() {
	m.mu.Lock()
	viewport := m.viewport()
	fetchSet := rangeset.New()
	tag := m.now()
	for row := viewport.Start; row < viewport.End; row++ {
		entry, ok := m.lines.Get(row)
		if !ok || entry.State != StateStale {
			continue
		}
		if !m.limiter.Allow() {
			break
		}
		entry.State = StateDirtyAndFetching
		entry.Fetch = tag
		fetchSet.Add(row)
	}
	m.mu.Unlock()

	if !fetchSet.IsEmpty() {
		m.sender.FetchLines(m.paneID, fetchSet, tag)
	}
}

// ApplyFetchedLines resolves an in-flight fetch. Rows whose tag does not
// match the current entry (a late response to a dropped request) are
// ignored.
func (m *Mirror) ApplyFetchedLines(resp *wire.GetLinesResponse, tag time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastRecv = m.now()
	for _, bl := range resp.Lines {
		entry, ok := m.lines.Get(bl.Row)
		if !ok {
			continue
		}
		switch entry.State {
		case StateFetching, StateDirtyAndFetching:
			if !entry.Fetch.Equal(tag) {
				continue
			}
			entry.State = StateDirty
			entry.Line = bl.Line
			entry.Fetch = time.Time{}
			delete(m.predictedRows, bl.Row)
		}
	}
}

// FetchFailed drops in-flight entries for a failed batch so a later poll
// can re-request them.
func (m *Mirror) FetchFailed(rows *rangeset.RangeSet, tag time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows.Values() {
		entry, ok := m.lines.Get(row)
		if !ok || !entry.Fetch.Equal(tag) {
			continue
		}
		m.lines.Remove(row)
	}
}

// Rendered acknowledges that the renderer consumed a Dirty row.
func (m *Mirror) Rendered(row int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.lines.Get(row); ok && entry.State == StateDirty {
		entry.State = StateLine
	}
}

// --- Polling and tardiness ---

// PollTick issues a poll and backs the interval off; activity resets it.
func (m *Mirror) PollTick() time.Duration {
	m.mu.Lock()
	m.lastSend = m.now()
	next := m.pollInterval * 2
	if next > MaxPollInterval {
		next = MaxPollInterval
	}
	m.pollInterval = next
	m.mu.Unlock()

	m.sender.PollChanges(m.paneID, 0)
	return next
}

// IsTardy reports whether the connection looks stalled: we sent after we
// last heard back and the silence exceeds max(pollInterval, grace).
func (m *Mirror) IsTardy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSend.IsZero() || !m.lastSend.After(m.lastRecv) {
		return false
	}
	grace := m.pollInterval
	if grace < TardyGrace {
		grace = TardyGrace
	}
	return m.now().Sub(m.lastRecv) > grace
}

// TardyStatus renders the right-aligned overlay string for the top
// viewport row.
func (m *Mirror) TardyStatus(width int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	elapsed := m.now().Sub(m.lastRecv)
	msg := fmt.Sprintf("⚠ no response %s", humanize.RelTime(m.now().Add(-elapsed), m.now(), "ago", ""))
	if len(msg) >= width {
		return msg
	}
	return strings.Repeat(" ", width-len(msg)) + msg
}

// ShouldInvalidateTardy rate-limits tardy repaints to once per second.
func (m *Mirror) ShouldInvalidateTardy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.now().Sub(m.lastTardyInvalidate) < time.Second {
		return false
	}
	m.lastTardyInvalidate = m.now()
	return true
}

// SetNowFunc injects a clock for tests.
func (m *Mirror) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetRTTForTesting primes the measured latency.
func (m *Mirror) SetRTTForTesting(rtt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rtt = rtt
}

// debugState logs the entry states around the viewport; handy when the
// state machine misbehaves in the field.
func (m *Mirror) debugState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	viewport := m.viewport()
	for row := viewport.Start; row < viewport.End; row++ {
		if entry, ok := m.lines.Get(row); ok {
			log.Printf("mirror pane %d row %d state %d", m.paneID, row, entry.State)
		}
	}
}
