package mux

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/ellery/kiln/internal/pane"
)

// WindowID identifies a window within one mux.
type WindowID uint64

// Window owns an ordered list of tabs plus the active-tab index. Windows
// are partitioned into named workspaces for the UI.
type Window struct {
	ID        WindowID
	Tabs      []*Tab
	ActiveTab int
	Workspace string
}

// Active returns the window's active tab, or nil when empty.
func (w *Window) Active() *Tab {
	if w.ActiveTab < 0 || w.ActiveTab >= len(w.Tabs) {
		return nil
	}
	return w.Tabs[w.ActiveTab]
}

// NotificationKind enumerates mux-level events observers subscribe to.
type NotificationKind uint8

const (
	NotifyPaneAdded NotificationKind = iota
	NotifyPaneRemoved
	NotifyPaneOutput
	NotifyWindowCreated
	NotifyWindowRemoved
)

// Notification is one mux event.
type Notification struct {
	Kind   NotificationKind
	Pane   pane.ID
	Window WindowID
}

// ErrUnknownPane is returned for lookups of ids that are not registered.
var ErrUnknownPane = errors.New("unknown pane id")

// ErrUnknownDomain is returned when a named domain is not registered.
var ErrUnknownDomain = errors.New("unknown domain")

// DefaultWorkspace is used when a spawn does not name one.
const DefaultWorkspace = "default"

// Mux is the registry of panes, tabs, windows and domains. It is the one
// process-wide service; all mutation is serialized by its lock and
// enumeration works on snapshots.
type Mux struct {
	mu sync.Mutex

	panes   map[pane.ID]pane.Pane
	tabs    map[TabID]*Tab
	windows map[WindowID]*Window
	domains map[string]Domain

	nextPane   pane.ID
	nextTab    TabID
	nextWindow WindowID

	subscribers []chan Notification
}

// New builds an empty mux.
func New() *Mux {
	return &Mux{
		panes:   make(map[pane.ID]pane.Pane),
		tabs:    make(map[TabID]*Tab),
		windows: make(map[WindowID]*Window),
		domains: make(map[string]Domain),
	}
}

// AddDomain registers a pane factory under its name.
func (m *Mux) AddDomain(d Domain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[d.Name()] = d
}

// GetDomain looks up a registered domain.
func (m *Mux) GetDomain(name string) (Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, name)
	}
	return d, nil
}

// IterDomains snapshots the registered domains.
func (m *Mux) IterDomains() []Domain {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Domain, 0, len(m.domains))
	for _, d := range m.domains {
		out = append(out, d)
	}
	return out
}

// Subscribe returns a channel receiving mux notifications. Slow receivers
// drop events rather than block the mux.
func (m *Mux) Subscribe() <-chan Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Notification, 64)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// notify fans an event out to subscribers without blocking.
func (m *Mux) notify(n Notification) {
	m.mu.Lock()
	subs := make([]chan Notification, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// NotifyPaneOutput is invoked from pane damage callbacks to wake observers.
func (m *Mux) NotifyPaneOutput(id pane.ID) {
	m.notify(Notification{Kind: NotifyPaneOutput, Pane: id})
}

// AllocPaneID reserves a pane id for a domain about to spawn.
func (m *Mux) AllocPaneID() pane.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPane++
	return m.nextPane
}

// SpawnTabOrWindow asks the domain for a new pane and wraps it in a tab,
// inserting into the requested window or a fresh one. The zero WindowID
// requests a new window.
func (m *Mux) SpawnTabOrWindow(windowID WindowID, domainName string, cmd SpawnCommand, size PtySize, workspace string) (*Tab, pane.Pane, WindowID, error) {
	domain, err := m.GetDomain(domainName)
	if err != nil {
		return nil, nil, 0, err
	}
	if !domain.Spawnable() {
		return nil, nil, 0, fmt.Errorf("domain %q is not spawnable", domainName)
	}

	p, err := domain.SpawnPane(m.AllocPaneID(), size, cmd)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("spawn in domain %q: %w", domainName, err)
	}

	m.mu.Lock()
	m.panes[p.ID()] = p

	m.nextTab++
	tab := NewTab(m.nextTab, p, size.Rows, size.Cols)
	m.tabs[tab.ID()] = tab

	var win *Window
	if windowID != 0 {
		win = m.windows[windowID]
	}
	createdWindow := false
	if win == nil {
		m.nextWindow++
		if workspace == "" {
			workspace = DefaultWorkspace
		}
		win = &Window{ID: m.nextWindow, Workspace: workspace}
		m.windows[win.ID] = win
		createdWindow = true
	}
	win.Tabs = append(win.Tabs, tab)
	win.ActiveTab = len(win.Tabs) - 1
	winID := win.ID
	m.mu.Unlock()

	log.Printf("mux: spawned pane %d in tab %d window %d", p.ID(), tab.ID(), winID)
	if createdWindow {
		m.notify(Notification{Kind: NotifyWindowCreated, Window: winID})
	}
	m.notify(Notification{Kind: NotifyPaneAdded, Pane: p.ID()})
	return tab, p, winID, nil
}

// SplitPane adds a leaf adjacent to an existing pane. It returns the new
// pane and the size it was allotted.
func (m *Mux) SplitPane(existing pane.ID, dir SplitDirection, domainName string, cmd SpawnCommand) (pane.Pane, PtySize, error) {
	m.mu.Lock()
	tab := m.tabOfLocked(existing)
	m.mu.Unlock()
	if tab == nil {
		return nil, PtySize{}, fmt.Errorf("%w: %d", ErrUnknownPane, existing)
	}

	domain, err := m.GetDomain(domainName)
	if err != nil {
		return nil, PtySize{}, err
	}

	// Predict the new pane's size: half the splittable axis
	rows, cols := tab.Size()
	size := PtySize{Rows: rows, Cols: cols}
	if dir == SplitHorizontal {
		size.Cols = cols / 2
	} else {
		size.Rows = rows / 2
	}
	if size.Rows < 1 || size.Cols < 1 {
		return nil, PtySize{}, fmt.Errorf("pane %d too small to split", existing)
	}

	p, err := domain.SpawnPane(m.AllocPaneID(), size, cmd)
	if err != nil {
		return nil, PtySize{}, fmt.Errorf("split spawn: %w", err)
	}

	m.mu.Lock()
	m.panes[p.ID()] = p
	pp, err := tab.Split(existing, dir, p)
	m.mu.Unlock()
	if err != nil {
		p.Kill()
		return nil, PtySize{}, err
	}

	log.Printf("mux: split pane %d -> new pane %d (%dx%d)", existing, p.ID(), pp.Width, pp.Height)
	m.notify(Notification{Kind: NotifyPaneAdded, Pane: p.ID()})
	return p, PtySize{Rows: pp.Height, Cols: pp.Width}, nil
}

// GetPane looks up a pane by id.
func (m *Mux) GetPane(id pane.ID) (pane.Pane, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.panes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPane, id)
	}
	return p, nil
}

// tabOfLocked returns the tab containing a pane. Caller holds the lock.
func (m *Mux) tabOfLocked(id pane.ID) *Tab {
	for _, tab := range m.tabs {
		if tab.findLeaf(tab.root, id) != nil {
			return tab
		}
	}
	return nil
}

// ResolvePaneID locates the window and tab holding a pane.
func (m *Mux) ResolvePaneID(id pane.ID) (WindowID, TabID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tab := m.tabOfLocked(id)
	if tab == nil {
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownPane, id)
	}
	for _, win := range m.windows {
		for _, wt := range win.Tabs {
			if wt.ID() == tab.ID() {
				return win.ID, tab.ID(), nil
			}
		}
	}
	return 0, tab.ID(), nil
}

// IterPanes snapshots every registered pane.
func (m *Mux) IterPanes() []pane.Pane {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pane.Pane, 0, len(m.panes))
	for _, p := range m.panes {
		out = append(out, p)
	}
	return out
}

// IterWindows snapshots every window.
func (m *Mux) IterWindows() []*Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Window, 0, len(m.windows))
	for _, w := range m.windows {
		out = append(out, w)
	}
	return out
}

// GetWindow looks up a window by id.
func (m *Mux) GetWindow(id WindowID) (*Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	return w, ok
}

// GetTab looks up a tab by id.
func (m *Mux) GetTab(id TabID) (*Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	return t, ok
}

// RemovePane unregisters a pane, collapses its split, and prunes any tab or
// window emptied by the removal.
func (m *Mux) RemovePane(id pane.ID) {
	m.mu.Lock()
	_, ok := m.panes[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.panes, id)

	var removedWindows []WindowID
	for tabID, tab := range m.tabs {
		if !tab.Remove(id) {
			continue
		}
		if tab.IsEmpty() {
			delete(m.tabs, tabID)
			for _, win := range m.windows {
				for i, wt := range win.Tabs {
					if wt.ID() == tabID {
						win.Tabs = append(win.Tabs[:i], win.Tabs[i+1:]...)
						if win.ActiveTab >= len(win.Tabs) {
							win.ActiveTab = len(win.Tabs) - 1
						}
						break
					}
				}
				if len(win.Tabs) == 0 {
					removedWindows = append(removedWindows, win.ID)
				}
			}
		}
		break
	}
	for _, wid := range removedWindows {
		delete(m.windows, wid)
	}
	m.mu.Unlock()

	log.Printf("mux: removed pane %d", id)
	m.notify(Notification{Kind: NotifyPaneRemoved, Pane: id})
	for _, wid := range removedWindows {
		m.notify(Notification{Kind: NotifyWindowRemoved, Window: wid})
	}
}

// KillPane terminates a pane's child. The pane is removed once the child
// exit drains through the dead callback.
func (m *Mux) KillPane(id pane.ID) error {
	p, err := m.GetPane(id)
	if err != nil {
		return err
	}
	p.Kill()
	return nil
}

// PruneDeadPanes removes every pane whose child has exited. Called from the
// main loop tick.
func (m *Mux) PruneDeadPanes() {
	for _, p := range m.IterPanes() {
		if p.IsDead() {
			m.RemovePane(p.ID())
		}
	}
}
