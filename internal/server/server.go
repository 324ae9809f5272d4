// Package server exposes the mux over the wire protocol: socket listeners,
// one session handler per connected client, and the per-client PerPane
// shadows that drive incremental render sync.
package server

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ellery/kiln/internal/mux"
	"github.com/ellery/kiln/internal/pane"
	"github.com/ellery/kiln/internal/wire"
	"github.com/mitchellh/go-homedir"
)

// alertTick is how often pane alert queues are drained and fanned out.
const alertTick = 25 * time.Millisecond

// Info identifies this server build to clients during negotiation.
type Info struct {
	Version    string
	Executable string
	ConfigPath string
}

// Server accepts wire-protocol clients and serves them the mux.
type Server struct {
	mux  *mux.Mux
	info Info

	mu       sync.Mutex
	handlers map[*SessionHandler]struct{}

	listeners []net.Listener
	lockFile  *os.File

	stopCh chan struct{}
	stopped bool
}

// New builds a server over the given mux.
func New(m *mux.Mux, info Info) *Server {
	return &Server{
		mux:      m,
		info:     info,
		handlers: make(map[*SessionHandler]struct{}),
		stopCh:   make(chan struct{}),
	}
}

// SocketDir returns (and creates) the directory holding session sockets.
func SocketDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	dir := filepath.Join(home, ".kiln", "sockets")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create socket dir: %w", err)
	}
	return dir, nil
}

// acquireLock flocks a sidecar file so two servers cannot own one socket.
func acquireLock(socketPath string) (*os.File, error) {
	f, err := os.OpenFile(socketPath+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	return f, nil
}

// ListenUnix binds the unix socket, guarding it with a lock file and
// clearing any stale socket left by a crashed server.
func (s *Server) ListenUnix(socketPath string) error {
	lock, err := acquireLock(socketPath)
	if err != nil {
		return err
	}
	os.Remove(socketPath)

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		releaseLock(lock)
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	s.lockFile = lock
	s.listeners = append(s.listeners, l)
	log.Printf("server: listening on %s", socketPath)
	return nil
}

// ListenTLS binds a TLS listener for remote clients.
func (s *Server) ListenTLS(addr string, cfg *tls.Config) error {
	l, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return fmt.Errorf("tls listen on %s: %w", addr, err)
	}
	s.listeners = append(s.listeners, l)
	log.Printf("server: tls listening on %s", addr)
	return nil
}

func releaseLock(f *os.File) {
	if f == nil {
		return
	}
	path := f.Name()
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	f.Close()
	os.Remove(path)
}

// Run accepts clients until Stop. It also owns the alert fan-out loop.
func (s *Server) Run() {
	for _, l := range s.listeners {
		go s.acceptLoop(l)
	}
	go s.pushLoop()
	<-s.stopCh
}

// Stop shuts the server down and disconnects every client.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	handlers := make([]*SessionHandler, 0, len(s.handlers))
	for h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	close(s.stopCh)
	for _, l := range s.listeners {
		l.Close()
	}
	for _, h := range handlers {
		h.Close()
	}
	releaseLock(s.lockFile)
	log.Printf("server: stopped")
}

func (s *Server) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			log.Printf("server: accept: %v", err)
			return
		}
		h := NewSessionHandler(s.mux, s.info, conn)
		s.mu.Lock()
		s.handlers[h] = struct{}{}
		s.mu.Unlock()
		go func() {
			h.Run()
			s.mu.Lock()
			delete(s.handlers, h)
			s.mu.Unlock()
		}()
	}
}

// pushLoop drains pane alerts and mux notifications, fanning them out to
// every connected client as serial-0 pushes.
func (s *Server) pushLoop() {
	notifications := s.mux.Subscribe()
	ticker := time.NewTicker(alertTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case n := <-notifications:
			if n.Kind == mux.NotifyPaneRemoved {
				s.broadcast(&wire.PaneRemoved{PaneID: uint64(n.Pane)})
			}
		case <-ticker.C:
			s.mux.PruneDeadPanes()
			for _, p := range s.mux.IterPanes() {
				for _, alert := range p.DrainAlerts() {
					s.pushAlert(p, alert)
				}
			}
		}
	}
}

func (s *Server) pushAlert(p pane.Pane, alert pane.Alert) {
	switch alert.Kind {
	case pane.AlertPaletteChanged:
		s.broadcast(paletteOf(p))
	default:
		s.broadcast(&wire.NotifyAlert{
			PaneID: uint64(p.ID()),
			Kind:   byte(alert.Kind),
			Data:   alert.Data,
		})
	}
}

// paletteOf snapshots a pane's palette into a push PDU.
func paletteOf(p pane.Pane) *wire.SetPalette {
	pal := p.Palette()
	out := &wire.SetPalette{PaneID: uint64(p.ID())}
	for _, c := range pal.Colors {
		out.Colors = append(out.Colors, [4]byte{c.R, c.G, c.B, c.A})
	}
	out.Foreground = [4]byte{pal.Foreground.R, pal.Foreground.G, pal.Foreground.B, pal.Foreground.A}
	out.Background = [4]byte{pal.Background.R, pal.Background.G, pal.Background.B, pal.Background.A}
	out.Cursor = [4]byte{pal.Cursor.R, pal.Cursor.G, pal.Cursor.B, pal.Cursor.A}
	return out
}

// broadcast sends a push PDU to every connected client.
func (s *Server) broadcast(p wire.Pdu) {
	s.mu.Lock()
	handlers := make([]*SessionHandler, 0, len(s.handlers))
	for h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h.Push(p)
	}
}

// BroadcastPalettes re-sends every pane's palette, used after config
// regeneration.
func (s *Server) BroadcastPalettes() {
	for _, p := range s.mux.IterPanes() {
		s.broadcast(paletteOf(p))
	}
}
