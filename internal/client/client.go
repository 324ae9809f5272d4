// Package client implements the remote side of the sync protocol: the
// connection with request/response correlation, the per-pane mirror with
// predictive echo, and the remote pane/domain that plug mirrored panes into
// a local mux.
package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/blang/semver"
	"github.com/ellery/kiln/internal/wire"
	"github.com/google/uuid"
)

// requestTimeout bounds synchronous requests.
const requestTimeout = 60 * time.Second

// ErrCodecMismatch means the server speaks an incompatible frame encoding.
var ErrCodecMismatch = errors.New("codec version mismatch")

// ErrClosed is returned for requests on a closed client.
var ErrClosed = errors.New("client closed")

// Client owns one connection to a mux server. Requests are correlated by
// serial; unsolicited pushes (serial 0) are handed to the push handler.
type Client struct {
	conn io.ReadWriteCloser

	mu         sync.Mutex
	nextSerial uint64
	pending    map[uint64]chan wire.Pdu
	closed     bool

	lastSend time.Time
	lastRecv time.Time

	onPush func(wire.Pdu)

	done chan struct{}

	// ServerVersion is populated by Connect.
	ServerVersion string
}

// DialUnix connects to a local server socket.
func DialUnix(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", socketPath, err)
	}
	return NewClient(conn), nil
}

// DialTLS connects to a remote server.
func DialTLS(addr string, cfg *tls.Config) (*Client, error) {
	conn, err := tls.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("tls dial %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn io.ReadWriteCloser) *Client {
	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan wire.Pdu),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// SetPushHandler installs the receiver for serial-0 PDUs. Install before
// Connect so no push is lost.
func (c *Client) SetPushHandler(fn func(wire.Pdu)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPush = fn
}

// Connect negotiates the codec version and identifies this client. It must
// be the first exchange on the connection.
func (c *Client) Connect() error {
	resp, err := c.Request(&wire.GetCodecVersion{})
	if err != nil {
		return fmt.Errorf("codec negotiation: %w", err)
	}
	vr, ok := resp.(*wire.GetCodecVersionResponse)
	if !ok {
		return fmt.Errorf("unexpected negotiation response %T", resp)
	}
	if vr.Codec != wire.CodecVersion {
		return fmt.Errorf("%w: server %d, client %d", ErrCodecMismatch, vr.Codec, wire.CodecVersion)
	}
	c.ServerVersion = vr.Version
	if v, err := semver.Parse(vr.Version); err == nil {
		if local, err := semver.Parse(Version); err == nil && v.Major != local.Major {
			log.Printf("client: server %s differs in major version from %s", vr.Version, Version)
		}
	}

	_, err = c.Request(&wire.SetClientID{ClientID: uuid.NewString()})
	return err
}

// Version is this build's semver, stamped by the build pipeline.
var Version = "0.1.0"

// Close shuts the connection down and fails outstanding requests.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for serial, ch := range c.pending {
		close(ch)
		delete(c.pending, serial)
	}
	c.mu.Unlock()
	close(c.done)
	c.conn.Close()
}

// LastSend returns when a request was last written.
func (c *Client) LastSend() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSend
}

// LastRecv returns when a frame last arrived.
func (c *Client) LastRecv() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRecv
}

// RequestAsync sends a request and returns the channel its response will
// arrive on. The channel closes without a value if the connection dies.
func (c *Client) RequestAsync(p wire.Pdu) (<-chan wire.Pdu, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextSerial++
	serial := c.nextSerial
	ch := make(chan wire.Pdu, 1)
	c.pending[serial] = ch
	c.lastSend = time.Now()
	c.mu.Unlock()

	if err := wire.WriteFrame(c.conn, wire.EncodePdu(serial, p)); err != nil {
		c.mu.Lock()
		delete(c.pending, serial)
		c.mu.Unlock()
		return nil, fmt.Errorf("send request: %w", err)
	}
	return ch, nil
}

// Request performs a synchronous round trip.
func (c *Client) Request(p wire.Pdu) (wire.Pdu, error) {
	ch, err := c.RequestAsync(p)
	if err != nil {
		return nil, err
	}
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if er, isErr := resp.(*wire.ErrorResponse); isErr {
			return nil, fmt.Errorf("server error: %s", er.Message)
		}
		return resp, nil
	case <-time.After(requestTimeout):
		return nil, fmt.Errorf("request timed out after %s", requestTimeout)
	}
}

// readLoop routes incoming frames to waiters or the push handler.
func (c *Client) readLoop() {
	for {
		frame, err := wire.ReadFrame(c.conn)
		if err != nil {
			if err != io.EOF {
				select {
				case <-c.done:
				default:
					log.Printf("client: read: %v", err)
				}
			}
			c.Close()
			return
		}
		pdu, err := wire.DecodePdu(frame)
		if err != nil {
			log.Printf("client: %v", err)
			c.Close()
			return
		}

		c.mu.Lock()
		c.lastRecv = time.Now()
		if frame.Serial == 0 {
			push := c.onPush
			c.mu.Unlock()
			if push != nil {
				push(pdu)
			}
			continue
		}
		ch, ok := c.pending[frame.Serial]
		if ok {
			delete(c.pending, frame.Serial)
		}
		c.mu.Unlock()

		if !ok {
			// Response to a dropped request: ignored by design
			continue
		}
		ch <- pdu
	}
}
