package webos

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"webos_remote/internal/device"
)

const (
	// Time allowed for the websocket handshake with the TV
	defaultHandshakeTimeout = 60 * time.Second
	// Keep-alive ping period
	defaultPingInterval = 30 * time.Second
	// Time allowed to write a frame to the TV
	defaultWriteTimeout = 10 * time.Second
)

// testHookDialed runs after the socket opens and before the cancellation check
var testHookDialed = func() {}

// Config holds session settings
type Config struct {
	Scheme           string // "ws", "wss", or empty to pick by port
	InsecureTLS      bool   // TVs present self-signed certificates on 3001
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	Manifest         *Manifest
	ClientKey        string // Previously issued key sent with the first registration
}

// Client owns the control socket to a single TV. The socket reference and
// the connection state change together under mu; transitions are published
// to listeners in order.
type Client struct {
	cfg      Config
	manifest Manifest
	dialer   *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	state     device.ConnectionState
	gen       uint64 // bumped by Connect and Disconnect to retire older attempts
	target    device.TVDevice
	lastError string
	clientKey string
	pingStop  context.CancelFunc

	writeMu  sync.Mutex // gorilla allows one concurrent writer
	notifier *notifier
}

// NewClient creates a disconnected session client
func NewClient(cfg Config) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	manifest := DefaultManifest()
	if cfg.Manifest != nil {
		manifest = *cfg.Manifest
	}

	return &Client{
		cfg:      cfg,
		manifest: manifest,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureTLS,
			},
		},
		state:    device.Disconnected,
		notifier: newNotifier(),
	}
}

// URL returns the control-socket URL for a TV
func (c *Client) URL(tv device.TVDevice) string {
	scheme := c.cfg.Scheme
	if scheme == "" {
		scheme = "ws"
		if tv.Port == device.SecurePort {
			scheme = "wss"
		}
	}
	return fmt.Sprintf("%s://%s", scheme, tv.Address())
}

// State returns the current connection state
func (c *Client) State() device.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent failure message, or "" after a clean connect
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// ClientKey returns the key issued by the TV after pairing in this process
func (c *Client) ClientKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientKey
}

// Target returns the device of the current or last connection attempt
func (c *Client) Target() device.TVDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.target
	t.Connected = c.state == device.Connected
	return t
}

// Subscribe registers fn for state transitions. fn first receives the
// current state, then every later transition in order. The returned func
// removes the listener. fn must not call Close.
func (c *Client) Subscribe(fn StateListener) func() {
	c.mu.Lock()
	id := c.notifier.subscribe(fn)
	c.notifier.publishTo(id, c.state)
	c.mu.Unlock()
	return func() { c.notifier.unsubscribe(id) }
}

// Connect opens the control socket and sends the registration handshake.
// A nil return means the handshake was sent; pairing progresses
// asynchronously through state transitions. Cancelling ctx before the
// socket opens closes it and returns the context error.
func (c *Client) Connect(ctx context.Context, tv device.TVDevice) error {
	url := c.URL(tv)

	c.mu.Lock()
	c.gen++
	gen := c.gen
	old := c.detachLocked()
	c.target = tv
	c.setStateLocked(device.Connecting)
	c.mu.Unlock()
	closeConn(old, "Reconnecting")

	log.Printf("webOS: Connecting to %s", url)
	conn, err := c.dial(ctx, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Printf("webOS: Connection to %s cancelled", url)
			c.mu.Lock()
			if c.gen == gen {
				c.setStateLocked(device.Disconnected)
			}
			c.mu.Unlock()
			return ctxErr
		}
		terr := &TransportError{Op: "dial", Err: err}
		log.Printf("webOS: Connection to %s failed: %v", url, err)
		c.mu.Lock()
		if c.gen == gen {
			c.lastError = terr.Error()
			c.setStateLocked(device.Error)
		}
		c.mu.Unlock()
		return terr
	}

	testHookDialed()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		closeConn(conn, "Superseded")
		return ErrSuperseded
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.setStateLocked(device.Disconnected)
		c.mu.Unlock()
		log.Printf("webOS: Connection to %s cancelled after open", url)
		closeConn(conn, "Cancelled")
		return ctxErr
	}
	pingCtx, stopPing := context.WithCancel(context.Background())
	c.conn = conn
	c.pingStop = stopPing
	c.lastError = ""
	key := c.clientKey
	if key == "" {
		key = c.cfg.ClientKey
	}
	c.setStateLocked(device.Connected)
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.pingLoop(pingCtx, conn)

	log.Printf("webOS: Sending handshake to %s", url)
	if err := c.writeJSON(conn, newRegisterRequest(c.manifest, key)); err != nil {
		return c.transportFailure(conn, "write", err)
	}
	return nil
}

// dial opens the socket. Cancelling ctx interrupts the upgrade handshake
// as well as the TCP dial.
func (c *Client) dial(ctx context.Context, url string) (*websocket.Conn, error) {
	var stop func() bool
	d := *c.dialer
	d.NetDialContext = func(dctx context.Context, network, addr string) (net.Conn, error) {
		var nd net.Dialer
		nc, err := nd.DialContext(dctx, network, addr)
		if err != nil {
			return nil, err
		}
		stop = context.AfterFunc(ctx, func() { nc.SetDeadline(time.Now()) })
		return nc, nil
	}
	conn, _, err := d.DialContext(ctx, url, nil)
	if stop != nil {
		stop()
	}
	return conn, err
}

// SendPairingCode re-sends the registration with code as the client key.
// The state is driven by the TV's answer, not by this call.
func (c *Client) SendPairingCode(code string) error {
	log.Printf("webOS: Sending pairing code")
	return c.send(newRegisterRequest(c.manifest, code))
}

// SendCommand maps name through BuildCommand and sends it
func (c *Client) SendCommand(name string) error {
	req := BuildCommand(name)
	if err := c.send(req); err != nil {
		return err
	}
	log.Printf("webOS: Sent %s -> %s (id %s)", name, req.URI, req.ID)
	return nil
}

// Disconnect closes the socket with a normal closure and resets the state,
// whatever the current state is.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	conn := c.detachLocked()
	c.setStateLocked(device.Disconnected)
	c.mu.Unlock()

	if conn != nil {
		log.Printf("webOS: Disconnecting")
	}
	closeConn(conn, "Manual disconnect")
}

// Close disconnects and stops delivering state notifications
func (c *Client) Close() {
	c.Disconnect()
	c.notifier.close()
}

func (c *Client) send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := c.writeJSON(conn, v); err != nil {
		return c.transportFailure(conn, "write", err)
	}
	return nil
}

func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// transportFailure moves a still-current connection to ERROR
func (c *Client) transportFailure(conn *websocket.Conn, op string, err error) error {
	terr := &TransportError{Op: op, Err: err}
	log.Printf("webOS: %v", terr)
	c.mu.Lock()
	if c.conn == conn {
		c.detachLocked()
		c.lastError = terr.Error()
		c.setStateLocked(device.Error)
	}
	c.mu.Unlock()
	conn.Close()
	return terr
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosed(conn, err)
			return
		}
		if msgType != websocket.TextMessage {
			log.Printf("webOS: Ignoring binary frame (%d bytes)", len(data))
			continue
		}
		c.handleMessage(conn, data)
	}
}

func (c *Client) handleClosed(conn *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		// Closed by Disconnect or replaced by a newer Connect
		return
	}
	c.detachLocked()
	conn.Close()

	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
		log.Printf("webOS: TV closed the connection: %d %s", ce.Code, ce.Text)
		c.setStateLocked(device.Disconnected)
		return
	}
	terr := &TransportError{Op: "read", Err: err}
	log.Printf("webOS: %v", terr)
	c.lastError = terr.Error()
	c.setStateLocked(device.Error)
}

func (c *Client) handleMessage(conn *websocket.Conn, data []byte) {
	msg, err := parseMessage(data)
	if err != nil {
		log.Printf("webOS: Ignoring malformed message: %v", err)
		return
	}

	switch msg.optString("type") {
	case typeResponse:
		if id := msg.optString("id"); id == registerID {
			c.handleRegisterResponse(conn, id, msg)
		}
	case typeRegistered:
		key := msg.optObject("payload").optString("client-key")
		c.mu.Lock()
		if c.conn == conn {
			if key != "" {
				c.clientKey = key
			}
			log.Printf("webOS: Pairing complete")
			c.setStateLocked(device.Connected)
		}
		c.mu.Unlock()
	}
}

func (c *Client) handleRegisterResponse(conn *websocket.Conn, id string, msg message) {
	if code, text, ok := msg.errorCode(); ok {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != conn {
			return
		}
		if code == "401" {
			log.Printf("webOS: TV requires a pairing code")
			c.setStateLocked(device.Pairing)
			return
		}
		perr := &ProtocolError{Code: code, Message: text}
		log.Printf("webOS: %v", perr)
		c.lastError = perr.Error()
		c.setStateLocked(device.Error)
		return
	}

	payload := msg.optObject("payload")
	if payload.optString("pairingType") == "PROMPT" && payload.optBool("returnValue") {
		log.Printf("webOS: Confirming pairing prompt")
		if err := c.writeJSON(conn, newResponseAck(id)); err != nil {
			c.transportFailure(conn, "write", err)
			return
		}
	}

	c.mu.Lock()
	if c.conn == conn {
		c.setStateLocked(device.Connected)
	}
	c.mu.Unlock()
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// detachLocked clears the socket reference and stops its ping loop.
// The caller closes the returned connection after releasing mu.
func (c *Client) detachLocked() *websocket.Conn {
	conn := c.conn
	c.conn = nil
	if c.pingStop != nil {
		c.pingStop()
		c.pingStop = nil
	}
	return conn
}

func (c *Client) setStateLocked(s device.ConnectionState) {
	if c.state == s {
		return
	}
	log.Printf("webOS: State %s -> %s", c.state, s)
	c.state = s
	c.notifier.publish(s)
}

// closeConn sends a normal-closure frame and closes the socket
func closeConn(conn *websocket.Conn, reason string) {
	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}
