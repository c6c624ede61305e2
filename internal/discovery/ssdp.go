package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"

	"webos_remote/internal/device"
)

// SSDP protocol constants
const (
	MulticastAddress = "239.255.255.250:1900"
	DefaultWindow    = 5 * time.Second

	// SearchMessage is the M-SEARCH datagram sent once per discovery window
	SearchMessage = "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"ST: upnp:rootdevice\r\n" +
		"MX: 3\r\n\r\n"

	multicastTTL = 2
	readBufSize  = 2048
)

// Options configures a discovery client
type Options struct {
	Window     time.Duration             // Discovery window (default 5s)
	Interface  string                    // Outgoing multicast interface name (optional)
	Target     string                    // Multicast group, defaults to MulticastAddress
	Seed       []device.DiscoveredDevice // Known TVs listed before the window opens
	Lock       MulticastLock             // Defaults to NopLock
	HTTPClient *http.Client              // Used for device-description fetches

	// Listen opens the search socket. Defaults to an ephemeral UDP4 socket.
	Listen func() (net.PacketConn, error)
}

// Client discovers LG TVs with SSDP
type Client struct {
	opts Options
}

// NewClient creates a discovery client, filling in defaults
func NewClient(opts Options) *Client {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Target == "" {
		opts.Target = MulticastAddress
	}
	if opts.Lock == nil {
		opts.Lock = NopLock{}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	if opts.Listen == nil {
		opts.Listen = func() (net.PacketConn, error) {
			return net.ListenPacket("udp4", ":0")
		}
	}
	return &Client{opts: opts}
}

// Discover runs one discovery window and streams growing snapshots of the
// device list. The channel is closed after the final snapshot, which is sent
// even when nothing was found or the socket could not be opened.
func (c *Client) Discover(ctx context.Context) <-chan []device.DiscoveredDevice {
	out := make(chan []device.DiscoveredDevice)
	go func() {
		defer close(out)
		c.run(ctx, out)
	}()
	return out
}

// Collect runs Discover to completion and returns the final snapshot
func (c *Client) Collect(ctx context.Context) []device.DiscoveredDevice {
	var last []device.DiscoveredDevice
	for snapshot := range c.Discover(ctx) {
		last = snapshot
	}
	return last
}

// found accumulates accepted devices for one window
type found struct {
	devices []device.DiscoveredDevice
	claimed map[string]bool // accepted, awaiting a description, or rejected
}

func (f *found) add(d device.DiscoveredDevice) {
	f.devices = append(f.devices, d)
	f.claimed[d.IPAddress] = true
}

func (f *found) snapshot() []device.DiscoveredDevice {
	out := make([]device.DiscoveredDevice, len(f.devices))
	copy(out, f.devices)
	return out
}

func (c *Client) run(ctx context.Context, out chan<- []device.DiscoveredDevice) {
	emit := func(list []device.DiscoveredDevice) {
		select {
		case out <- list:
		case <-ctx.Done():
		}
	}

	f := &found{claimed: make(map[string]bool)}
	for _, d := range c.opts.Seed {
		if d.IPAddress == "" || f.claimed[d.IPAddress] {
			continue
		}
		f.add(d)
	}

	log.Printf("SSDP: Starting discovery (window %v)", c.opts.Window)
	deadline := time.Now().Add(c.opts.Window)
	if err := c.search(ctx, deadline, f, emit); err != nil {
		log.Printf("SSDP: Discovery failed: %v", err)
		emit([]device.DiscoveredDevice{})
	}

	log.Printf("SSDP: Discovery complete, %d TV(s) found", len(f.devices))
	for _, d := range f.devices {
		log.Printf("SSDP:   %s - %s", d.Name, d.IPAddress)
	}
	emit(f.snapshot())
}

// packet is one SSDP reply and its sender
type packet struct {
	data string
	ip   string
}

// search holds the multicast lock and socket for the window and feeds
// accepted devices into f. Only setup errors are returned.
//
// Replies are read on their own goroutine and description fetches run
// concurrently, so a slow device endpoint never stalls the socket. Only
// this goroutine touches f.
func (c *Client) search(ctx context.Context, deadline time.Time, f *found, emit func([]device.DiscoveredDevice)) error {
	if err := c.opts.Lock.Acquire(); err != nil {
		return fmt.Errorf("acquire multicast lock: %w", err)
	}
	defer c.opts.Lock.Release()

	conn, err := c.opts.Listen()
	if err != nil {
		return fmt.Errorf("open socket: %w", err)
	}
	defer conn.Close()

	if udp, ok := conn.(*net.UDPConn); ok {
		configureMulticast(udp, c.opts.Interface)
	}

	target, err := net.ResolveUDPAddr("udp4", c.opts.Target)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", c.opts.Target, err)
	}
	if _, err := conn.WriteTo([]byte(SearchMessage), target); err != nil {
		return fmt.Errorf("send M-SEARCH: %w", err)
	}

	// Cancellation unblocks the pending read
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	packets := make(chan packet)
	go receive(ctx, conn, deadline, packets)

	accept := func(d device.DiscoveredDevice) {
		log.Printf("SSDP: Found %s at %s", d.Name, d.IPAddress)
		f.add(d)
		emit(f.snapshot())
	}

	var fetches errgroup.Group
	described := make(chan device.DiscoveredDevice)
	for packets != nil {
		select {
		case p, ok := <-packets:
			if !ok {
				packets = nil
				continue
			}
			if f.claimed[p.ip] {
				continue
			}
			resp := ParseResponse(p.data)
			if resp.IsLG() {
				accept(resp.Device(p.ip))
				continue
			}
			if resp.Location == "" {
				continue
			}
			// Claimed before the fetch so repeat replies are skipped
			// whatever the outcome
			f.claimed[p.ip] = true
			fetches.Go(func() error {
				if d, ok := c.describe(ctx, deadline, resp, p.ip); ok {
					described <- d
				}
				return nil
			})
		case d := <-described:
			accept(d)
		}
	}

	// Fetches are bounded by the window deadline
	go func() {
		fetches.Wait()
		close(described)
	}()
	for d := range described {
		accept(d)
	}
	return nil
}

// receive reads replies until the window closes, then closes out
func receive(ctx context.Context, conn net.PacketConn, deadline time.Time, out chan<- packet) {
	defer close(out)
	buf := make([]byte, readBufSize)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(remaining))

		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Printf("SSDP: Socket closed, ending window early")
				return
			}
			// Timeouts and transient errors: keep listening until the window closes
			continue
		}
		ip := hostOf(addr)
		if ip == "" {
			continue
		}
		out <- packet{data: string(buf[:n]), ip: ip}
	}
}

// describe fetches the device description for a reply whose headers did
// not identify an LG TV
func (c *Client) describe(ctx context.Context, deadline time.Time, resp Response, ip string) (device.DiscoveredDevice, bool) {
	fetchCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	desc, err := FetchDescription(fetchCtx, c.opts.HTTPClient, resp.Location)
	if err != nil {
		log.Printf("SSDP: Description fetch for %s failed: %v", ip, err)
		return device.DiscoveredDevice{}, false
	}
	if !desc.IsLG() {
		return device.DiscoveredDevice{}, false
	}
	return desc.Device(ip, resp.Location), true
}

// Response holds the SSDP headers used for classification
type Response struct {
	Location string
	Server   string
	USN      string
}

// ParseResponse extracts LOCATION, SERVER and USN from an SSDP reply.
// Header names match case-insensitively; the value is everything after the
// first colon, trimmed.
func ParseResponse(raw string) Response {
	var r Response
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case hasPrefixFold(line, "LOCATION:"):
			r.Location = headerValue(line)
		case hasPrefixFold(line, "SERVER:"):
			r.Server = headerValue(line)
		case hasPrefixFold(line, "USN:"):
			r.USN = headerValue(line)
		}
	}
	return r
}

// IsLG reports whether SERVER or USN names LG
func (r Response) IsLG() bool {
	return containsLG(r.Server) || containsLG(r.USN)
}

// Device builds the record for a reply classified from its headers
func (r Response) Device(ip string) device.DiscoveredDevice {
	id := r.USN
	if id == "" {
		id = device.SynthesizeID(ip)
	}
	return device.DiscoveredDevice{
		ID:           id,
		Name:         fmt.Sprintf("LG TV (%s)", ip),
		IPAddress:    ip,
		Port:         device.SecurePort,
		Manufacturer: "LG",
		Location:     r.Location,
		IsLGTV:       true,
	}
}

func configureMulticast(conn *net.UDPConn, ifaceName string) {
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(multicastTTL); err != nil {
		log.Printf("SSDP: Failed to set multicast TTL: %v", err)
	}
	if ifaceName == "" {
		return
	}
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		log.Printf("SSDP: Unknown interface %s: %v", ifaceName, err)
		return
	}
	if err := pc.SetMulticastInterface(iface); err != nil {
		log.Printf("SSDP: Failed to use interface %s: %v", ifaceName, err)
	}
}

func hostOf(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.String()
	case nil:
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return ""
	}
	return host
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func headerValue(line string) string {
	_, value, _ := strings.Cut(line, ":")
	return strings.TrimSpace(value)
}

func containsLG(s string) bool {
	return strings.Contains(strings.ToLower(s), "lg")
}
