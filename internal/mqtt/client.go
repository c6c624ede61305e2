package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"webos_remote/internal/device"
	"webos_remote/internal/webos"
)

// DefaultBaseTopic prefixes every topic when none is configured
const DefaultBaseTopic = "webos_remote"

// Topic suffixes under the base topic
const (
	TopicState      = "state"
	TopicDevices    = "devices"
	TopicCommand    = "command"
	TopicVoice      = "voice"
	TopicPairing    = "pairing"
	TopicConnect    = "connect"
	TopicDisconnect = "disconnect"
)

// Time allowed for a connect request received over MQTT
const connectTimeout = 30 * time.Second

// Controller is the session the bridge drives
type Controller interface {
	Connect(ctx context.Context, tv device.TVDevice) error
	SendPairingCode(code string) error
	SendCommand(name string) error
	Disconnect()
}

// Client bridges the TV session to an MQTT broker
type Client struct {
	client     paho.Client
	controller Controller
	baseTopic  string
	mu         sync.RWMutex
	connected  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds MQTT connection settings
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	ClientID  string
	BaseTopic string
}

// NewClient creates a new MQTT bridge for controller
func NewClient(cfg Config, controller Controller) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		controller: controller,
		baseTopic:  strings.TrimSuffix(cfg.BaseTopic, "/"),
		ctx:        ctx,
		cancel:     cancel,
	}
	if c.baseTopic == "" {
		c.baseTopic = DefaultBaseTopic
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client paho.Client) {
		log.Println("MQTT connected")
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		c.subscribe()
	})

	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	})

	c.client = paho.NewClient(opts)
	return c
}

// Connect starts the MQTT connection
func (c *Client) Connect() error {
	token := c.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connect failed: %w", err)
	}
	return nil
}

// Topic returns the full topic for a suffix
func (c *Client) Topic(suffix string) string {
	return c.baseTopic + "/" + suffix
}

func (c *Client) subscribe() {
	for _, suffix := range []string{TopicCommand, TopicVoice, TopicPairing, TopicConnect, TopicDisconnect} {
		topic := c.Topic(suffix)
		token := c.client.Subscribe(topic, 1, c.handleMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("Failed to subscribe to %s: %v", topic, err)
		} else {
			log.Printf("Subscribed to MQTT topic: %s", topic)
		}
	}
}

// handleMessage routes an inbound request to the session
func (c *Client) handleMessage(client paho.Client, msg paho.Message) {
	payload := strings.TrimSpace(string(msg.Payload()))
	log.Printf("MQTT message: topic=%s payload=%s", msg.Topic(), payload)

	var err error
	switch strings.TrimPrefix(msg.Topic(), c.baseTopic+"/") {
	case TopicCommand:
		if payload == "" {
			return
		}
		if !webos.IsKnownCommand(payload) {
			log.Printf("MQTT command not recognised, sending it as a toast: %q", payload)
		}
		err = c.controller.SendCommand(payload)
	case TopicVoice:
		if payload == "" {
			return
		}
		cmd, matched := webos.VoiceCommand(payload)
		if !matched {
			log.Printf("MQTT voice phrase not recognised: %q", payload)
		}
		err = c.controller.SendCommand(cmd)
	case TopicPairing:
		err = c.controller.SendPairingCode(payload)
	case TopicConnect:
		tv, perr := ParseTarget(payload)
		if perr != nil {
			log.Printf("MQTT connect request ignored: %v", perr)
			return
		}
		// Connect blocks until the handshake is sent; keep the router free
		go func() {
			ctx, cancel := context.WithTimeout(c.ctx, connectTimeout)
			defer cancel()
			if err := c.controller.Connect(ctx, tv); err != nil {
				log.Printf("MQTT connect to %s failed: %v", tv.Address(), err)
			}
		}()
	case TopicDisconnect:
		c.controller.Disconnect()
	default:
		log.Printf("MQTT message on unexpected topic %s", msg.Topic())
	}
	if err != nil {
		log.Printf("MQTT request on %s failed: %v", msg.Topic(), err)
	}
}

// ParseTarget reads "ip" or "ip:port" into a connection target
func ParseTarget(s string) (device.TVDevice, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return device.TVDevice{}, fmt.Errorf("empty target")
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port, or a bare IPv6 address
		return device.ManualTVDevice(strings.Trim(s, "[]")), nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return device.TVDevice{}, fmt.Errorf("invalid port %q", portStr)
	}
	tv := device.ManualTVDevice(host)
	tv.Port = port
	return tv, nil
}

// PublishState publishes the session state as a retained message
func (c *Client) PublishState(state device.ConnectionState, lastError string) {
	c.publish(TopicState, map[string]any{
		"state":     state,
		"lastError": lastError,
	})
}

// PublishDevices publishes a discovery snapshot as a retained message
func (c *Client) PublishDevices(devices []device.DiscoveredDevice) {
	if devices == nil {
		devices = []device.DiscoveredDevice{}
	}
	c.publish(TopicDevices, devices)
}

func (c *Client) publish(suffix string, v any) {
	if !c.IsConnected() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("MQTT failed to marshal %s: %v", suffix, err)
		return
	}
	topic := c.Topic(suffix)
	token := c.client.Publish(topic, 1, true, data)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("MQTT publish to %s failed: %v", topic, err)
		}
	}()
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Disconnect closes the MQTT connection
func (c *Client) Disconnect() {
	c.cancel()
	c.client.Disconnect(250)
}
