// Package mqtt manages the broker session: connect, subscribe, publish,
// keepalive and reconnect, plus the Home Assistant discovery and status
// publishers layered on top of it.
package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"ledstripd/internal/metrics"
)

// ErrNotConnected is returned by Publish while the session is down. The
// payload is dropped and counted; recovery is the reconnect loop's job.
var ErrNotConnected = errors.New("mqtt session not connected")

// ConnState is the session connection state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Topics are the device's configurable command surface.
type Topics struct {
	Data    string // raw pixel frames, datagram byte layout
	Command string // legacy JSON commands
	Status  string // periodic status reports
}

// Config holds broker session settings.
type Config struct {
	Broker         string
	Port           int
	SSL            bool
	Username       string
	Password       string
	ClientID       string
	Keepalive      time.Duration
	QoS            byte
	Topics         Topics
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	OpTimeout      time.Duration // bound for subscribe/publish token waits
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 30 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 2 * time.Second
	}
	if c.Keepalive <= 0 {
		c.Keepalive = 60 * time.Second
	}
}

// brokerURL builds the paho broker URL, switching only the socket scheme
// when TLS is enabled.
func (c *Config) brokerURL() string {
	scheme := "tcp"
	if c.SSL {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Broker, c.Port)
}

// Message is an incoming broker message handed to the control loop.
type Message struct {
	Topic   string
	Payload []byte
}

// Snapshot is a read-only view of session state for status reporting.
type Snapshot struct {
	Connected         bool
	State             string
	ReconnectAttempts int
	Dropped           uint64
	SubscribedTopics  []string
	LastPublish       time.Time
}

// Session drives the broker connection as an explicit state machine. All
// methods are called from the control loop; paho's callback goroutines
// only ever touch the incoming and lost channels.
type Session struct {
	cfg    Config
	ha     HATopics
	logger *slog.Logger

	// newClient is a seam for tests; defaults to pahomqtt.NewClient.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	client       pahomqtt.Client
	state        ConnState
	connectToken pahomqtt.Token
	incoming     chan Message
	lost         chan error

	subscribed  []string
	reconnects  int
	dropped     uint64
	lastAttempt time.Time
	lastPublish time.Time
	onConnect   func()
}

// NewSession creates a session; nothing is dialed until the first Poll.
func NewSession(cfg Config, logger *slog.Logger) *Session {
	cfg.applyDefaults()
	return &Session{
		cfg:       cfg,
		ha:        TopicsFor(cfg.ClientID),
		logger:    logger.With("component", "mqtt"),
		newClient: pahomqtt.NewClient,
		incoming:  make(chan Message, 64),
		lost:      make(chan error, 1),
	}
}

// SetOnConnect registers the callback invoked once per established
// connection, after subscriptions and the availability publish. The
// controller uses it to re-emit discovery and state.
func (s *Session) SetOnConnect(fn func()) { s.onConnect = fn }

// HA returns the Home Assistant topic set for this device.
func (s *Session) HA() HATopics { return s.ha }

// Topics returns the configured device topic set.
func (s *Session) Topics() Topics { return s.cfg.Topics }

// IsConnected reports whether publishes are currently possible.
func (s *Session) IsConnected() bool { return s.state == StateConnected }

// Snapshot returns the current session state for status publishing.
func (s *Session) Snapshot() Snapshot {
	topics := make([]string, len(s.subscribed))
	copy(topics, s.subscribed)
	return Snapshot{
		Connected:         s.state == StateConnected,
		State:             s.state.String(),
		ReconnectAttempts: s.reconnects,
		Dropped:           s.dropped,
		SubscribedTopics:  topics,
		LastPublish:       s.lastPublish,
	}
}

// Poll advances the state machine by at most one bounded step.
func (s *Session) Poll(now time.Time) {
	switch s.state {
	case StateDisconnected:
		if s.lastAttempt.IsZero() || now.Sub(s.lastAttempt) >= s.cfg.RetryInterval {
			s.beginConnect(now)
		}

	case StateConnecting:
		select {
		case <-s.connectToken.Done():
			if err := s.connectToken.Error(); err != nil {
				s.fail(now, fmt.Errorf("connect: %w", err))
				return
			}
			s.finishConnect(now)
		default:
		}

	case StateConnected:
		select {
		case err := <-s.lost:
			s.fail(now, fmt.Errorf("connection lost: %w", err))
			return
		default:
		}
		if !s.client.IsConnected() {
			s.fail(now, errors.New("connection dropped"))
		}
	}
}

// PollIncoming drains one queued message without blocking.
func (s *Session) PollIncoming() (Message, bool) {
	select {
	case msg := <-s.incoming:
		return msg, true
	default:
		return Message{}, false
	}
}

// Publish sends a payload honoring the requested QoS and retain flag. A
// publish while disconnected is dropped and counted, never retried.
func (s *Session) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if s.state != StateConnected {
		s.dropped++
		metrics.MQTTDropped()
		return ErrNotConnected
	}
	token := s.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(s.cfg.OpTimeout) {
		s.fail(time.Now(), fmt.Errorf("publish %s: token timeout", topic))
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		s.fail(time.Now(), fmt.Errorf("publish %s: %w", topic, err))
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	s.lastPublish = time.Now()
	return nil
}

// Close publishes the offline availability message and disconnects.
func (s *Session) Close() {
	if s.client == nil {
		return
	}
	if s.state == StateConnected {
		s.Publish(s.ha.Availability, []byte("offline"), s.cfg.QoS, true)
	}
	s.client.Disconnect(250)
	s.state = StateDisconnected
	s.subscribed = nil
}

func (s *Session) beginConnect(now time.Time) {
	if s.client == nil {
		s.client = s.newClient(s.options())
	}
	s.lastAttempt = now
	s.state = StateConnecting
	s.connectToken = s.client.Connect()
	s.logger.Debug("mqtt connecting", "broker", s.cfg.brokerURL())
}

func (s *Session) options() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(s.cfg.brokerURL()).
		SetClientID(s.cfg.ClientID).
		SetKeepAlive(s.cfg.Keepalive).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetWill(s.ha.Availability, "offline", s.cfg.QoS, true).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			select {
			case s.lost <- err:
			default:
			}
		})
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	return opts
}

func (s *Session) finishConnect(now time.Time) {
	// Drain any stale loss signal from a previous connection.
	select {
	case <-s.lost:
	default:
	}

	for _, topic := range []string{s.cfg.Topics.Data, s.cfg.Topics.Command, s.ha.Command} {
		if topic == "" {
			continue
		}
		token := s.client.Subscribe(topic, s.cfg.QoS, s.enqueue)
		if !token.WaitTimeout(s.cfg.OpTimeout) {
			s.fail(now, fmt.Errorf("subscribe %s: token timeout", topic))
			return
		}
		if err := token.Error(); err != nil {
			s.fail(now, fmt.Errorf("subscribe %s: %w", topic, err))
			return
		}
		s.subscribed = append(s.subscribed, topic)
	}

	s.state = StateConnected
	s.logger.Info("mqtt connected", "broker", s.cfg.brokerURL(), "topics", len(s.subscribed))

	if err := s.Publish(s.ha.Availability, []byte("online"), s.cfg.QoS, true); err != nil {
		return // Publish already forced a disconnect
	}
	if s.onConnect != nil {
		s.onConnect()
	}
}

// fail transitions to Disconnected, clears subscriptions and schedules
// the next attempt one retry interval out.
func (s *Session) fail(now time.Time, err error) {
	s.logger.Warn("mqtt session down", "err", err)
	if s.client != nil {
		s.client.Disconnect(250)
	}
	s.state = StateDisconnected
	s.subscribed = nil
	s.reconnects++
	metrics.MQTTReconnect()
	s.lastAttempt = now
}

// enqueue runs on paho's router goroutine; the channel is the only shared
// boundary with the control loop.
func (s *Session) enqueue(_ pahomqtt.Client, m pahomqtt.Message) {
	select {
	case s.incoming <- Message{Topic: m.Topic(), Payload: m.Payload()}:
	default:
		s.logger.Warn("incoming queue full, message dropped", "topic", m.Topic())
	}
}
