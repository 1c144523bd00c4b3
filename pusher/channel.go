// Package pusher maintains the push channel that delivers real-time
// purchase notifications, speaking the Pusher wire protocol over a
// websocket.
package pusher

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/MCSets/mcsets-setstore-plugin/api"
	"github.com/MCSets/mcsets-setstore-plugin/config"
)

// State is the channel's connection state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateHandshakeWait
	StateSubscribed
	StateDisconnected
	StatePermanentlyDisabled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshakeWait:
		return "handshake_wait"
	case StateSubscribed:
		return "subscribed"
	case StateDisconnected:
		return "disconnected"
	case StatePermanentlyDisabled:
		return "permanently_disabled"
	default:
		return "unknown"
	}
}

// maxHTTPErrorsBeforeDisable is the number of consecutive handshake
// rejections (HTTP 400/404 class) after which the channel gives up for good.
const maxHTTPErrorsBeforeDisable = 3

// Sink receives work decoded off the channel. Implementations must not
// block: both methods are called from the channel's read loop.
type Sink interface {
	Deliver(d api.Delivery)
	ProcessQueue()
}

// Emitter publishes channel state transitions.
type Emitter interface {
	EmitChannelStateChanged(oldState, newState, detail string)
}

// Channel is the push-channel state machine. One instance serves one
// ChannelConfig for its whole life; after PermanentlyDisabled it never
// reconnects.
type Channel struct {
	cfg     *config.Config
	channel api.ChannelConfig
	sink    Sink
	emitter Emitter
	log     zerolog.Logger

	dialer *websocket.Dialer

	mu                    sync.Mutex
	conn                  *websocket.Conn
	state                 State
	socketID              string
	reconnectAttempts     int
	consecutiveHTTPErrors int
	stopped               bool
}

func NewChannel(cfg *config.Config, channel api.ChannelConfig, sink Sink, emitter Emitter, log zerolog.Logger) *Channel {
	return &Channel{
		cfg:     cfg,
		channel: channel,
		sink:    sink,
		emitter: emitter,
		log:     log.With().Str("component", "pusher").Logger(),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Connect dials the push service asynchronously. A no-op when the channel
// is permanently disabled or already stopped.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.state == StatePermanentlyDisabled || c.stopped {
		c.mu.Unlock()
		c.log.Debug().Msg("channel disabled, skipping connection")
		return
	}
	c.setStateLocked(StateConnecting, "")
	c.mu.Unlock()

	go c.dial()
}

func (c *Channel) dial() {
	url := c.channel.URL()
	c.log.Debug().Str("url", url).Msg("connecting to push service")

	conn, resp, err := c.dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		reason := err.Error()
		if resp != nil {
			reason = resp.Status
		}
		c.log.Error().Err(err).Str("url", url).Msg("push connection failed")
		c.handleClose(reason)
		return
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.reconnectAttempts = 0
	c.setStateLocked(StateHandshakeWait, "")
	c.mu.Unlock()

	c.log.Info().Msg("push channel connected")
	c.readLoop(conn)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			reason := err.Error()
			if ce, ok := err.(*websocket.CloseError); ok && ce.Text != "" {
				reason = ce.Text
			}
			c.handleClose(reason)
			return
		}
		c.handleMessage(data)
	}
}

func (c *Channel) handleMessage(data []byte) {
	c.log.Debug().Bytes("frame", data).Msg("push message")

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Error().Err(err).Msg("error parsing push message")
		return
	}

	switch env.Event {
	case EventConnectionEstablished:
		c.handleConnectionEstablished(&env)
	case EventSubscriptionSucceeded:
		c.log.Info().Str("channel", c.channel.Channel).Msg("subscribed to channel")
	case EventSubscriptionError:
		c.log.Error().Str("channel", c.channel.Channel).Msg("failed to subscribe to channel")
	case EventPing:
		c.sendPong()
	case EventDeliveryNew, EventDeliveryClass:
		c.handleDeliveryEvent(&env)
	case EventDeliveryPending:
		c.handlePendingDeliveries(&env)
	default:
		if !strings.HasPrefix(env.Event, "pusher:") {
			c.log.Debug().Str("event", env.Event).Msg("unknown event")
		}
	}
}

func (c *Channel) handleConnectionEstablished(env *Envelope) {
	raw, err := env.dataBytes()
	if err != nil {
		c.log.Error().Err(err).Msg("error handling connection established")
		return
	}
	var hs connectionEstablishedData
	if err := json.Unmarshal(raw, &hs); err != nil {
		c.log.Error().Err(err).Msg("error handling connection established")
		return
	}

	c.mu.Lock()
	c.socketID = hs.SocketID
	c.mu.Unlock()

	c.log.Debug().Str("socket_id", hs.SocketID).Msg("push session established")
	c.subscribe()
}

func (c *Channel) subscribe() {
	c.mu.Lock()
	conn := c.conn
	socketID := c.socketID
	c.mu.Unlock()
	if conn == nil {
		return
	}

	name := c.channel.Channel
	data := subscribeData{Channel: name}
	if strings.HasPrefix(name, "private-") {
		data.Auth = c.cfg.APIKey + ":" + socketID + ":" + name
	}

	frame, err := encodeFrame(EventSubscribe, data)
	if err != nil {
		c.log.Error().Err(err).Msg("encode subscribe frame")
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.log.Error().Err(err).Msg("send subscribe frame")
		return
	}

	c.mu.Lock()
	c.setStateLocked(StateSubscribed, name)
	c.mu.Unlock()
	c.log.Debug().Str("channel", name).Msg("subscribing to channel")
}

func (c *Channel) sendPong() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	frame, err := encodeFrame(EventPong, struct{}{})
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.log.Debug().Err(err).Msg("send pong")
	}
}

func (c *Channel) handleDeliveryEvent(env *Envelope) {
	raw, err := env.dataBytes()
	if err != nil {
		c.log.Error().Err(err).Msg("error handling delivery event")
		return
	}
	var payload deliveryEventData
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.log.Error().Err(err).Msg("error handling delivery event")
		return
	}
	if payload.Delivery == nil {
		return
	}

	c.log.Info().Stringer("delivery", payload.Delivery).Msg("new delivery received via push")
	c.sink.Deliver(*payload.Delivery)
}

func (c *Channel) handlePendingDeliveries(env *Envelope) {
	raw, err := env.dataBytes()
	if err != nil {
		c.log.Error().Err(err).Msg("error handling pending deliveries")
		return
	}
	var payload pendingData
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.log.Error().Err(err).Msg("error handling pending deliveries")
		return
	}
	if payload.Count > 0 {
		c.log.Info().Int("count", payload.Count).Msg("pending deliveries announced")
		c.sink.ProcessQueue()
	}
}

// handleClose runs on every transport close, deliberate or not, and decides
// between reconnecting and giving up.
func (c *Channel) handleClose(reason string) {
	c.mu.Lock()
	c.conn = nil
	c.socketID = ""

	if c.stopped || c.state == StatePermanentlyDisabled {
		c.mu.Unlock()
		return
	}

	if isHTTPError(reason) {
		c.consecutiveHTTPErrors++
		if c.consecutiveHTTPErrors >= maxHTTPErrorsBeforeDisable {
			c.setStateLocked(StatePermanentlyDisabled, reason)
			c.mu.Unlock()
			c.log.Warn().Msg("push service not available, disabling push and using polling instead")
			return
		}
	} else {
		c.consecutiveHTTPErrors = 0
	}

	c.setStateLocked(StateDisconnected, reason)
	c.mu.Unlock()

	c.log.Debug().Str("reason", reason).Msg("push channel disconnected")
	c.scheduleReconnect()
}

// isHTTPError reports whether a close reason looks like the service
// rejecting the upgrade at the HTTP level.
func isHTTPError(reason string) bool {
	return strings.Contains(reason, "400") || strings.Contains(reason, "Bad Request") ||
		strings.Contains(reason, "404") || strings.Contains(reason, "Not Found")
}

func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if c.stopped || c.state == StatePermanentlyDisabled {
		c.mu.Unlock()
		return
	}

	c.reconnectAttempts++
	attempts := c.reconnectAttempts
	maxAttempts := c.cfg.WebSocket.MaxReconnectAttempts
	if maxAttempts > 0 && attempts > maxAttempts {
		c.setStateLocked(StatePermanentlyDisabled, "max reconnect attempts reached")
		c.mu.Unlock()
		c.log.Warn().Msg("max push reconnection attempts reached, using polling instead")
		return
	}
	c.mu.Unlock()

	delay := c.cfg.WebSocket.ReconnectDelay
	c.log.Debug().Dur("delay", delay).Int("attempt", attempts).Msg("reconnecting to push service")

	time.AfterFunc(delay, func() {
		if !c.IsConnected() && !c.PermanentlyDisabled() {
			c.Connect()
		}
	})
}

// Disconnect closes the channel for good. It never reconnects afterwards.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.stopped = true
	conn := c.conn
	c.conn = nil
	c.socketID = ""
	c.setStateLocked(StateIdle, "disconnect requested")
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.log.Debug().Err(err).Msg("error closing push connection")
		}
	}
}

// setStateLocked transitions the state and notifies the emitter. Callers
// hold c.mu.
func (c *Channel) setStateLocked(next State, detail string) {
	if c.state == next {
		return
	}
	old := c.state
	c.state = next
	if c.emitter != nil {
		c.emitter.EmitChannelStateChanged(old.String(), next.String(), detail)
	}
}

// State returns the current channel state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the transport is open.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && (c.state == StateHandshakeWait || c.state == StateSubscribed)
}

// PermanentlyDisabled reports whether the channel has given up for good.
func (c *Channel) PermanentlyDisabled() bool {
	return c.State() == StatePermanentlyDisabled
}

// SocketID returns the session token assigned by the push service.
func (c *Channel) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}
