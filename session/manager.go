// Package session owns the connection to the SetStore backend: the initial
// connect, the heartbeat loop, the polling fallback, and reconnects.
package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MCSets/mcsets-setstore-plugin/api"
	"github.com/MCSets/mcsets-setstore-plugin/config"
	"github.com/MCSets/mcsets-setstore-plugin/host"
)

// ConnState is the session's connection state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Coordinator is the slice of the backend API the manager needs.
type Coordinator interface {
	Connect(serverIP string, serverPort int, serverVersion string, onlinePlayers []string) (*api.ConnectResponse, error)
	Heartbeat() (*api.HeartbeatResponse, error)
	ReportOnlinePlayers(players []string) (*api.Response, error)
	Verify(username, uuid string) (*api.VerifyResponse, error)
}

// Queue triggers delivery queue processing.
type Queue interface {
	ProcessQueue()
}

// Push is the push channel as the manager sees it.
type Push interface {
	Connect()
	Disconnect()
	IsConnected() bool
	PermanentlyDisabled() bool
}

// PushFactory builds a push channel for the config handed out at connect
// time. A new channel is built on every (re)connect that carries one.
type PushFactory func(channel api.ChannelConfig) Push

// Emitter publishes session lifecycle events.
type Emitter interface {
	EmitSessionConnected(serverID int, serverName string)
	EmitSessionDisconnected(detail string)
	EmitHeartbeat(success bool, pending int)
	EmitPlayerVerified(username, code string)
}

// Manager orchestrates the backend session.
type Manager struct {
	cfg     *config.Config
	api     Coordinator
	queue   Queue
	host    host.Host
	newPush PushFactory
	emitter Emitter
	log     zerolog.Logger

	mu         sync.Mutex
	state      ConnState
	serverID   int
	serverName string
	push       Push
	loopsOn    bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewManager(cfg *config.Config, coord Coordinator, queue Queue, h host.Host, newPush PushFactory, emitter Emitter, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		api:     coord,
		queue:   queue,
		host:    h,
		newPush: newPush,
		emitter: emitter,
		log:     log.With().Str("component", "session").Logger(),
		stopCh:  make(chan struct{}),
	}
}

// Start begins connecting in the background.
func (m *Manager) Start() {
	go m.Connect()
}

// Stop shuts the session down. Loops exit and the push channel closes.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	push := m.push
	m.push = nil
	m.state = StateDisconnected
	m.mu.Unlock()
	if push != nil {
		push.Disconnect()
	}
}

// Connect registers with the backend. On success it records the server
// identity, kicks off queue processing if work is pending, starts the push
// channel when configured, and starts the heartbeat and polling loops. On
// failure it schedules another attempt after the configured delay.
func (m *Manager) Connect() {
	if m.stopping() {
		return
	}
	m.setState(StateConnecting, "")
	m.log.Info().Msg("connecting to SetStore")

	players := m.host.OnlinePlayers()
	resp, err := m.api.Connect(m.cfg.Server.IP, m.cfg.Server.Port, m.host.Version(), players)
	if err != nil {
		m.log.Error().Err(err).Msg("error connecting to SetStore")
		m.setState(StateDisconnected, err.Error())
		m.scheduleReconnect()
		return
	}
	if resp == nil || !resp.Success {
		msg := "unknown error"
		if resp != nil && resp.Message != "" {
			msg = resp.Message
		}
		m.log.Error().Str("reason", msg).Msg("failed to connect to SetStore")
		m.setState(StateDisconnected, msg)
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	m.state = StateConnected
	m.serverID = resp.Server.ID
	m.serverName = resp.Server.Name
	m.mu.Unlock()

	m.log.Info().Int("server_id", resp.Server.ID).Str("server", resp.Server.Name).Msg("connected to SetStore")
	if m.emitter != nil {
		m.emitter.EmitSessionConnected(resp.Server.ID, resp.Server.Name)
	}

	if resp.PendingDeliveries > 0 {
		m.log.Info().Int("pending", resp.PendingDeliveries).Msg("pending deliveries")
		go m.queue.ProcessQueue()
	}

	if m.cfg.WebSocket.Enabled && resp.WebSocket != nil && m.newPush != nil {
		m.log.Info().Msg("connecting to push service")
		push := m.newPush(*resp.WebSocket)
		m.mu.Lock()
		old := m.push
		m.push = push
		m.mu.Unlock()
		// A heartbeat-triggered reconnect replaces a channel that may still
		// be running its read and reconnect loops.
		if old != nil {
			old.Disconnect()
		}
		push.Connect()
	}

	m.startLoops()
}

// Reconnect tears down the push channel and connects again.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	m.state = StateDisconnected
	push := m.push
	m.push = nil
	m.mu.Unlock()

	if push != nil {
		push.Disconnect()
	}
	go m.Connect()
}

func (m *Manager) scheduleReconnect() {
	delay := m.cfg.WebSocket.ReconnectDelay
	m.log.Debug().Dur("delay", delay).Msg("scheduling reconnect")
	time.AfterFunc(delay, func() {
		if !m.stopping() {
			m.Connect()
		}
	})
}

// startLoops starts the heartbeat and polling tickers. Safe to call on
// every successful connect; the loops run once per manager.
func (m *Manager) startLoops() {
	m.mu.Lock()
	if m.loopsOn {
		m.mu.Unlock()
		return
	}
	m.loopsOn = true
	m.mu.Unlock()

	go m.heartbeatLoop()
	if m.cfg.Polling.Enabled {
		go m.pollLoop()
	}
}

// heartbeatLoop keeps the server marked online. A heartbeat that fails or
// comes back unsuccessful flips the session to disconnected and re-enters
// Connect immediately.
func (m *Manager) heartbeatLoop() {
	ticker := time.NewTicker(m.cfg.Heartbeat.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if !m.IsConnected() {
				continue
			}
			m.heartbeat()
		}
	}
}

func (m *Manager) heartbeat() {
	resp, err := m.api.Heartbeat()
	if err != nil || resp == nil || !resp.Success {
		detail := "unsuccessful response"
		if err != nil {
			detail = err.Error()
		}
		m.log.Warn().Str("reason", detail).Msg("heartbeat failed, attempting to reconnect")
		if m.emitter != nil {
			m.emitter.EmitHeartbeat(false, 0)
		}
		m.setState(StateDisconnected, detail)
		m.Connect()
		return
	}

	m.log.Debug().Msg("heartbeat sent")
	if m.emitter != nil {
		m.emitter.EmitHeartbeat(true, resp.PendingDeliveries)
	}
	if resp.PendingDeliveries > 0 {
		m.log.Debug().Int("pending", resp.PendingDeliveries).Msg("pending deliveries")
		m.queue.ProcessQueue()
	}
}

// pollLoop fetches the queue on a timer whenever the push channel is not
// covering for us.
func (m *Manager) pollLoop() {
	ticker := time.NewTicker(m.cfg.Polling.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if !m.IsConnected() {
				continue
			}
			m.mu.Lock()
			push := m.push
			m.mu.Unlock()
			if push == nil || !push.IsConnected() {
				m.log.Debug().Msg("polling for deliveries")
				m.queue.ProcessQueue()
			}
		}
	}
}

// HandlePlayerJoin reports the new player list shortly after a join and
// triggers queue processing for that player's pending deliveries.
func (m *Manager) HandlePlayerJoin(username string) {
	if !m.IsConnected() {
		return
	}
	m.log.Debug().Str("player", username).Msg("player joined, notifying SetStore")
	time.AfterFunc(time.Second, func() {
		if m.stopping() {
			return
		}
		m.NotifyOnline()
		go m.queue.ProcessQueue()
	})
}

// HandlePlayerQuit reports the updated player list shortly after a quit.
func (m *Manager) HandlePlayerQuit(username string) {
	if !m.IsConnected() {
		return
	}
	m.log.Debug().Str("player", username).Msg("player quit, notifying SetStore")
	time.AfterFunc(250*time.Millisecond, func() {
		if !m.stopping() {
			m.NotifyOnline()
		}
	})
}

// NotifyOnline reports the current online player list to the backend.
func (m *Manager) NotifyOnline() {
	players := m.host.OnlinePlayers()
	if _, err := m.api.ReportOnlinePlayers(players); err != nil {
		m.log.Error().Err(err).Msg("failed to report online players")
		return
	}
	m.log.Debug().Int("count", len(players)).Msg("reported online players")
}

// VerifyPlayer requests an account-link verification code for a player.
func (m *Manager) VerifyPlayer(username, uuid string) (*api.VerifyResponse, error) {
	resp, err := m.api.Verify(username, uuid)
	if err != nil {
		return nil, err
	}
	if resp.Success && m.emitter != nil {
		m.emitter.EmitPlayerVerified(username, resp.Code)
	}
	return resp, nil
}

func (m *Manager) stopping() bool {
	select {
	case <-m.stopCh:
		return true
	default:
		return false
	}
}

func (m *Manager) setState(next ConnState, detail string) {
	m.mu.Lock()
	old := m.state
	m.state = next
	m.mu.Unlock()
	if old != next && next == StateDisconnected && m.emitter != nil {
		m.emitter.EmitSessionDisconnected(detail)
	}
}

// State returns the current session state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the session is connected.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// ServerInfo returns the identity recorded at connect time.
func (m *Manager) ServerInfo() (id int, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serverID, m.serverName
}

// PushConnected reports whether the push channel is currently open.
func (m *Manager) PushConnected() bool {
	m.mu.Lock()
	push := m.push
	m.mu.Unlock()
	return push != nil && push.IsConnected()
}

// PushDisabled reports whether the push channel gave up permanently.
func (m *Manager) PushDisabled() bool {
	m.mu.Lock()
	push := m.push
	m.mu.Unlock()
	return push != nil && push.PermanentlyDisabled()
}
