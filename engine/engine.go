// Package engine wires the SetStore agent together: API client, delivery
// executor, push channel, session manager, and the event bus that connects
// them to the web UI and the local history store.
package engine

import (
	"github.com/rs/zerolog"

	"github.com/MCSets/mcsets-setstore-plugin/api"
	"github.com/MCSets/mcsets-setstore-plugin/config"
	"github.com/MCSets/mcsets-setstore-plugin/delivery"
	"github.com/MCSets/mcsets-setstore-plugin/host"
	"github.com/MCSets/mcsets-setstore-plugin/pusher"
	"github.com/MCSets/mcsets-setstore-plugin/session"
	"github.com/MCSets/mcsets-setstore-plugin/store"
)

// Executor is the delivery engine as the wiring sees it.
type Executor interface {
	Execute(d api.Delivery, source string)
	ProcessQueue()
}

// Config carries the engine's construction-time dependencies.
type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Host       host.Host
	Log        zerolog.Logger
}

// Engine owns the agent's components and their lifecycle.
type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	host       host.Host
	log        zerolog.Logger

	api      *api.Client
	executor *delivery.Executor
	session  *session.Manager
	Events   *EventBus
}

func New(c Config) *Engine {
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		host:       c.Host,
		log:        c.Log,
		Events:     NewEventBus(),
	}
}

// Start builds the component graph and begins connecting.
func (e *Engine) Start() {
	e.api = api.NewClient(e.cfg.API.BaseURL, e.cfg.APIKey, e.cfg.API.Timeout, e.log)
	e.api.LogBodies = func() bool { return e.cfg.Logging.LogRequests }

	var history delivery.History
	if e.db != nil {
		history = e.db
	}
	e.executor = delivery.New(e.cfg, e.api, e.host, history, &deliveryEmitter{bus: e.Events}, e.log)

	sink := &executorSink{executor: e.executor}
	newPush := func(ch api.ChannelConfig) session.Push {
		return pusher.NewChannel(e.cfg, ch, sink, &channelEmitter{bus: e.Events}, e.log)
	}

	e.session = session.NewManager(e.cfg, e.api, e.executor, e.host,
		newPush, &sessionEmitter{bus: e.Events}, e.log)

	e.wireEventHandlers()
	e.session.Start()

	e.log.Info().Msg("engine started")
}

// Stop shuts down the session and push channel.
func (e *Engine) Stop() {
	if e.session != nil {
		e.session.Stop()
	}
	e.log.Info().Msg("engine stopped")
}

func (e *Engine) wireEventHandlers() {
	// Session transitions are worth a log line regardless of debug toggles.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ChannelStateChangedEvent)
		e.log.Debug().
			Str("from", ev.OldState).
			Str("to", ev.NewState).
			Str("detail", ev.Detail).
			Msg("push channel state changed")
	}, EventChannelStateChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(SessionEvent)
		e.log.Warn().Str("detail", ev.Detail).Msg("session disconnected")
	}, EventSessionDisconnected)
}

// Accessors
func (e *Engine) DB() *store.DB                { return e.db }
func (e *Engine) AppConfig() *config.Config    { return e.cfg }
func (e *Engine) ConfigPath() string           { return e.configPath }
func (e *Engine) API() *api.Client             { return e.api }
func (e *Engine) Host() host.Host              { return e.host }
func (e *Engine) Executor() *delivery.Executor { return e.executor }
func (e *Engine) Session() *session.Manager    { return e.session }
