// Package delivery executes purchase deliveries fetched from or pushed by
// the SetStore backend.
package delivery

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MCSets/mcsets-setstore-plugin/api"
	"github.com/MCSets/mcsets-setstore-plugin/config"
	"github.com/MCSets/mcsets-setstore-plugin/host"
	"github.com/MCSets/mcsets-setstore-plugin/store"
)

// Coordinator is the slice of the backend API the executor needs.
type Coordinator interface {
	GetQueue() (*api.QueueResponse, error)
	ReportDelivery(deliveryID int, status string, actionsExecuted []string, errorMessage string, durationMs int64) (*api.Response, error)
}

// Emitter publishes delivery lifecycle events.
type Emitter interface {
	EmitDeliveryReceived(id int, username, packageName, source string)
	EmitDeliveryCompleted(id int, username, packageName, status string, actionsExecuted int, durationMS int64)
	EmitDeliveryFailed(id int, username, packageName, reason string)
	EmitQueueProcessed(pending, dispatched int)
}

// History persists executed deliveries locally. Nil disables persistence.
type History interface {
	RecordDelivery(r store.DeliveryRecord) (int64, error)
	LogCommand(e store.CommandLogEntry) error
}

// Executor runs deliveries against the host, one pass of the remote queue
// at a time, deduplicating deliveries that arrive via both push and poll.
type Executor struct {
	cfg     *config.Config
	api     Coordinator
	host    host.Host
	history History
	emitter Emitter
	log     zerolog.Logger

	queueBusy atomic.Bool

	mu         sync.Mutex
	processing map[int]api.Delivery
}

func New(cfg *config.Config, coord Coordinator, h host.Host, history History, emitter Emitter, log zerolog.Logger) *Executor {
	return &Executor{
		cfg:        cfg,
		api:        coord,
		host:       h,
		history:    history,
		emitter:    emitter,
		log:        log.With().Str("component", "delivery").Logger(),
		processing: make(map[int]api.Delivery),
	}
}

// ProcessQueue fetches pending deliveries and executes any not already in
// flight. Only one pass runs at a time; concurrent calls return immediately.
func (e *Executor) ProcessQueue() {
	if !e.queueBusy.CompareAndSwap(false, true) {
		e.log.Debug().Msg("queue processing already in progress, skipping")
		return
	}
	defer e.queueBusy.Store(false)

	resp, err := e.api.GetQueue()
	if err != nil {
		e.log.Debug().Err(err).Msg("failed to fetch queue")
		return
	}
	if resp == nil || !resp.Success {
		e.log.Debug().Msg("no deliveries to process")
		return
	}
	if len(resp.Deliveries) == 0 {
		e.log.Debug().Msg("queue is empty")
		return
	}

	e.log.Info().Int("count", len(resp.Deliveries)).Msg("processing pending deliveries")

	dispatched := 0
	for _, d := range resp.Deliveries {
		if !e.IsProcessing(d.ID) {
			e.Execute(d, "poll")
			dispatched++
		}
	}
	if e.emitter != nil {
		e.emitter.EmitQueueProcessed(len(resp.Deliveries), dispatched)
	}
}

// Execute runs a single delivery. Duplicate calls for an in-flight delivery
// id return immediately. The outcome is reported to the backend
// asynchronously; the id stays in the processing set until that reporting
// attempt finishes.
func (e *Executor) Execute(d api.Delivery, source string) {
	if !e.markProcessing(d) {
		e.log.Debug().Int("delivery_id", d.ID).Msg("delivery is already being processed")
		return
	}

	if e.emitter != nil {
		e.emitter.EmitDeliveryReceived(d.ID, d.PlayerUsername, d.PackageName, source)
	}

	start := time.Now()
	var executed []string
	errorMessage := ""
	status := api.StatusSuccess

	// A panicking delivery must report failed without taking down the batch.
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Int("delivery_id", d.ID).Interface("panic", r).Msg("delivery panicked")
			go e.report(d, api.StatusFailed, nil,
				fmt.Sprintf("Internal error: %v", r), time.Since(start).Milliseconds(), source)
		}
	}()

	if e.cfg.Logging.LogDeliveries {
		e.log.Info().
			Int("delivery_id", d.ID).
			Str("player", d.PlayerUsername).
			Str("package", d.PackageName).
			Msg("processing delivery")
	}

	player, online := e.resolvePlayer(d)

	if e.cfg.Delivery.RequireOnline && !online {
		errorMessage = fmt.Sprintf("Player '%s' not found on server", d.PlayerUsername)
		status = api.StatusFailed
		e.log.Warn().Int("delivery_id", d.ID).Str("reason", errorMessage).Msg("delivery failed")
	} else {
		executed, status, errorMessage = e.runActions(d)

		if online {
			e.host.SendMessage(player, e.cfg.Message(e.cfg.Messages.DeliveryReceived, "{package}", d.PackageName))
			e.host.SendMessage(player, e.cfg.Message(e.cfg.Messages.DeliveryExecuted, "{package}", d.PackageName))
		}
	}

	duration := time.Since(start).Milliseconds()
	go e.report(d, status, executed, errorMessage, duration, source)
}

// runActions dispatches every command action in order. The first action runs
// inline; the n-th is scheduled n*commandDelay after the pass starts and is
// not awaited, so a scheduled action that later fails still counts as
// dispatched.
func (e *Executor) runActions(d api.Delivery) (executed []string, status, errorMessage string) {
	status = api.StatusSuccess
	allSucceeded := true
	anySucceeded := false
	delayOffset := time.Duration(0)
	commandDelay := e.cfg.Delivery.CommandDelay

	for _, action := range d.Actions {
		if action.Type != api.ActionTypeCommand {
			continue
		}

		command := action.ExecutableValue()
		command = strings.ReplaceAll(command, "{player}", d.PlayerUsername)
		command = strings.ReplaceAll(command, "{username}", d.PlayerUsername)
		if d.PlayerUUID != "" {
			command = strings.ReplaceAll(command, "{uuid}", d.PlayerUUID)
		}

		if delayOffset > 0 {
			cmd := command
			e.host.Schedule(delayOffset, func() {
				e.runCommand(cmd, d.ID)
			})
		} else if err := e.runCommand(command, d.ID); err != nil {
			allSucceeded = false
			errorMessage = "Failed to execute command: " + err.Error()
			e.log.Error().Err(err).Int("delivery_id", d.ID).Msg("failed to execute action")
			continue
		}

		executed = append(executed, command)
		anySucceeded = true
		delayOffset += commandDelay
	}

	if !allSucceeded && anySucceeded {
		status = api.StatusPartial
	} else if !anySucceeded {
		status = api.StatusFailed
		if errorMessage == "" {
			errorMessage = "No actions could be executed"
		}
	}
	return executed, status, errorMessage
}

func (e *Executor) runCommand(command string, deliveryID int) error {
	if e.cfg.Logging.LogCommands {
		e.log.Info().Int("delivery_id", deliveryID).Str("command", command).Msg("executing")
	}

	err := e.host.ExecuteCommand(command)

	if e.history != nil {
		entry := store.CommandLogEntry{DeliveryID: int64(deliveryID), Command: command, Success: err == nil}
		if err != nil {
			entry.Error = err.Error()
		}
		if logErr := e.history.LogCommand(entry); logErr != nil {
			e.log.Debug().Err(logErr).Msg("failed to log command")
		}
	}

	if err != nil {
		e.log.Error().Err(err).Int("delivery_id", deliveryID).Str("command", command).Msg("command failed")
	}
	return err
}

// report sends the outcome to the backend exactly once, records local
// history, and releases the processing slot. Reporting failures are logged,
// never retried.
func (e *Executor) report(d api.Delivery, status string, executed []string, errorMessage string, durationMS int64, source string) {
	defer e.unmarkProcessing(d.ID)

	if executed == nil {
		executed = []string{}
	}
	reported := false
	if _, err := e.api.ReportDelivery(d.ID, status, executed, errorMessage, durationMS); err != nil {
		e.log.Error().Err(err).Int("delivery_id", d.ID).Msg("failed to report delivery result")
	} else {
		reported = true
		if e.cfg.Logging.LogDeliveries {
			e.log.Info().Int("delivery_id", d.ID).Str("status", status).Msg("delivery completed")
		}
	}

	if e.history != nil {
		_, err := e.history.RecordDelivery(store.DeliveryRecord{
			DeliveryID:      int64(d.ID),
			PlayerUsername:  d.PlayerUsername,
			PlayerUUID:      d.PlayerUUID,
			PackageName:     d.PackageName,
			Status:          status,
			ActionsTotal:    len(d.Actions),
			ActionsExecuted: len(executed),
			ErrorMessage:    errorMessage,
			DurationMS:      durationMS,
			Source:          source,
			Reported:        reported,
		})
		if err != nil {
			e.log.Debug().Err(err).Int("delivery_id", d.ID).Msg("failed to record delivery history")
		}
	}

	if e.emitter != nil {
		if status == api.StatusFailed {
			e.emitter.EmitDeliveryFailed(d.ID, d.PlayerUsername, d.PackageName, errorMessage)
		} else {
			e.emitter.EmitDeliveryCompleted(d.ID, d.PlayerUsername, d.PackageName, status, len(executed), durationMS)
		}
	}
}

// resolvePlayer looks up the recipient by UUID first, then by username.
// A malformed UUID just falls through to the name lookup.
func (e *Executor) resolvePlayer(d api.Delivery) (host.Player, bool) {
	if d.PlayerUUID != "" {
		if id, err := uuid.Parse(d.PlayerUUID); err != nil {
			e.log.Debug().Str("uuid", d.PlayerUUID).Msg("invalid uuid format")
		} else if p, ok := e.host.FindPlayerByUUID(id); ok {
			return p, true
		}
	}
	return e.host.FindPlayer(d.PlayerUsername)
}

func (e *Executor) markProcessing(d api.Delivery) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.processing[d.ID]; exists {
		return false
	}
	e.processing[d.ID] = d
	return true
}

func (e *Executor) unmarkProcessing(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.processing, id)
}

// IsProcessing reports whether a delivery id is currently in flight.
func (e *Executor) IsProcessing(id int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.processing[id]
	return ok
}

// ProcessingCount returns the number of deliveries currently in flight.
func (e *Executor) ProcessingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.processing)
}
