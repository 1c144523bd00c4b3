package engine

import (
	"github.com/MCSets/mcsets-setstore-plugin/api"
)

// deliveryEmitter bridges the delivery package's emitter interface to the EventBus.
type deliveryEmitter struct {
	bus *EventBus
}

func (e *deliveryEmitter) EmitDeliveryReceived(id int, username, packageName, source string) {
	e.bus.Emit(Event{Type: EventDeliveryReceived, Payload: DeliveryReceivedEvent{
		DeliveryID:  int64(id),
		Username:    username,
		PackageName: packageName,
		Source:      source,
	}})
}

func (e *deliveryEmitter) EmitDeliveryCompleted(id int, username, packageName, status string, actionsExecuted int, durationMS int64) {
	e.bus.Emit(Event{Type: EventDeliveryCompleted, Payload: DeliveryCompletedEvent{
		DeliveryID:      int64(id),
		Username:        username,
		PackageName:     packageName,
		Status:          status,
		ActionsExecuted: actionsExecuted,
		DurationMS:      durationMS,
	}})
}

func (e *deliveryEmitter) EmitDeliveryFailed(id int, username, packageName, reason string) {
	e.bus.Emit(Event{Type: EventDeliveryFailed, Payload: DeliveryFailedEvent{
		DeliveryID:  int64(id),
		Username:    username,
		PackageName: packageName,
		Reason:      reason,
	}})
}

func (e *deliveryEmitter) EmitQueueProcessed(pending, dispatched int) {
	e.bus.Emit(Event{Type: EventQueueProcessed, Payload: QueueProcessedEvent{
		Pending:    pending,
		Dispatched: dispatched,
	}})
}

// channelEmitter bridges the pusher package's emitter interface to the EventBus.
type channelEmitter struct {
	bus *EventBus
}

func (e *channelEmitter) EmitChannelStateChanged(oldState, newState, detail string) {
	e.bus.Emit(Event{Type: EventChannelStateChanged, Payload: ChannelStateChangedEvent{
		OldState: oldState,
		NewState: newState,
		Detail:   detail,
	}})
}

// sessionEmitter bridges the session package's emitter interface to the EventBus.
type sessionEmitter struct {
	bus *EventBus
}

func (e *sessionEmitter) EmitSessionConnected(serverID int, serverName string) {
	e.bus.Emit(Event{Type: EventSessionConnected, Payload: SessionEvent{
		ServerID:   int64(serverID),
		ServerName: serverName,
	}})
}

func (e *sessionEmitter) EmitSessionDisconnected(detail string) {
	e.bus.Emit(Event{Type: EventSessionDisconnected, Payload: SessionEvent{Detail: detail}})
}

func (e *sessionEmitter) EmitHeartbeat(success bool, pending int) {
	e.bus.Emit(Event{Type: EventHeartbeat, Payload: HeartbeatEvent{
		Success: success,
		Pending: pending,
	}})
}

func (e *sessionEmitter) EmitPlayerVerified(username, code string) {
	e.bus.Emit(Event{Type: EventPlayerVerified, Payload: PlayerVerifiedEvent{
		Username: username,
		Code:     code,
	}})
}

// executorSink routes decoded push-channel signals to the delivery
// executor. It dispatches onto fresh goroutines so the channel's read loop
// never blocks on delivery work.
type executorSink struct {
	executor Executor
}

func (s *executorSink) Deliver(d api.Delivery) {
	go s.executor.Execute(d, "push")
}

func (s *executorSink) ProcessQueue() {
	go s.executor.ProcessQueue()
}
