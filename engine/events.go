package engine

const (
	EventDeliveryReceived EventType = iota + 1
	EventDeliveryCompleted
	EventDeliveryFailed
	EventQueueProcessed
	EventChannelStateChanged
	EventSessionConnected
	EventSessionDisconnected
	EventHeartbeat
	EventPlayerVerified
)

// --- Event payloads ---

type DeliveryReceivedEvent struct {
	DeliveryID  int64
	Username    string
	PackageName string
	Source      string // "push" or "poll"
}

type DeliveryCompletedEvent struct {
	DeliveryID      int64
	Username        string
	PackageName     string
	Status          string
	ActionsExecuted int
	DurationMS      int64
}

type DeliveryFailedEvent struct {
	DeliveryID  int64
	Username    string
	PackageName string
	Reason      string
}

type QueueProcessedEvent struct {
	Pending    int
	Dispatched int
}

type ChannelStateChangedEvent struct {
	OldState string
	NewState string
	Detail   string
}

type SessionEvent struct {
	ServerID   int64
	ServerName string
	Detail     string
}

type HeartbeatEvent struct {
	Success bool
	Pending int
}

type PlayerVerifiedEvent struct {
	Username string
	Code     string
}
