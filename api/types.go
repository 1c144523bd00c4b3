package api

import "fmt"

// Delivery statuses reported back to the SetStore API.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// ActionTypeCommand is the only action type currently executed.
const ActionTypeCommand = "command"

// Delivery is one unit of purchased content pending execution.
type Delivery struct {
	ID             int              `json:"id"`
	PlayerUsername string           `json:"player_username"`
	PlayerUUID     string           `json:"player_uuid"`
	PackageName    string           `json:"package_name"`
	Actions        []DeliveryAction `json:"actions"`
}

func (d Delivery) String() string {
	return fmt.Sprintf("Delivery{id=%d, player=%q, package=%q}", d.ID, d.PlayerUsername, d.PackageName)
}

// DeliveryAction is a single effect to apply as part of a delivery.
type DeliveryAction struct {
	Type        string `json:"type"`
	Value       string `json:"value"`
	ParsedValue string `json:"parsed_value"`
}

// ExecutableValue returns the parsed value when present, otherwise the raw value.
func (a DeliveryAction) ExecutableValue() string {
	if a.ParsedValue != "" {
		return a.ParsedValue
	}
	return a.Value
}

// ServerInfo identifies this server as registered with the backend.
type ServerInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ChannelConfig is the push channel configuration returned by /connect.
type ChannelConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	AppKey  string `json:"app_key"`
	Channel string `json:"channel"`
}

// URL builds the websocket endpoint for this channel config.
func (c ChannelConfig) URL() string {
	scheme := "ws"
	if c.Port == 443 {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/app/%s", scheme, c.Host, c.Port, c.AppKey)
}

// ConnectResponse is the /connect response envelope.
type ConnectResponse struct {
	Success           bool           `json:"success"`
	Server            ServerInfo     `json:"server"`
	PendingDeliveries int            `json:"pending_deliveries"`
	WebSocket         *ChannelConfig `json:"websocket"`
	Message           string         `json:"message"`
}

// QueueResponse is the /queue response envelope.
type QueueResponse struct {
	Success    bool       `json:"success"`
	Count      int        `json:"count"`
	Deliveries []Delivery `json:"deliveries"`
	Message    string     `json:"message"`
}

// HeartbeatResponse is the /heartbeat response envelope.
type HeartbeatResponse struct {
	Success           bool   `json:"success"`
	PendingDeliveries int    `json:"pending_deliveries"`
	Timestamp         string `json:"timestamp"`
	Message           string `json:"message"`
}

// VerifyResponse is the /verify response envelope.
type VerifyResponse struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	ExpiresIn int    `json:"expires_in"`
	StoreURL  string `json:"store_url"`
	Message   string `json:"message"`
}

// Response is the generic success/message envelope.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
