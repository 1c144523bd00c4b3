package pusher

import (
	"encoding/json"
	"fmt"

	"github.com/MCSets/mcsets-setstore-plugin/api"
)

// Event names used by the push service.
const (
	EventConnectionEstablished = "pusher:connection_established"
	EventSubscribe             = "pusher:subscribe"
	EventSubscriptionSucceeded = "pusher:subscription_succeeded"
	EventSubscriptionError     = "pusher:subscription_error"
	EventPing                  = "pusher:ping"
	EventPong                  = "pusher:pong"

	// Delivery events. The backend emits both names for the same payload.
	EventDeliveryNew   = "delivery.new"
	EventDeliveryClass = `App\Events\DeliveryEvent`

	EventDeliveryPending = "delivery.pending"
)

// Envelope is the wire format of every push-channel message.
// Data is usually a JSON string containing more JSON.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// dataBytes unwraps the envelope's data field. The service double-encodes
// inbound data as a JSON string; outbound frames carry a plain object, and
// both shapes are accepted here.
func (e *Envelope) dataBytes() ([]byte, error) {
	if len(e.Data) == 0 {
		return nil, fmt.Errorf("envelope has no data")
	}
	if e.Data[0] == '"' {
		var s string
		if err := json.Unmarshal(e.Data, &s); err != nil {
			return nil, fmt.Errorf("unwrap data string: %w", err)
		}
		return []byte(s), nil
	}
	return e.Data, nil
}

// connectionEstablishedData is the handshake payload.
type connectionEstablishedData struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

// subscribeData is the payload of an outbound subscribe frame.
type subscribeData struct {
	Channel string `json:"channel"`
	Auth    string `json:"auth,omitempty"`
}

// deliveryEventData wraps a pushed delivery.
type deliveryEventData struct {
	Delivery *api.Delivery `json:"delivery"`
}

// pendingData announces queued deliveries awaiting a poll.
type pendingData struct {
	Count int `json:"count"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
