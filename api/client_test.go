package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", 5*time.Second, zerolog.Nop())
}

func TestConnectSendsIdentity(t *testing.T) {
	var got connectRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/connect" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("api key header = %q", r.Header.Get("X-API-Key"))
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		json.NewEncoder(w).Encode(ConnectResponse{
			Success:           true,
			Server:            ServerInfo{ID: 12, Name: "Lobby"},
			PendingDeliveries: 1,
			WebSocket:         &ChannelConfig{Host: "push.example.com", Port: 443, AppKey: "ak", Channel: "private-server.12"},
		})
	})

	resp, err := c.Connect("play.example.com", 25565, "1.21", []string{"Alex", "Steve"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got.APIKey != "test-key" || got.ServerIP != "play.example.com" || got.ServerPort != 25565 {
		t.Errorf("request = %+v", got)
	}
	if got.ServerVersion != "1.21" || len(got.OnlinePlayers) != 2 {
		t.Errorf("request = %+v", got)
	}
	if resp.Server.ID != 12 || resp.WebSocket == nil {
		t.Errorf("response = %+v", resp)
	}
}

func TestReportDeliveryNullableError(t *testing.T) {
	var raw map[string]json.RawMessage
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deliver" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &raw)
		json.NewEncoder(w).Encode(Response{Success: true})
	})

	if _, err := c.ReportDelivery(7, StatusSuccess, []string{"give Alex x"}, "", 120); err != nil {
		t.Fatalf("report: %v", err)
	}
	if string(raw["error_message"]) != "null" {
		t.Errorf("error_message = %s, want null when empty", raw["error_message"])
	}
	if string(raw["delivery_id"]) != "7" {
		t.Errorf("delivery_id = %s", raw["delivery_id"])
	}

	if _, err := c.ReportDelivery(8, StatusFailed, []string{}, "boom", 5); err != nil {
		t.Fatalf("report: %v", err)
	}
	if string(raw["error_message"]) != `"boom"` {
		t.Errorf("error_message = %s", raw["error_message"])
	}
	if string(raw["actions_executed"]) != "[]" {
		t.Errorf("actions_executed = %s, want [] never null", raw["actions_executed"])
	}
}

func TestGetQueue(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/queue" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(QueueResponse{
			Success: true,
			Count:   1,
			Deliveries: []Delivery{{
				ID:             3,
				PlayerUsername: "Alex",
				Actions: []DeliveryAction{{
					Type:        "command",
					Value:       "give {player} raw",
					ParsedValue: "give {player} parsed",
				}},
			}},
		})
	})

	resp, err := c.GetQueue()
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(resp.Deliveries) != 1 || resp.Deliveries[0].ID != 3 {
		t.Errorf("response = %+v", resp)
	}
	if got := resp.Deliveries[0].Actions[0].ExecutableValue(); got != "give {player} parsed" {
		t.Errorf("executable value = %q, want the parsed value", got)
	}
}

func TestHeartbeat(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/heartbeat" || r.Method != http.MethodPost {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(HeartbeatResponse{Success: true, PendingDeliveries: 4})
	})

	resp, err := c.Heartbeat()
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if resp.PendingDeliveries != 4 {
		t.Errorf("pending = %d", resp.PendingDeliveries)
	}
}

func TestHTTPErrorStatusIsAnError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	if _, err := c.GetQueue(); err == nil {
		t.Error("non-2xx response should be an error")
	}
}

func TestTransportErrorIsAnError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "k", 200*time.Millisecond, zerolog.Nop())
	if _, err := c.Heartbeat(); err == nil {
		t.Error("refused connection should be an error")
	}
}

func TestChannelConfigURL(t *testing.T) {
	cc := ChannelConfig{Host: "push.example.com", Port: 6001, AppKey: "abc"}
	if got := cc.URL(); got != "ws://push.example.com:6001/app/abc" {
		t.Errorf("url = %q", got)
	}
	cc.Port = 443
	if got := cc.URL(); got != "wss://push.example.com:443/app/abc" {
		t.Errorf("url = %q", got)
	}
}

func TestVerify(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req verifyRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "Alex" {
			t.Errorf("username = %q", req.Username)
		}
		json.NewEncoder(w).Encode(VerifyResponse{Success: true, Code: "XYZ789", ExpiresIn: 300})
	})

	resp, err := c.Verify("Alex", "")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if resp.Code != "XYZ789" {
		t.Errorf("code = %q", resp.Code)
	}
}
