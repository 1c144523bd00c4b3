package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	headerAPIKey = "X-API-Key"
	contentJSON  = "application/json"
)

// Client talks to the SetStore backend API. All methods are synchronous
// blocking calls; callers run them on background goroutines.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger

	// LogBodies enables request/response body logging for diagnostics.
	LogBodies func() bool
}

// NewClient creates an API client with the given endpoint and timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log:       log,
		LogBodies: func() bool { return false },
	}
}

// connectRequest is the /connect request payload.
type connectRequest struct {
	APIKey        string   `json:"api_key"`
	ServerIP      string   `json:"server_ip"`
	ServerPort    int      `json:"server_port"`
	ServerVersion string   `json:"server_version"`
	OnlinePlayers []string `json:"online_players"`
}

// deliverRequest is the /deliver request payload.
type deliverRequest struct {
	DeliveryID      int      `json:"delivery_id"`
	Status          string   `json:"status"`
	ActionsExecuted []string `json:"actions_executed"`
	ErrorMessage    *string  `json:"error_message"`
	DurationMs      int64    `json:"duration_ms"`
}

// onlineRequest is the /online request payload.
type onlineRequest struct {
	Players []string `json:"players"`
}

// verifyRequest is the /verify request payload.
type verifyRequest struct {
	Username string `json:"username"`
	UUID     string `json:"uuid"`
}

// Connect registers the server with the SetStore API.
func (c *Client) Connect(serverIP string, serverPort int, serverVersion string, onlinePlayers []string) (*ConnectResponse, error) {
	req := connectRequest{
		APIKey:        c.apiKey,
		ServerIP:      serverIP,
		ServerPort:    serverPort,
		ServerVersion: serverVersion,
		OnlinePlayers: onlinePlayers,
	}
	var resp ConnectResponse
	if err := c.post("/connect", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetQueue fetches the pending delivery list.
func (c *Client) GetQueue() (*QueueResponse, error) {
	var resp QueueResponse
	if err := c.get("/queue", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReportDelivery reports the outcome of one delivery execution.
func (c *Client) ReportDelivery(deliveryID int, status string, actionsExecuted []string, errorMessage string, durationMs int64) (*Response, error) {
	req := deliverRequest{
		DeliveryID:      deliveryID,
		Status:          status,
		ActionsExecuted: actionsExecuted,
		DurationMs:      durationMs,
	}
	if errorMessage != "" {
		req.ErrorMessage = &errorMessage
	}
	if actionsExecuted == nil {
		req.ActionsExecuted = []string{}
	}
	var resp Response
	if err := c.post("/deliver", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReportOnlinePlayers reports the currently online player names.
func (c *Client) ReportOnlinePlayers(players []string) (*Response, error) {
	if players == nil {
		players = []string{}
	}
	var resp Response
	if err := c.post("/online", onlineRequest{Players: players}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Heartbeat keeps the server marked online with the backend.
func (c *Client) Heartbeat() (*HeartbeatResponse, error) {
	var resp HeartbeatResponse
	if err := c.post("/heartbeat", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify requests a short-lived account-link code for a player.
func (c *Client) Verify(username, uuid string) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.post("/verify", verifyRequest{Username: username, UUID: uuid}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(path string, result any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("setstore GET %s: %w", path, err)
	}
	return c.do(req, path, result)
}

func (c *Client) post(path string, body any, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("setstore marshal %s: %w", path, err)
	}
	if c.LogBodies() {
		c.log.Info().Str("path", path).RawJSON("body", data).Msg("api request")
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("setstore POST %s: %w", path, err)
	}
	req.Header.Set("Content-Type", contentJSON)
	return c.do(req, path, result)
}

func (c *Client) do(req *http.Request, path string, result any) error {
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set("Accept", contentJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("setstore %s %s: %w", req.Method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("setstore read body %s: %w", path, err)
	}
	if c.LogBodies() {
		c.log.Info().Str("path", path).Int("status", resp.StatusCode).Bytes("body", data).Msg("api response")
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("setstore HTTP %d on %s: %d bytes", resp.StatusCode, path, len(data))
	}
	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("setstore decode %s: %w", path, err)
		}
	}
	return nil
}
