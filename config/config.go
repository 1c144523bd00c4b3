package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	mu sync.Mutex `yaml:"-"`

	APIKey       string `yaml:"api_key"`
	DatabasePath string `yaml:"database_path"`

	API       APIConfig       `yaml:"api"`
	Host      HostConfig      `yaml:"host"`
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Polling   PollingConfig   `yaml:"polling"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Web       WebConfig       `yaml:"web"`
	Logging   LoggingConfig   `yaml:"logging"`
	Messages  MessagesConfig  `yaml:"messages"`
}

// APIConfig defines the SetStore API endpoint settings.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// HostConfig bridges the agent to the game server through shell commands.
// ExecuteCommand and SendMessageCommand receive their input on stdin;
// ListPlayersCommand prints one "name uuid" pair per line.
type HostConfig struct {
	ExecuteCommand     string `yaml:"execute_command"`
	ListPlayersCommand string `yaml:"list_players_command"`
	SendMessageCommand string `yaml:"send_message_command"`
	ServerVersion      string `yaml:"server_version"`
}

// ServerConfig identifies this game server to the SetStore backend.
type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

// WebSocketConfig defines push channel behavior.
type WebSocketConfig struct {
	Enabled              bool          `yaml:"enabled"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"` // 0 = unlimited
}

// PollingConfig defines the queue polling fallback.
type PollingConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// HeartbeatConfig defines the keep-alive heartbeat.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// DeliveryConfig defines delivery execution behavior.
type DeliveryConfig struct {
	CommandDelay  time.Duration `yaml:"command_delay"`
	RequireOnline bool          `yaml:"require_online"`
}

// WebConfig defines the local status web server.
type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

// LoggingConfig defines log verbosity toggles.
type LoggingConfig struct {
	Debug         bool `yaml:"debug"`
	LogRequests   bool `yaml:"log_requests"`
	LogDeliveries bool `yaml:"log_deliveries"`
	LogCommands   bool `yaml:"log_commands"`
}

// MessagesConfig holds the player-facing message templates.
type MessagesConfig struct {
	Prefix             string `yaml:"prefix"`
	DeliveryReceived   string `yaml:"delivery_received"`
	DeliveryExecuted   string `yaml:"delivery_executed"`
	VerifyCode         string `yaml:"verify_code"`
	VerifyExpires      string `yaml:"verify_expires"`
	VerifyInstructions string `yaml:"verify_instructions"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		DatabasePath: "setstore.db",
		API: APIConfig{
			BaseURL: "https://mcsets.com/api/v1/setstore",
			Timeout: 30 * time.Second,
		},
		Host: HostConfig{
			ExecuteCommand:     "",
			ListPlayersCommand: "",
			SendMessageCommand: "",
			ServerVersion:      "unknown",
		},
		Server: ServerConfig{
			IP:   "localhost",
			Port: 25577,
		},
		WebSocket: WebSocketConfig{
			Enabled:              true,
			ReconnectDelay:       5 * time.Second,
			MaxReconnectAttempts: 5,
		},
		Polling: PollingConfig{
			Enabled:  true,
			Interval: 60 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 300 * time.Second,
		},
		Delivery: DeliveryConfig{
			CommandDelay:  500 * time.Millisecond,
			RequireOnline: false,
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8093,
		},
		Logging: LoggingConfig{
			LogDeliveries: true,
			LogCommands:   true,
		},
		Messages: MessagesConfig{
			Prefix:             "[SetStore] ",
			DeliveryReceived:   "Your purchase {package} has arrived!",
			DeliveryExecuted:   "{package} has been delivered to your account.",
			VerifyCode:         "Your verification code: {code}",
			VerifyExpires:      "The code expires in {minutes} minutes.",
			VerifyInstructions: "Enter it at {url} to link your account.",
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Configured reports whether an API key has been set.
func (c *Config) Configured() bool {
	return c.APIKey != "" && c.APIKey != "your-api-key-here"
}

// Message renders a message template with its prefix, applying pairwise
// placeholder replacements ("{package}", name, ...).
func (c *Config) Message(template string, replacements ...string) string {
	msg := c.Messages.Prefix + template
	for i := 0; i+1 < len(replacements); i += 2 {
		msg = strings.ReplaceAll(msg, replacements[i], replacements[i+1])
	}
	return msg
}

// Lock acquires the config mutex for multi-step mutations.
func (c *Config) Lock() { c.mu.Lock() }

// Unlock releases the config mutex.
func (c *Config) Unlock() { c.mu.Unlock() }
