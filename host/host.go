// Package host abstracts the game server the agent runs against. The
// delivery core depends only on this interface, never on a concrete server
// integration. Implementations own execution-context affinity: commands and
// player messages must run on the server's single authoritative context,
// never on the caller's goroutine.
package host

import (
	"time"

	"github.com/google/uuid"
)

// Player is a recipient currently present on the server.
type Player struct {
	Name string
	UUID string
}

// Host is the capability surface the delivery core needs from the server.
type Host interface {
	// ExecuteCommand runs one console command on the server's execution
	// context. The command string is final; no further substitution happens.
	ExecuteCommand(command string) error

	// OnlinePlayers returns the names of currently present players.
	OnlinePlayers() []string

	// FindPlayer looks up a present player by username.
	FindPlayer(username string) (Player, bool)

	// FindPlayerByUUID looks up a present player by UUID.
	FindPlayerByUUID(id uuid.UUID) (Player, bool)

	// SendMessage delivers an informational chat message to a player.
	// Best effort; failures are swallowed by the implementation.
	SendMessage(player Player, message string)

	// Version returns the server version string reported on connect.
	Version() string

	// Schedule runs fn on the server's execution context after delay.
	// A zero delay means "as soon as the context is free". Never blocks.
	Schedule(delay time.Duration, fn func())
}
