package host

import (
	"bufio"
	"bytes"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ScriptHost drives a game server through operator-supplied shell commands,
// the way server wrappers (screen/tmux/systemd socket) are usually bridged.
// All host-affecting work is serialized through a single runner goroutine,
// which stands in for the server's authoritative execution context.
type ScriptHost struct {
	executeCmd string // receives the command on stdin
	listCmd    string // prints "name uuid" per line
	messageCmd string // receives "player message" on stdin
	version    string
	log        zerolog.Logger

	queue    chan func()
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewScriptHost creates a host bridged through the given shell commands.
func NewScriptHost(executeCmd, listCmd, messageCmd, version string, log zerolog.Logger) *ScriptHost {
	h := &ScriptHost{
		executeCmd: executeCmd,
		listCmd:    listCmd,
		messageCmd: messageCmd,
		version:    version,
		log:        log,
		queue:      make(chan func(), 256),
		stopCh:     make(chan struct{}),
	}
	go h.run()
	return h
}

// Stop shuts down the runner. Queued work is dropped.
func (h *ScriptHost) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *ScriptHost) run() {
	for {
		select {
		case <-h.stopCh:
			return
		case fn := <-h.queue:
			fn()
		}
	}
}

// errQueueFull is returned when the runner queue cannot take more work.
var errQueueFull = errors.New("host queue full")

// enqueue submits fn to the runner. A full queue drops fn and returns false;
// callers waiting on a result must fail fast instead of blocking forever.
func (h *ScriptHost) enqueue(fn func()) bool {
	select {
	case h.queue <- fn:
		return true
	default:
		h.log.Warn().Msg("host queue full, dropping task")
		return false
	}
}

func (h *ScriptHost) ExecuteCommand(command string) error {
	errCh := make(chan error, 1)
	if !h.enqueue(func() { errCh <- h.pipe(h.executeCmd, command) }) {
		return errQueueFull
	}
	select {
	case err := <-errCh:
		return err
	case <-h.stopCh:
		return nil
	}
}

func (h *ScriptHost) OnlinePlayers() []string {
	players := h.listPlayers()
	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.Name)
	}
	return names
}

func (h *ScriptHost) FindPlayer(username string) (Player, bool) {
	for _, p := range h.listPlayers() {
		if strings.EqualFold(p.Name, username) {
			return p, true
		}
	}
	return Player{}, false
}

func (h *ScriptHost) FindPlayerByUUID(id uuid.UUID) (Player, bool) {
	want := id.String()
	for _, p := range h.listPlayers() {
		if strings.EqualFold(p.UUID, want) {
			return p, true
		}
	}
	return Player{}, false
}

func (h *ScriptHost) SendMessage(player Player, message string) {
	if h.messageCmd == "" {
		return
	}
	h.enqueue(func() {
		if err := h.pipe(h.messageCmd, player.Name+" "+message); err != nil {
			h.log.Debug().Err(err).Str("player", player.Name).Msg("send message")
		}
	})
}

func (h *ScriptHost) Version() string { return h.version }

func (h *ScriptHost) Schedule(delay time.Duration, fn func()) {
	if delay <= 0 {
		h.enqueue(fn)
		return
	}
	time.AfterFunc(delay, func() {
		select {
		case <-h.stopCh:
		default:
			h.enqueue(fn)
		}
	})
}

// listPlayers runs the list command and parses "name uuid" lines.
// Runs inline (not on the runner): listing is read-only.
func (h *ScriptHost) listPlayers() []Player {
	if h.listCmd == "" {
		return nil
	}
	out, err := exec.Command("sh", "-c", h.listCmd).Output()
	if err != nil {
		h.log.Debug().Err(err).Msg("list players")
		return nil
	}
	var players []Player
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		p := Player{Name: fields[0]}
		if len(fields) > 1 {
			p.UUID = fields[1]
		}
		players = append(players, p)
	}
	return players
}

// pipe runs a shell command with input on stdin.
func (h *ScriptHost) pipe(command, input string) error {
	cmd := exec.Command("sh", "-c", command)
	cmd.Stdin = strings.NewReader(input + "\n")
	return cmd.Run()
}

var _ Host = (*ScriptHost)(nil)
