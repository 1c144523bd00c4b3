package delivery

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MCSets/mcsets-setstore-plugin/api"
	"github.com/MCSets/mcsets-setstore-plugin/config"
	"github.com/MCSets/mcsets-setstore-plugin/host"
)

// --- Mock coordinator ---

type reportCall struct {
	deliveryID int
	status     string
	executed   []string
	errMsg     string
}

type mockCoordinator struct {
	mu           sync.Mutex
	queue        *api.QueueResponse
	queueErr     error
	reports      []reportCall
	reported     chan reportCall
	blockReports chan struct{} // when set, ReportDelivery waits for close
}

func newMockCoordinator() *mockCoordinator {
	return &mockCoordinator{reported: make(chan reportCall, 16)}
}

func (m *mockCoordinator) GetQueue() (*api.QueueResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue, m.queueErr
}

func (m *mockCoordinator) ReportDelivery(id int, status string, executed []string, errMsg string, durationMs int64) (*api.Response, error) {
	m.mu.Lock()
	block := m.blockReports
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	call := reportCall{id, status, executed, errMsg}
	m.mu.Lock()
	m.reports = append(m.reports, call)
	m.mu.Unlock()
	m.reported <- call
	return &api.Response{Success: true}, nil
}

func (m *mockCoordinator) waitReport(t *testing.T) reportCall {
	t.Helper()
	select {
	case call := <-m.reported:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery report")
		return reportCall{}
	}
}

// --- Mock host ---

type mockHost struct {
	mu       sync.Mutex
	commands []string
	failOn   string // command substring that fails
	players  []host.Player
	messages []string
}

func (m *mockHost) ExecuteCommand(command string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, command)
	if m.failOn != "" && strings.Contains(command, m.failOn) {
		return fmt.Errorf("command rejected")
	}
	return nil
}

func (m *mockHost) OnlinePlayers() []string {
	names := make([]string, 0, len(m.players))
	for _, p := range m.players {
		names = append(names, p.Name)
	}
	return names
}

func (m *mockHost) FindPlayer(username string) (host.Player, bool) {
	for _, p := range m.players {
		if strings.EqualFold(p.Name, username) {
			return p, true
		}
	}
	return host.Player{}, false
}

func (m *mockHost) FindPlayerByUUID(id uuid.UUID) (host.Player, bool) {
	for _, p := range m.players {
		if strings.EqualFold(p.UUID, id.String()) {
			return p, true
		}
	}
	return host.Player{}, false
}

func (m *mockHost) SendMessage(p host.Player, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
}

func (m *mockHost) Version() string { return "test" }

func (m *mockHost) Schedule(delay time.Duration, fn func()) { fn() }

func (m *mockHost) executedCommands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.commands))
	copy(out, m.commands)
	return out
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.APIKey = "test-key"
	cfg.Delivery.CommandDelay = 0
	cfg.Logging.LogDeliveries = false
	cfg.Logging.LogCommands = false
	return cfg
}

func testExecutor(cfg *config.Config, coord *mockCoordinator, h host.Host) *Executor {
	return New(cfg, coord, h, nil, nil, zerolog.Nop())
}

func delivery(id int, actions ...api.DeliveryAction) api.Delivery {
	return api.Delivery{
		ID:             id,
		PlayerUsername: "Alex",
		PlayerUUID:     "f81d4fae-7dec-41d0-a765-00a0c91e6bf6",
		PackageName:    "VIP Rank",
		Actions:        actions,
	}
}

func commandAction(value string) api.DeliveryAction {
	return api.DeliveryAction{Type: api.ActionTypeCommand, Value: value}
}

func TestExecutePlaceholderSubstitution(t *testing.T) {
	coord := newMockCoordinator()
	h := &mockHost{}
	exec := testExecutor(testConfig(), coord, h)

	exec.Execute(delivery(1, commandAction("give {player} diamond 1")), "poll")
	call := coord.waitReport(t)

	if call.status != api.StatusSuccess {
		t.Errorf("status = %q, want %q", call.status, api.StatusSuccess)
	}
	cmds := h.executedCommands()
	if len(cmds) != 1 || cmds[0] != "give Alex diamond 1" {
		t.Errorf("commands = %v, want [give Alex diamond 1]", cmds)
	}
	if len(call.executed) != 1 || call.executed[0] != "give Alex diamond 1" {
		t.Errorf("executed = %v", call.executed)
	}
}

func TestExecuteUUIDPlaceholder(t *testing.T) {
	coord := newMockCoordinator()
	h := &mockHost{}
	exec := testExecutor(testConfig(), coord, h)

	exec.Execute(delivery(2, commandAction("link {username} {uuid}")), "poll")
	coord.waitReport(t)

	cmds := h.executedCommands()
	want := "link Alex f81d4fae-7dec-41d0-a765-00a0c91e6bf6"
	if len(cmds) != 1 || cmds[0] != want {
		t.Errorf("commands = %v, want [%s]", cmds, want)
	}
}

func TestExecutePrefersParsedValue(t *testing.T) {
	coord := newMockCoordinator()
	h := &mockHost{}
	exec := testExecutor(testConfig(), coord, h)

	exec.Execute(delivery(3, api.DeliveryAction{
		Type:        api.ActionTypeCommand,
		Value:       "give {player} raw",
		ParsedValue: "give {player} parsed",
	}), "poll")
	coord.waitReport(t)

	cmds := h.executedCommands()
	if len(cmds) != 1 || cmds[0] != "give Alex parsed" {
		t.Errorf("commands = %v, want parsed value", cmds)
	}
}

func TestExecutePartialStatus(t *testing.T) {
	coord := newMockCoordinator()
	h := &mockHost{failOn: "broken"}
	exec := testExecutor(testConfig(), coord, h)

	exec.Execute(delivery(4,
		commandAction("first {player}"),
		commandAction("broken {player}"),
		commandAction("third {player}"),
	), "poll")
	call := coord.waitReport(t)

	if call.status != api.StatusPartial {
		t.Errorf("status = %q, want %q", call.status, api.StatusPartial)
	}
	if len(call.executed) != 2 {
		t.Errorf("executed = %v, want the two successful commands", call.executed)
	}
	for _, c := range call.executed {
		if strings.Contains(c, "broken") {
			t.Errorf("failed command %q should not be in executed list", c)
		}
	}
	if call.errMsg == "" {
		t.Error("error message should be set for partial status")
	}
}

func TestExecuteAllActionsFailed(t *testing.T) {
	coord := newMockCoordinator()
	h := &mockHost{failOn: "give"}
	exec := testExecutor(testConfig(), coord, h)

	exec.Execute(delivery(5, commandAction("give {player} a"), commandAction("give {player} b")), "poll")
	call := coord.waitReport(t)

	if call.status != api.StatusFailed {
		t.Errorf("status = %q, want %q", call.status, api.StatusFailed)
	}
}

func TestExecuteNoActions(t *testing.T) {
	coord := newMockCoordinator()
	h := &mockHost{}
	exec := testExecutor(testConfig(), coord, h)

	exec.Execute(delivery(6), "poll")
	call := coord.waitReport(t)

	if call.status != api.StatusFailed {
		t.Errorf("status = %q, want %q for a delivery with no actions", call.status, api.StatusFailed)
	}
	if call.errMsg != "No actions could be executed" {
		t.Errorf("errMsg = %q, want %q", call.errMsg, "No actions could be executed")
	}
}

func TestExecuteOnlyNonCommandActions(t *testing.T) {
	coord := newMockCoordinator()
	h := &mockHost{}
	exec := testExecutor(testConfig(), coord, h)

	exec.Execute(delivery(7, api.DeliveryAction{Type: "message", Value: "hi"}), "poll")
	call := coord.waitReport(t)

	if call.status != api.StatusFailed {
		t.Errorf("status = %q, want %q", call.status, api.StatusFailed)
	}
	if call.errMsg != "No actions could be executed" {
		t.Errorf("errMsg = %q, want %q", call.errMsg, "No actions could be executed")
	}
}

func TestExecuteRequireOnline(t *testing.T) {
	cfg := testConfig()
	cfg.Delivery.RequireOnline = true
	coord := newMockCoordinator()
	h := &mockHost{} // no players online
	exec := testExecutor(cfg, coord, h)

	exec.Execute(delivery(8, commandAction("give {player} x")), "poll")
	call := coord.waitReport(t)

	if call.status != api.StatusFailed {
		t.Errorf("status = %q, want %q", call.status, api.StatusFailed)
	}
	if !strings.Contains(call.errMsg, "Alex") {
		t.Errorf("errMsg = %q, want it to name the player", call.errMsg)
	}
	if len(h.executedCommands()) != 0 {
		t.Errorf("no commands should run when recipient is required online and absent")
	}
}

func TestExecuteNotifiesOnlinePlayer(t *testing.T) {
	coord := newMockCoordinator()
	h := &mockHost{players: []host.Player{{Name: "Alex"}}}
	exec := testExecutor(testConfig(), coord, h)

	exec.Execute(delivery(9, commandAction("give {player} x")), "poll")
	coord.waitReport(t)

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) != 2 {
		t.Fatalf("messages = %d, want 2 (received + executed)", len(h.messages))
	}
	for _, msg := range h.messages {
		if !strings.Contains(msg, "VIP Rank") {
			t.Errorf("message %q should mention the package", msg)
		}
	}
}

func TestExecuteDeduplicates(t *testing.T) {
	coord := newMockCoordinator()
	h := &mockHost{}
	cfg := testConfig()
	exec := New(cfg, coord, h, nil, nil, zerolog.Nop())

	// Block the report so the first execution stays in flight.
	release := make(chan struct{})
	coord.blockReports = release

	d := delivery(10, commandAction("give {player} x"))
	exec.Execute(d, "push")

	if !exec.IsProcessing(10) {
		t.Fatal("delivery should be in flight until the report completes")
	}
	exec.Execute(d, "poll") // duplicate signal, must be ignored

	close(release)
	coord.waitReport(t)

	// Give a duplicate report a moment to (incorrectly) arrive.
	select {
	case <-coord.reported:
		t.Fatal("duplicate delivery was executed and reported twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestProcessQueueSingleFlight(t *testing.T) {
	coord := newMockCoordinator()
	h := &mockHost{}
	cfg := testConfig()
	exec := testExecutor(cfg, coord, h)

	// Hold the single-flight gate and verify a concurrent pass is a no-op.
	if !exec.queueBusy.CompareAndSwap(false, true) {
		t.Fatal("gate should be free")
	}
	coord.mu.Lock()
	coord.queue = &api.QueueResponse{Success: true, Deliveries: []api.Delivery{delivery(11, commandAction("x"))}}
	coord.mu.Unlock()

	exec.ProcessQueue() // returns immediately, gate held elsewhere

	select {
	case <-coord.reported:
		t.Fatal("concurrent ProcessQueue should not have dispatched anything")
	case <-time.After(100 * time.Millisecond):
	}
	exec.queueBusy.Store(false)

	exec.ProcessQueue()
	call := coord.waitReport(t)
	if call.deliveryID != 11 {
		t.Errorf("deliveryID = %d, want 11", call.deliveryID)
	}
	if exec.queueBusy.Load() {
		t.Error("gate should be released after a pass")
	}
}

func TestProcessQueueFetchFailure(t *testing.T) {
	coord := newMockCoordinator()
	coord.queueErr = fmt.Errorf("connection refused")
	exec := testExecutor(testConfig(), coord, &mockHost{})

	exec.ProcessQueue() // must not panic, silent no-op

	if exec.queueBusy.Load() {
		t.Error("gate should be released after a failed fetch")
	}
}

func TestProcessQueueSkipsInFlight(t *testing.T) {
	coord := newMockCoordinator()
	h := &mockHost{}
	exec := testExecutor(testConfig(), coord, h)

	d := delivery(12, commandAction("give {player} x"))
	if !exec.markProcessing(d) {
		t.Fatal("mark should succeed")
	}
	coord.mu.Lock()
	coord.queue = &api.QueueResponse{Success: true, Deliveries: []api.Delivery{d}}
	coord.mu.Unlock()

	exec.ProcessQueue()

	select {
	case <-coord.reported:
		t.Fatal("in-flight delivery should be skipped by the queue pass")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestProcessingCount(t *testing.T) {
	exec := testExecutor(testConfig(), newMockCoordinator(), &mockHost{})

	if got := exec.ProcessingCount(); got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
	exec.markProcessing(delivery(20))
	exec.markProcessing(delivery(21))
	if got := exec.ProcessingCount(); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
	exec.unmarkProcessing(20)
	if got := exec.ProcessingCount(); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
	if exec.IsProcessing(20) {
		t.Error("20 should no longer be processing")
	}
	if !exec.IsProcessing(21) {
		t.Error("21 should still be processing")
	}
}
