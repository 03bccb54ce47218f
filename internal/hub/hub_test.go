package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rickgao/collab-relay/internal/metrics"
	"github.com/rickgao/collab-relay/internal/protocol"
	"github.com/rickgao/collab-relay/internal/room"
)

type mockTransport struct {
	mu       sync.Mutex
	received []protocol.Frame
	closed   int
	sendErr  error
}

func (m *mockTransport) Send(frame protocol.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, frame)
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockTransport) frames() []protocol.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Frame(nil), m.received...)
}

func (m *mockTransport) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockTransport) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, f := range m.frames() {
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(f.Data, &env); err != nil {
			t.Fatalf("unmarshal frame %q: %v", f.Data, err)
		}
		out = append(out, env.Type)
	}
	return out
}

func newTestManager() (*Manager, *metrics.Collector) {
	collector := metrics.NewCollector(metrics.DefaultConfig())
	return NewManager(room.NewRegistry(nil), collector, nil), collector
}

func countEvents(c *metrics.Collector, eventType string) int {
	n := 0
	for _, e := range c.Events(0) {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func TestBroadcast_ExcludesSender(t *testing.T) {
	tests := []struct {
		name      string
		clients   []string
		exclude   string
		wantCount map[string]int
	}{
		{
			name:      "sender excluded",
			clients:   []string{"sender", "recv1", "recv2"},
			exclude:   "sender",
			wantCount: map[string]int{"sender": 0, "recv1": 1, "recv2": 1},
		},
		{
			name:      "no exclusion",
			clients:   []string{"a", "b"},
			exclude:   "",
			wantCount: map[string]int{"a": 1, "b": 1},
		},
		{
			name:      "single client in room",
			clients:   []string{"sender"},
			exclude:   "sender",
			wantCount: map[string]int{"sender": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager()
			transports := make(map[string]*mockTransport)
			for _, id := range tt.clients {
				tr := &mockTransport{}
				transports[id] = tr
				m.Connect(tr, "room1", id)
			}

			res, err := m.Broadcaster().Broadcast("room1", protocol.UpdateRelay{Data: []byte{1}, From: tt.exclude}, tt.exclude)
			if err != nil {
				t.Fatalf("Broadcast failed: %v", err)
			}

			for id, want := range tt.wantCount {
				if got := len(transports[id].frames()); got != want {
					t.Errorf("client %s received %d frames, want %d", id, got, want)
				}
			}
			if len(res.Delivered) != len(tt.clients)-boolToInt(tt.exclude != "") {
				t.Errorf("Delivered = %v", res.Delivered)
			}
		})
	}
}

func TestBroadcast_NoCrossRoom(t *testing.T) {
	m, _ := newTestManager()
	sender := &mockTransport{}
	other := &mockTransport{}
	m.Connect(sender, "room1", "sender")
	m.Connect(other, "room2", "other")

	m.Broadcaster().BroadcastBinary("room1", []byte{0xff}, "sender")

	if got := len(other.frames()); got != 0 {
		t.Errorf("other room received %d frames", got)
	}
}

func TestBroadcastBinary_FrameKind(t *testing.T) {
	m, _ := newTestManager()
	recv := &mockTransport{}
	m.Connect(&mockTransport{}, "r", "a")
	m.Connect(recv, "r", "b")

	res := m.Broadcaster().BroadcastBinary("r", []byte{0x0a, 0x0b}, "a")
	if len(res.Delivered) != 1 || res.Delivered[0] != "b" {
		t.Fatalf("Delivered = %v, want [b]", res.Delivered)
	}

	frames := recv.frames()
	if len(frames) != 1 || frames[0].Kind != protocol.BinaryFrame || string(frames[0].Data) != "\x0a\x0b" {
		t.Errorf("frames = %+v", frames)
	}
}

func TestBroadcast_FailedRecipientReleasedAfterFanOut(t *testing.T) {
	m, collector := newTestManager()

	good1 := &mockTransport{}
	bad := &mockTransport{sendErr: errors.New("peer gone")}
	good2 := &mockTransport{}
	m.Connect(good1, "r", "good1")
	m.Connect(bad, "r", "bad")
	m.Connect(good2, "r", "good2")

	res, err := m.Broadcaster().Broadcast("r", protocol.Pong{}, "")
	if err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	if len(res.Failed) != 1 || res.Failed[0].ClientID != "bad" {
		t.Fatalf("Failed = %+v, want [bad]", res.Failed)
	}
	if len(res.Delivered) != 2 {
		t.Errorf("Delivered = %v, want 2 entries", res.Delivered)
	}

	if got := m.Registry().ConnectionCount("r"); got != 2 {
		t.Errorf("ConnectionCount = %d, want 2", got)
	}
	if bad.closeCount() != 1 {
		t.Errorf("failed transport closed %d times, want 1", bad.closeCount())
	}

	// Each survivor: the pong, then user_left for the failed peer.
	for name, tr := range map[string]*mockTransport{"good1": good1, "good2": good2} {
		types := tr.types(t)
		if len(types) != 2 || types[0] != protocol.TypePong || types[1] != protocol.TypeUserLeft {
			t.Errorf("%s received %v, want [pong user_left]", name, types)
		}
	}
	if collector.Snapshot().ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", collector.Snapshot().ErrorCount)
	}
}

func TestManager_DisconnectIdempotent(t *testing.T) {
	m, collector := newTestManager()
	peer := &mockTransport{}
	leaver := &mockTransport{}
	m.Connect(peer, "r", "peer")
	m.Connect(leaver, "r", "leaver")
	m.Registry().Join("r", room.UserInfo{ID: "leaver"})

	if !m.Disconnect("r", "leaver") {
		t.Fatal("first Disconnect = false, want true")
	}
	if m.Disconnect("r", "leaver") {
		t.Error("second Disconnect = true, want false")
	}
	if m.Disconnect("nowhere", "leaver") {
		t.Error("Disconnect on unknown room = true, want false")
	}

	if got := countEvents(collector, metrics.EventDisconnect); got != 1 {
		t.Errorf("disconnect events = %d, want 1", got)
	}
	if got := m.Registry().ConnectionCount("r"); got != 1 {
		t.Errorf("ConnectionCount = %d, want 1", got)
	}
	if _, ok := m.Registry().User("r", "leaver"); ok {
		t.Error("presence survived Disconnect")
	}

	frames := peer.frames()
	if len(frames) != 1 {
		t.Fatalf("peer received %d frames, want 1", len(frames))
	}
	var left struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(frames[0].Data, &left); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if left.Type != protocol.TypeUserLeft || left.UserID != "leaver" {
		t.Errorf("peer received %+v", left)
	}
}

func TestManager_ReleaseIdempotent(t *testing.T) {
	m, collector := newTestManager()
	tr := &mockTransport{}
	conn := m.Connect(tr, "r", "c1")

	if !m.Release(conn) {
		t.Fatal("first Release = false")
	}
	if m.Release(conn) {
		t.Error("second Release = true")
	}
	if m.Disconnect("r", "c1") {
		t.Error("Disconnect after Release = true")
	}
	if got := countEvents(collector, metrics.EventDisconnect); got != 1 {
		t.Errorf("disconnect events = %d, want 1", got)
	}
}

func TestManager_ConnectCollisionReplacesStale(t *testing.T) {
	m, collector := newTestManager()
	oldTr := &mockTransport{}
	newTr := &mockTransport{}

	oldConn := m.Connect(oldTr, "r", "dup")
	newConn := m.Connect(newTr, "r", "dup")

	if oldTr.closeCount() != 1 {
		t.Errorf("stale transport closed %d times, want 1", oldTr.closeCount())
	}
	if got := collector.Snapshot().ReconnectCount; got != 1 {
		t.Errorf("ReconnectCount = %d, want 1", got)
	}

	// The stale session's cleanup must not evict the new connection.
	if m.Release(oldConn) {
		t.Error("Release(stale) = true")
	}
	conns := m.Registry().Connections("r", "")
	if len(conns) != 1 || conns[0] != newConn {
		t.Errorf("Connections = %v, want only the new connection", conns)
	}
}

func TestManager_ConnectionCountInvariant(t *testing.T) {
	m, collector := newTestManager()

	const n = 50
	conns := make([]*room.Connection, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conns[i] = m.Connect(&mockTransport{}, "demo", fmt.Sprintf("c%d", i))
		}(i)
	}
	wg.Wait()

	// Disconnect every even client twice, concurrently, via both paths.
	for i := 0; i < n; i += 2 {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			m.Release(conns[i])
		}(i)
		go func(i int) {
			defer wg.Done()
			m.Disconnect("demo", fmt.Sprintf("c%d", i))
		}(i)
	}
	wg.Wait()

	if got := m.Registry().ConnectionCount("demo"); got != n/2 {
		t.Errorf("ConnectionCount = %d, want %d", got, n/2)
	}
	if got := countEvents(collector, metrics.EventConnect); got != n {
		t.Errorf("connect events = %d, want %d", got, n)
	}
	if got := countEvents(collector, metrics.EventDisconnect); got != n/2 {
		t.Errorf("disconnect events = %d, want %d", got, n/2)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
