package room

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rickgao/collab-relay/internal/protocol"
)

type nopTransport struct{}

func (nopTransport) Send(protocol.Frame) error { return nil }
func (nopTransport) Close() error              { return nil }

func newConn(roomID, clientID string) *Connection {
	return &Connection{RoomID: roomID, ClientID: clientID, Transport: nopTransport{}}
}

func TestRegistry_GetOrCreateConcurrent(t *testing.T) {
	g := NewRegistry(nil)

	const n = 64
	rooms := make([]*Room, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i] = g.GetOrCreate("demo")
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if rooms[i] != rooms[0] {
			t.Fatalf("GetOrCreate returned distinct rooms for the same id")
		}
	}
	if got := len(g.ListRooms()); got != 1 {
		t.Errorf("ListRooms() has %d rooms, want 1", got)
	}
}

func TestRegistry_DocumentOverwrite(t *testing.T) {
	g := NewRegistry(nil)

	if doc := g.Document("r"); len(doc) != 0 {
		t.Fatalf("Document of unknown room = %q, want empty", doc)
	}

	g.StoreDocument("r", []byte("a"))
	g.StoreDocument("r", []byte("b"))

	if got := string(g.Document("r")); got != "b" {
		t.Errorf("Document() = %q, want %q", got, "b")
	}
}

func TestRegistry_DocumentIsCopied(t *testing.T) {
	g := NewRegistry(nil)

	blob := []byte("abc")
	g.StoreDocument("r", blob)
	blob[0] = 'X'

	got := g.Document("r")
	if string(got) != "abc" {
		t.Fatalf("stored document aliased caller slice: %q", got)
	}
	got[1] = 'Y'
	if string(g.Document("r")) != "abc" {
		t.Errorf("returned document aliased internal state")
	}
}

func TestRegistry_DocumentDoesNotCreateRoom(t *testing.T) {
	g := NewRegistry(nil)
	_ = g.Document("ghost")
	_ = g.Users("ghost")

	if got := g.Stats().Rooms; got != 0 {
		t.Errorf("Stats().Rooms = %d, want 0", got)
	}
}

func TestRegistry_AddConnectionReplacesStale(t *testing.T) {
	g := NewRegistry(nil)

	first := newConn("r", "c1")
	second := newConn("r", "c1")

	if replaced := g.AddConnection(first); replaced != nil {
		t.Fatalf("first AddConnection replaced %v", replaced)
	}
	if replaced := g.AddConnection(second); replaced != first {
		t.Fatalf("AddConnection replaced = %v, want first", replaced)
	}
	if got := g.ConnectionCount("r"); got != 1 {
		t.Errorf("ConnectionCount = %d, want 1", got)
	}

	// The stale handle must not evict its replacement.
	if g.RemoveConnection(first) {
		t.Error("RemoveConnection(stale) = true, want false")
	}
	if got := g.ConnectionCount("r"); got != 1 {
		t.Errorf("ConnectionCount after stale removal = %d, want 1", got)
	}
	if !g.RemoveConnection(second) {
		t.Error("RemoveConnection(current) = false, want true")
	}
	if g.RemoveConnection(second) {
		t.Error("second RemoveConnection(current) = true, want false")
	}
}

func TestRegistry_RemoveClientDropsPresence(t *testing.T) {
	g := NewRegistry(nil)
	c := newConn("r", "c1")
	g.AddConnection(c)
	g.Join("r", UserInfo{ID: "c1", Name: "Ada"})

	conn, ok := g.RemoveClient("r", "c1")
	if !ok || conn != c {
		t.Fatalf("RemoveClient = (%v, %v), want (c, true)", conn, ok)
	}
	if _, ok := g.User("r", "c1"); ok {
		t.Error("presence survived RemoveClient")
	}
	if _, ok := g.RemoveClient("r", "c1"); ok {
		t.Error("second RemoveClient reported a removal")
	}
	if _, ok := g.RemoveClient("nowhere", "c1"); ok {
		t.Error("RemoveClient on unknown room reported a removal")
	}
}

func TestRegistry_ConnectionsExclude(t *testing.T) {
	g := NewRegistry(nil)
	for _, id := range []string{"a", "b", "c"} {
		g.AddConnection(newConn("r", id))
	}

	conns := g.Connections("r", "b")
	if len(conns) != 2 {
		t.Fatalf("len(Connections) = %d, want 2", len(conns))
	}
	for _, c := range conns {
		if c.ClientID == "b" {
			t.Error("excluded client present in snapshot")
		}
	}
	if conns := g.Connections("missing", ""); len(conns) != 0 {
		t.Errorf("Connections(missing) = %v, want empty", conns)
	}
}

func TestRegistry_ConcurrentJoin(t *testing.T) {
	g := NewRegistry(nil)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("client-%03d", i)
			g.AddConnection(newConn("demo", id))
			g.Join("demo", UserInfo{ID: id, Name: id})
		}(i)
	}
	wg.Wait()

	users := g.Users("demo")
	if len(users) != n {
		t.Fatalf("len(Users) = %d, want %d", len(users), n)
	}
	seen := make(map[string]bool, n)
	for _, u := range users {
		if seen[u.ID] {
			t.Fatalf("duplicate presence entry %q", u.ID)
		}
		seen[u.ID] = true
	}
	if got := g.ConnectionCount("demo"); got != n {
		t.Errorf("ConnectionCount = %d, want %d", got, n)
	}
}

func TestRegistry_PresenceUpdates(t *testing.T) {
	g := NewRegistry(nil)

	pos := 5
	if _, ok := g.UpdateCursor("r", "c1", &pos); ok {
		t.Fatal("UpdateCursor succeeded before join")
	}

	g.Join("r", UserInfo{ID: "c1", Name: "Ada", Color: "#fff"})
	u, ok := g.UpdateCursor("r", "c1", &pos)
	if !ok || u.CursorPosition == nil || *u.CursorPosition != 5 {
		t.Fatalf("UpdateCursor = (%+v, %v)", u, ok)
	}
	pos = 99
	if got, _ := g.User("r", "c1"); *got.CursorPosition != 5 {
		t.Errorf("cursor aliased caller pointer: %d", *got.CursorPosition)
	}

	u, ok = g.UpdateSelection("r", "c1", &protocol.Range{Start: 1, End: 4})
	if !ok || u.Selection == nil || u.Selection.End != 4 {
		t.Fatalf("UpdateSelection = (%+v, %v)", u, ok)
	}
	u, _ = g.UpdateSelection("r", "c1", nil)
	if u.Selection != nil {
		t.Errorf("Selection = %v, want nil", u.Selection)
	}
	if u.Name != "Ada" || u.CursorPosition == nil {
		t.Errorf("selection update clobbered other fields: %+v", u)
	}
}

func TestRegistry_PresenceExcludeAndOrder(t *testing.T) {
	g := NewRegistry(nil)
	for _, id := range []string{"c", "a", "b"} {
		g.Join("r", UserInfo{ID: id})
	}

	users := g.Presence("r", "b")
	if len(users) != 2 || users[0].ID != "a" || users[1].ID != "c" {
		t.Errorf("Presence(r, b) = %+v, want [a c]", users)
	}
}

func TestRegistry_ListRooms(t *testing.T) {
	g := NewRegistry(nil)
	g.AddConnection(newConn("beta", "x"))
	g.AddConnection(newConn("beta", "y"))
	g.StoreDocument("alpha", []byte("12345"))

	rooms := g.ListRooms()
	if len(rooms) != 2 {
		t.Fatalf("len(ListRooms) = %d, want 2", len(rooms))
	}
	if rooms[0].ID != "alpha" || rooms[0].DocSizeBytes != 5 || rooms[0].UserCount != 0 {
		t.Errorf("rooms[0] = %+v", rooms[0])
	}
	if rooms[1].ID != "beta" || rooms[1].UserCount != 2 {
		t.Errorf("rooms[1] = %+v", rooms[1])
	}

	if s := g.Summary("missing"); s.ID != "missing" || s.UserCount != 0 {
		t.Errorf("Summary(missing) = %+v", s)
	}
}

func TestRegistry_RoomsPersistWhenEmpty(t *testing.T) {
	g := NewRegistry(nil)
	c := newConn("r", "c1")
	g.AddConnection(c)
	g.RemoveConnection(c)

	if got := g.Stats().Rooms; got != 1 {
		t.Errorf("Stats().Rooms = %d, want 1", got)
	}
}

func TestRegistry_SimulatedUsers(t *testing.T) {
	g := NewRegistry(nil)
	g.Join("r", UserInfo{ID: "real"})

	added := g.AddSimulatedUsers("r", 8)
	if len(added) != 8 {
		t.Fatalf("len(added) = %d, want 8", len(added))
	}
	for i, u := range added {
		if !u.Simulated {
			t.Errorf("added[%d] not flagged simulated", i)
		}
		if u.Color != simulatedColors[i%len(simulatedColors)] {
			t.Errorf("added[%d].Color = %q", i, u.Color)
		}
	}
	if got := len(g.Users("r")); got != 9 {
		t.Errorf("len(Users) = %d, want 9", got)
	}

	removed := g.RemoveSimulatedUsers("r")
	if len(removed) != 8 {
		t.Errorf("len(removed) = %d, want 8", len(removed))
	}
	users := g.Users("r")
	if len(users) != 1 || users[0].ID != "real" {
		t.Errorf("Users after removal = %+v", users)
	}
}

func TestRegistry_Stats(t *testing.T) {
	g := NewRegistry(nil)
	g.AddConnection(newConn("a", "1"))
	g.AddConnection(newConn("b", "2"))
	g.Join("b", UserInfo{ID: "2"})
	g.StoreDocument("b", []byte("xyz"))

	want := Stats{Rooms: 2, Connections: 2, Users: 1, DocumentBytes: 3}
	if got := g.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}
