package room

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/gametrack/network"
	"github.com/wfunc/gametrack/session"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(msgID uint16, data []byte) error       { return nil }
func (m *MockConnection) SendJSON(msgID uint16, v interface{}) error { return nil }
func (m *MockConnection) Close() error                               { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                       { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)        {}
func (m *MockConnection) ReadPacket() (*network.Packet, error)       { return nil, nil }

// newTestSession creates a dummy session for testing purposes.
func newTestSession(id string) *session.Session {
	return session.NewSession(id, &MockConnection{})
}

func TestManager_GetOrCreate(t *testing.T) {
	manager := NewRoomManager()

	roomID := "game_1"
	room := manager.GetOrCreate(roomID)

	if room == nil {
		t.Fatal("GetOrCreate should not return nil")
	}

	if room.ID != roomID {
		t.Errorf("Expected room ID %s, got %s", roomID, room.ID)
	}

	// Second call must return the same instance, not a fresh room.
	again := manager.GetOrCreate(roomID)
	if again != room {
		t.Error("GetOrCreate should return the same room instance on repeat calls")
	}

	retrievedRoom, exists := manager.GetRoom(roomID)
	if !exists {
		t.Fatal("GetRoom should find the created room")
	}
	if retrievedRoom != room {
		t.Error("GetRoom should return the same room instance")
	}
}

func TestRoom_AddMember(t *testing.T) {
	room := NewRoom("game_2")

	sess := newTestSession("session1")
	room.AddMember(sess)

	if room.MemberCount() != 1 {
		t.Errorf("Expected member count to be 1, got %d", room.MemberCount())
	}
	if !room.HasMember(sess.GetID()) {
		t.Error("Member was not correctly added to the room")
	}
	if !sess.InRoom(room.ID) {
		t.Error("Session should record its own room membership")
	}

	// Re-joining has no effect
	room.AddMember(sess)
	if room.MemberCount() != 1 {
		t.Errorf("Expected member count to stay 1 after re-join, got %d", room.MemberCount())
	}
}

func TestRoom_RemoveMember(t *testing.T) {
	room := NewRoom("game_3")

	sess := newTestSession("session1")
	room.AddMember(sess)

	room.RemoveMember(sess.GetID())

	if room.MemberCount() != 0 {
		t.Errorf("Expected member count to be 0 after removal, got %d", room.MemberCount())
	}
	if sess.InRoom(room.ID) {
		t.Error("Session should forget membership after removal")
	}
}

func TestManager_Leave_CollectsEmptyRoom(t *testing.T) {
	manager := NewRoomManager()

	sess1 := newTestSession("session1")
	sess2 := newTestSession("session2")

	room := manager.GetOrCreate("game_4")
	room.AddMember(sess1)
	room.AddMember(sess2)

	manager.Leave("game_4", sess1.GetID())
	if _, exists := manager.GetRoom("game_4"); !exists {
		t.Fatal("Room with a remaining member must not be collected")
	}

	manager.Leave("game_4", sess2.GetID())
	if _, exists := manager.GetRoom("game_4"); exists {
		t.Fatal("Empty room should be collected when the last member leaves")
	}
	if manager.Count() != 0 {
		t.Errorf("Expected 0 active rooms, got %d", manager.Count())
	}
}

func TestManager_LeaveAll(t *testing.T) {
	manager := NewRoomManager()

	sess := newTestSession("session1")
	other := newTestSession("session2")

	manager.GetOrCreate("game_a").AddMember(sess)
	manager.GetOrCreate("game_b").AddMember(sess)
	roomB, _ := manager.GetRoom("game_b")
	roomB.AddMember(other)

	manager.LeaveAll(sess)

	// game_a became empty and is gone; game_b still has a member.
	if _, exists := manager.GetRoom("game_a"); exists {
		t.Error("game_a should be collected after its only member left")
	}
	roomB, exists := manager.GetRoom("game_b")
	if !exists {
		t.Fatal("game_b should survive, it still has a member")
	}
	if roomB.HasMember(sess.GetID()) {
		t.Error("Session should be removed from game_b")
	}
	if !roomB.HasMember(other.GetID()) {
		t.Error("Other member should remain in game_b")
	}
}

func TestManager_Join(t *testing.T) {
	manager := NewRoomManager()
	sess := newTestSession("session1")

	room := manager.Join("game_5", sess)

	if room == nil {
		t.Fatal("Join should not return nil")
	}
	registered, exists := manager.GetRoom("game_5")
	if !exists {
		t.Fatal("Joined room must be resolvable via the manager")
	}
	if registered != room {
		t.Fatal("Join must register the room it added the session to")
	}
	if !registered.HasMember(sess.GetID()) {
		t.Error("Session should be a member of the registered room")
	}
}

func TestManager_Join_AfterSweepOfSameRoom(t *testing.T) {
	manager := NewRoomManager()

	// An empty room id that was just collected must be freshly
	// re-created on the next join, with the member inside it.
	manager.GetOrCreate("game_6")
	manager.Sweep()

	sess := newTestSession("session1")
	manager.Join("game_6", sess)

	registered, exists := manager.GetRoom("game_6")
	if !exists {
		t.Fatal("Room joined after a sweep must be resolvable via the manager")
	}
	if !registered.HasMember(sess.GetID()) {
		t.Error("Joiner must be a member of the room the manager holds")
	}
}

func TestManager_Join_ConcurrentWithSweep(t *testing.T) {
	manager := NewRoomManager()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				manager.Sweep()
			}
		}
	}()

	// Every joiner must land in the room the manager resolves, no
	// matter how the sweeper interleaves.
	for i := 0; i < 200; i++ {
		sess := newTestSession(fmt.Sprintf("session%d", i))
		manager.Join("game_7", sess)

		registered, exists := manager.GetRoom("game_7")
		if !exists {
			t.Fatal("Room with a member must never be swept away")
		}
		if !registered.HasMember(sess.GetID()) {
			t.Fatal("Joiner must be visible in the manager's room")
		}
		manager.Leave("game_7", sess.GetID())
	}

	close(stop)
	wg.Wait()
}

func TestManager_Sweep(t *testing.T) {
	manager := NewRoomManager()

	// One occupied, two empty rooms.
	occupied := manager.GetOrCreate("occupied")
	occupied.AddMember(newTestSession("session1"))
	manager.GetOrCreate("empty_1")
	manager.GetOrCreate("empty_2")

	removed := manager.Sweep()
	if removed != 2 {
		t.Errorf("Expected Sweep to remove 2 rooms, got %d", removed)
	}
	if manager.Count() != 1 {
		t.Errorf("Expected 1 room after Sweep, got %d", manager.Count())
	}
	if _, exists := manager.GetRoom("occupied"); !exists {
		t.Error("Sweep must not remove occupied rooms")
	}
}

func TestManager_Occupancy(t *testing.T) {
	manager := NewRoomManager()

	roomA := manager.GetOrCreate("game_a")
	roomA.AddMember(newTestSession("session1"))
	roomA.AddMember(newTestSession("session2"))
	manager.GetOrCreate("game_b").AddMember(newTestSession("session3"))

	snapshot := manager.Occupancy()
	if snapshot["game_a"] != 2 {
		t.Errorf("Expected 2 members in game_a, got %d", snapshot["game_a"])
	}
	if snapshot["game_b"] != 1 {
		t.Errorf("Expected 1 member in game_b, got %d", snapshot["game_b"])
	}
}
