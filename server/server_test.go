package server

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gametrack/auth"
	"github.com/wfunc/gametrack/broadcast"
	"github.com/wfunc/gametrack/chat"
	"github.com/wfunc/gametrack/logger"
	"github.com/wfunc/gametrack/models"
	"github.com/wfunc/gametrack/monitor"
	"github.com/wfunc/gametrack/network"
	"github.com/wfunc/gametrack/persistence"
	"github.com/wfunc/gametrack/room"
	"github.com/wfunc/gametrack/session"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

// Prometheus collectors register globally, so the test fixture shares
// one monitor across the package.
var testMonitor = monitor.NewMonitor("gametrack_server_test")

type recordedMsg struct {
	msgID uint16
	data  []byte
}

// fakeConn is a test double for network.Connection that records every
// message sent through it.
type fakeConn struct {
	mu   sync.Mutex
	msgs []recordedMsg
}

func (c *fakeConn) Send(msgID uint16, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, recordedMsg{msgID: msgID, data: append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) SendJSON(msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(msgID, data)
}

func (c *fakeConn) Close() error                         { return nil }
func (c *fakeConn) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (c *fakeConn) SetHeartbeat(interval time.Duration)  {}
func (c *fakeConn) ReadPacket() (*network.Packet, error) { return nil, nil }

func (c *fakeConn) byType(msgID uint16) []recordedMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []recordedMsg
	for _, m := range c.msgs {
		if m.msgID == msgID {
			out = append(out, m)
		}
	}
	return out
}

// ackFor returns the latest ack recorded for the given op.
func (c *fakeConn) ackFor(t *testing.T, op string) (network.Ack, bool) {
	t.Helper()
	acks := c.byType(network.MsgTypeAck)
	for i := len(acks) - 1; i >= 0; i-- {
		var ack network.Ack
		require.NoError(t, json.Unmarshal(acks[i].data, &ack))
		if ack.Op == op {
			return ack, true
		}
	}
	return network.Ack{}, false
}

func newTestServer(t *testing.T) (*GameServer, *persistence.Memory) {
	t.Helper()
	db := persistence.NewMemory()
	err := db.CreateGame(models.Game{ID: "game-1", Name: "Test Game"},
		models.Cover{Data: []byte{0x1}})
	require.NoError(t, err)

	s := &GameServer{
		roomManager:    room.NewRoomManager(),
		sessionManager: session.NewManager(),
		chatService:    chat.NewService(db, 1000, 2000),
		authManager:    auth.NewManager("test-secret", time.Hour),
		monitor:        testMonitor,
		shutdownChan:   make(chan struct{}),
	}
	s.broadcaster = broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager)
	return s, db
}

func connect(s *GameServer, id string) (*session.Session, *fakeConn) {
	conn := &fakeConn{}
	sess := session.NewSession(id, conn)
	s.sessionManager.Add(sess)
	return sess, conn
}

func mustPacket(msgID uint16, v interface{}) *network.Packet {
	data, _ := json.Marshal(v)
	return &network.Packet{MsgID: msgID, Data: data, Length: uint16(len(data))}
}

func authAs(t *testing.T, s *GameServer, sess *session.Session, conn *fakeConn, userID, username string) {
	t.Helper()
	token, err := s.authManager.Issue(userID, username)
	require.NoError(t, err)
	s.handlePacket(sess, mustPacket(network.MsgTypeAuth, network.AuthRequest{Token: token}))
	ack, ok := conn.ackFor(t, "auth")
	require.True(t, ok, "auth must be acked")
	require.True(t, ack.OK, "auth ack: %s", ack.Error)
}

func TestHandleAuth(t *testing.T) {
	s, _ := newTestServer(t)
	sess, conn := connect(s, "session-1")

	authAs(t, s, sess, conn, "user-1", "alice")

	userID, username, ok := sess.Identity()
	require.True(t, ok)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "alice", username)
}

func TestHandleAuth_BadToken(t *testing.T) {
	s, _ := newTestServer(t)
	sess, conn := connect(s, "session-1")

	s.handlePacket(sess, mustPacket(network.MsgTypeAuth, network.AuthRequest{Token: "garbage"}))

	ack, ok := conn.ackFor(t, "auth")
	require.True(t, ok)
	assert.False(t, ack.OK)

	_, _, authed := sess.Identity()
	assert.False(t, authed, "failed auth must not bind an identity")
}

func TestHandleJoinRoom_RequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	sess, conn := connect(s, "session-1")

	s.handlePacket(sess, mustPacket(network.MsgTypeJoinRoom, network.JoinRequest{RoomID: "game-1"}))

	ack, ok := conn.ackFor(t, "join")
	require.True(t, ok)
	assert.False(t, ack.OK)
	assert.Equal(t, 0, s.roomManager.Count(), "rejected join must not create a room")
}

func TestHandleSendMessage_RequiresAuth(t *testing.T) {
	s, db := newTestServer(t)
	sess, conn := connect(s, "session-1")

	s.handlePacket(sess, mustPacket(network.MsgTypeSendMessage,
		network.SendRequest{RoomID: "game-1", Body: "hi"}))

	ack, ok := conn.ackFor(t, "send")
	require.True(t, ok)
	assert.False(t, ack.OK)

	msgs, err := db.MessagesByGame("game-1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs, "rejected send must not persist")
}

func TestJoinEmptyRoomThenCrossClientDelivery(t *testing.T) {
	s, _ := newTestServer(t)

	// Client A joins the empty room and gets an empty history batch.
	sessA, connA := connect(s, "session-a")
	authAs(t, s, sessA, connA, "user-a", "alice")
	s.handlePacket(sessA, mustPacket(network.MsgTypeJoinRoom, network.JoinRequest{RoomID: "game-1"}))

	joinAck, ok := connA.ackFor(t, "join")
	require.True(t, ok)
	require.True(t, joinAck.OK)

	batches := connA.byType(network.MsgTypePreviousMessages)
	require.Len(t, batches, 1, "history goes to the joiner exactly once")
	var history network.History
	require.NoError(t, json.Unmarshal(batches[0].data, &history))
	assert.Equal(t, "game-1", history.RoomID)
	assert.Empty(t, history.Messages)

	// Client B joins and sends; both clients receive it exactly once.
	sessB, connB := connect(s, "session-b")
	authAs(t, s, sessB, connB, "user-b", "bob")
	s.handlePacket(sessB, mustPacket(network.MsgTypeJoinRoom, network.JoinRequest{RoomID: "game-1"}))
	s.handlePacket(sessB, mustPacket(network.MsgTypeSendMessage,
		network.SendRequest{RoomID: "game-1", Body: "hi"}))

	sendAck, ok := connB.ackFor(t, "send")
	require.True(t, ok)
	assert.True(t, sendAck.OK)

	for name, conn := range map[string]*fakeConn{"joiner": connA, "sender": connB} {
		delivered := conn.byType(network.MsgTypeNewMessage)
		require.Len(t, delivered, 1, "%s must receive the message exactly once", name)

		var msg models.Message
		require.NoError(t, json.Unmarshal(delivered[0].data, &msg))
		assert.Equal(t, "bob", msg.Sender, "sender is derived from the session identity")
		assert.Equal(t, "hi", msg.Body)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestHandleSendMessage_UnknownRoom(t *testing.T) {
	s, _ := newTestServer(t)
	sess, conn := connect(s, "session-1")
	authAs(t, s, sess, conn, "user-1", "alice")
	s.handlePacket(sess, mustPacket(network.MsgTypeJoinRoom, network.JoinRequest{RoomID: "game-1"}))

	s.handlePacket(sess, mustPacket(network.MsgTypeSendMessage,
		network.SendRequest{RoomID: "no-such-game", Body: "hi"}))

	ack, ok := conn.ackFor(t, "send")
	require.True(t, ok)
	assert.False(t, ack.OK)
	assert.NotEmpty(t, ack.Error)
	assert.Empty(t, conn.byType(network.MsgTypeNewMessage), "failed persist must not broadcast")
}

func TestConcurrentSenders_ConsistentBroadcastOrder(t *testing.T) {
	s, _ := newTestServer(t)

	sessA, connA := connect(s, "session-a")
	authAs(t, s, sessA, connA, "user-a", "alice")
	s.handlePacket(sessA, mustPacket(network.MsgTypeJoinRoom, network.JoinRequest{RoomID: "game-1"}))

	sessB, connB := connect(s, "session-b")
	authAs(t, s, sessB, connB, "user-b", "bob")
	s.handlePacket(sessB, mustPacket(network.MsgTypeJoinRoom, network.JoinRequest{RoomID: "game-1"}))

	const perSender = 10
	type job struct {
		sess   *session.Session
		packet *network.Packet
	}
	var jobs []job
	for i := 0; i < perSender; i++ {
		jobs = append(jobs,
			job{sessA, mustPacket(network.MsgTypeSendMessage,
				network.SendRequest{RoomID: "game-1", Body: fmt.Sprintf("a%d", i)})},
			job{sessB, mustPacket(network.MsgTypeSendMessage,
				network.SendRequest{RoomID: "game-1", Body: fmt.Sprintf("b%d", i)})})
	}

	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for _, j := range jobs {
		go func(j job) {
			defer wg.Done()
			s.handlePacket(j.sess, j.packet)
		}(j)
	}
	wg.Wait()

	bodies := func(conn *fakeConn) []string {
		var out []string
		for _, m := range conn.byType(network.MsgTypeNewMessage) {
			var msg models.Message
			require.NoError(t, json.Unmarshal(m.data, &msg))
			out = append(out, msg.Body)
		}
		return out
	}

	got := bodies(connA)
	require.Len(t, got, 2*perSender)

	// Exactly once per connection.
	seen := make(map[string]int)
	for _, b := range got {
		seen[b]++
	}
	for b, n := range seen {
		assert.Equal(t, 1, n, "message %q delivered %d times", b, n)
	}

	// Every member observes the same broadcast order.
	assert.Equal(t, got, bodies(connB), "broadcast order must be identical across members")
}
