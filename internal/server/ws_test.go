package server

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/fruitpass/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	// room_closed messages skipped while waiting for something else
	strayClosed []protocol.Envelope
}

func dialWS(t *testing.T, srv *httptest.Server, participant string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?participant=" + participant
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	assert.Equal(t, participant, resp.Header.Get(ParticipantHeader))
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(msgType protocol.MessageType, requestID string, payload any) {
	c.t.Helper()
	data, err := protocol.Marshal(msgType, requestID, payload, time.Now())
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, data))
}

// expect reads until a message of msgType arrives.
func (c *wsClient) expect(msgType protocol.MessageType) protocol.Envelope {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err)
		env, err := protocol.Unmarshal(data)
		require.NoError(c.t, err)
		if env.Type == msgType {
			return env
		}
		if env.Type == protocol.TypeRoomClosed {
			c.strayClosed = append(c.strayClosed, env)
		}
	}
}

// expectSnapshot reads snapshots until one satisfies ok.
func (c *wsClient) expectSnapshot(ok func(protocol.RoomSnapshot) bool) protocol.RoomSnapshot {
	c.t.Helper()
	for {
		env := c.expect(protocol.TypeRoomSnapshot)
		var snap protocol.RoomSnapshot
		require.NoError(c.t, env.Decode(&snap))
		if ok(snap) {
			return snap
		}
	}
}

func TestWebSocketRoomFlow(t *testing.T) {
	m, _, _ := newTestManager(t)
	s := NewServer("127.0.0.1:0", m, quartz.NewMock(t), testLogger())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	host := dialWS(t, srv, "host")
	host.send(protocol.TypeCreateRoom, "r1", protocol.CreateRoom{Name: "Hana"})
	created := host.expectSnapshot(func(protocol.RoomSnapshot) bool { return true })
	assert.Equal(t, "host", created.You)
	code := created.Room.ID

	guest := dialWS(t, srv, "g1")
	guest.send(protocol.TypeJoinRoom, "r2", protocol.JoinRoom{Code: strings.ToLower(code), Name: "Gus"})
	guest.expectSnapshot(func(s protocol.RoomSnapshot) bool { return len(s.Room.Players) == 2 })

	// the host sees the join without asking
	host.expectSnapshot(func(s protocol.RoomSnapshot) bool { return len(s.Room.Players) == 2 })

	guest.send(protocol.TypeStartGame, "r3", nil)
	errEnv := guest.expect(protocol.TypeError)
	assert.Equal(t, "r3", errEnv.RequestID)
	var e protocol.Error
	require.NoError(t, errEnv.Decode(&e))
	assert.Equal(t, protocol.CodeNotAuthorized, e.Code)

	guest.send("bogus", "r4", nil)
	require.NoError(t, guest.expect(protocol.TypeError).Decode(&e))
	assert.Equal(t, protocol.CodeBadRequest, e.Code)

	host.send(protocol.TypeLeaveRoom, "r5", nil)
	var closed protocol.RoomClosed
	require.NoError(t, host.expect(protocol.TypeRoomClosed).Decode(&closed))
	assert.Equal(t, ReasonLeft, closed.Reason)

	require.NoError(t, guest.expect(protocol.TypeRoomClosed).Decode(&closed))
	assert.Equal(t, ReasonRoomClosed, closed.Reason)
	assert.Equal(t, code, closed.Code)

	require.Eventually(t, func() bool { return m.RoomCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketResume(t *testing.T) {
	m, _, _ := newTestManager(t)
	s := NewServer("127.0.0.1:0", m, quartz.NewMock(t), testLogger())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	room, err := m.Create(context.Background(), "host", "Hana", 0)
	require.NoError(t, err)

	stranger := dialWS(t, srv, "stranger")
	stranger.send(protocol.TypeResume, "r1", protocol.Resume{Code: room.ID})
	var e protocol.Error
	require.NoError(t, stranger.expect(protocol.TypeError).Decode(&e))
	assert.Equal(t, protocol.CodeNotInRoom, e.Code)

	host := dialWS(t, srv, "host")
	host.send(protocol.TypeResume, "r2", protocol.Resume{Code: room.ID})
	snap := host.expectSnapshot(func(protocol.RoomSnapshot) bool { return true })
	assert.Equal(t, room.ID, snap.Room.ID)
}

func TestWebSocketLeaveIsReportedOnce(t *testing.T) {
	m, _, _ := newTestManager(t)
	s := NewServer("127.0.0.1:0", m, quartz.NewMock(t), testLogger())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	host := dialWS(t, srv, "host")
	guest := dialWS(t, srv, "g1")

	for i := 0; i < 20; i++ {
		createID := fmt.Sprintf("create-%d", i)
		host.send(protocol.TypeCreateRoom, createID, protocol.CreateRoom{Name: "Hana"})
		var code string
		for code == "" {
			env := host.expect(protocol.TypeRoomSnapshot)
			if env.RequestID != createID {
				continue
			}
			var snap protocol.RoomSnapshot
			require.NoError(t, env.Decode(&snap))
			code = snap.Room.ID
		}

		guest.send(protocol.TypeJoinRoom, fmt.Sprintf("join-%d", i), protocol.JoinRoom{Code: code, Name: "Gus"})
		guest.expectSnapshot(func(s protocol.RoomSnapshot) bool { return s.Room.ID == code && len(s.Room.Players) == 2 })
		host.expectSnapshot(func(s protocol.RoomSnapshot) bool { return s.Room.ID == code && len(s.Room.Players) == 2 })

		var closed protocol.RoomClosed
		guest.send(protocol.TypeLeaveRoom, fmt.Sprintf("guest-leave-%d", i), nil)
		env := guest.expect(protocol.TypeRoomClosed)
		require.NoError(t, env.Decode(&closed))
		assert.Equal(t, fmt.Sprintf("guest-leave-%d", i), env.RequestID)
		assert.Equal(t, ReasonLeft, closed.Reason, "round %d", i)

		host.expectSnapshot(func(s protocol.RoomSnapshot) bool { return s.Room.ID == code && len(s.Room.Players) == 1 })
		host.send(protocol.TypeLeaveRoom, fmt.Sprintf("host-leave-%d", i), nil)
		env = host.expect(protocol.TypeRoomClosed)
		require.NoError(t, env.Decode(&closed))
		assert.Equal(t, fmt.Sprintf("host-leave-%d", i), env.RequestID)
		assert.Equal(t, ReasonLeft, closed.Reason, "round %d", i)
	}

	assert.Empty(t, host.strayClosed)
	assert.Empty(t, guest.strayClosed)
}

func TestWebSocketFailedLeaveKeepsWatching(t *testing.T) {
	m, _, store := newTestManager(t)
	s := NewServer("127.0.0.1:0", m, quartz.NewMock(t), testLogger())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	host := dialWS(t, srv, "host")
	host.send(protocol.TypeCreateRoom, "r1", protocol.CreateRoom{Name: "Hana"})
	code := host.expectSnapshot(func(protocol.RoomSnapshot) bool { return true }).Room.ID

	guest := dialWS(t, srv, "g1")
	guest.send(protocol.TypeJoinRoom, "r2", protocol.JoinRoom{Code: code, Name: "Gus"})
	guest.expectSnapshot(func(s protocol.RoomSnapshot) bool { return len(s.Room.Players) == 2 })

	store.failUpdates.Store(true)
	guest.send(protocol.TypeLeaveRoom, "r3", nil)
	var e protocol.Error
	require.NoError(t, guest.expect(protocol.TypeError).Decode(&e))
	assert.Equal(t, protocol.CodeTransport, e.Code)
	store.failUpdates.Store(false)

	// still in the room, so the host's changes keep arriving
	host.send(protocol.TypeSetMaxPlayers, "r4", protocol.SetMaxPlayers{MaxPlayers: 5})
	snap := guest.expectSnapshot(func(s protocol.RoomSnapshot) bool { return s.Room.MaxPlayers == 5 })
	assert.Len(t, snap.Room.Players, 2)
	assert.Empty(t, guest.strayClosed)
}
