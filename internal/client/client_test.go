package client

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/lox/fruitpass/internal/game"
	"github.com/lox/fruitpass/internal/server"
	"github.com/lox/fruitpass/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// syncBuffer is a bytes.Buffer safe for the session's handler goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func startServer(t *testing.T) (*httptest.Server, *server.RoomManager) {
	t.Helper()
	store := session.NewMemoryStore()
	manager := server.NewRoomManager(store, quartz.NewMock(t), zerolog.Nop(), server.Config{BotDelay: time.Second, Seed: 7})
	srv := httptest.NewServer(server.NewServer("127.0.0.1:0", manager, quartz.NewMock(t), zerolog.Nop()).Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
		_ = store.Close()
	})
	return srv, manager
}

func connect(t *testing.T, url, participantID string) *Client {
	t.Helper()
	c := NewClient(url, participantID, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

// cachedRoom is safe to call from an Eventually condition.
func cachedRoom(cache *ResumeCache) string {
	entry, err := cache.Load()
	if err != nil {
		return "unreadable: " + err.Error()
	}
	return entry.RoomCode
}

func outputContains(out *syncBuffer, s string) func() bool {
	return func() bool { return strings.Contains(out.String(), s) }
}

func TestClientAdoptsNewestSnapshot(t *testing.T) {
	c := NewClient("http://localhost:8080", "", testLogger())

	assert.True(t, c.adopt(game.Room{ID: "ABC234", Version: 3}))
	assert.False(t, c.adopt(game.Room{ID: "ABC234", Version: 2}))
	assert.True(t, c.adopt(game.Room{ID: "ABC234", Version: 3}))
	assert.True(t, c.adopt(game.Room{ID: "XYZ234", Version: 1}))

	room, ok := c.Room()
	require.True(t, ok)
	assert.Equal(t, "XYZ234", room.ID)
}

func TestSessionCreateAndLeaveTracksResumeCache(t *testing.T) {
	srv, _ := startServer(t)
	c := connect(t, srv.URL, "")
	pid := c.ParticipantID()
	require.NotEmpty(t, pid)

	cache := NewResumeCache(filepath.Join(t.TempDir(), "resume.json"))
	out := &syncBuffer{}
	s := NewSession(c, cache, "Hana", 0, out, testLogger())
	require.NoError(t, s.ResumeFromCache())

	entry, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, ResumeEntry{ParticipantID: pid}, entry)

	require.NoError(t, s.Execute(Command{Name: CmdCreate}))
	require.Eventually(t, func() bool { return cachedRoom(cache) != "" }, 3*time.Second, 10*time.Millisecond)

	room, ok := c.Room()
	require.True(t, ok)
	assert.Equal(t, room.ID, cachedRoom(cache))
	assert.Equal(t, pid, room.HostID)
	require.Eventually(t, outputContains(out, "Share code "+room.ID), 3*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Execute(Command{Name: CmdLeave}))
	require.Eventually(t, func() bool { return cachedRoom(cache) == "" }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, outputContains(out, "Room "+room.ID+": you left the room"), 3*time.Second, 10*time.Millisecond)
}

func TestSessionResumesRememberedRoom(t *testing.T) {
	srv, manager := startServer(t)
	room, err := manager.Create(context.Background(), "p-host", "Hana", 0)
	require.NoError(t, err)

	cache := NewResumeCache(filepath.Join(t.TempDir(), "resume.json"))
	require.NoError(t, cache.Save(ResumeEntry{ParticipantID: "p-host", RoomCode: room.ID}))

	c := connect(t, srv.URL, "p-host")
	assert.Equal(t, "p-host", c.ParticipantID())

	out := &syncBuffer{}
	s := NewSession(c, cache, "Hana", 0, out, testLogger())
	require.NoError(t, s.ResumeFromCache())

	require.Eventually(t, func() bool {
		_, ok := c.Room()
		return ok
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, room.ID, cachedRoom(cache))
}

func TestSessionClearsStaleResume(t *testing.T) {
	srv, manager := startServer(t)
	room, err := manager.Create(context.Background(), "p-host", "Hana", 0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		code   string
		reason string
	}{
		{"room gone", "ZZZZZZ", ReasonRoomClosed},
		{"not seated", room.ID, ReasonRemoved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewResumeCache(filepath.Join(t.TempDir(), "resume.json"))
			require.NoError(t, cache.Save(ResumeEntry{ParticipantID: "p-guest", RoomCode: tt.code}))

			c := connect(t, srv.URL, "p-guest")
			out := &syncBuffer{}
			s := NewSession(c, cache, "Gus", 0, out, testLogger())
			require.NoError(t, s.ResumeFromCache())

			require.Eventually(t, func() bool { return cachedRoom(cache) == "" }, 3*time.Second, 10*time.Millisecond)
			require.Eventually(t, outputContains(out, "Room "+tt.code+": "+tt.reason), 3*time.Second, 10*time.Millisecond)

			entry, err := cache.Load()
			require.NoError(t, err)
			assert.Equal(t, "p-guest", entry.ParticipantID)
		})
	}
}

func TestSessionAutoRequiresRoom(t *testing.T) {
	c := NewClient("http://localhost:8080", "p-1", testLogger())
	s := NewSession(c, NewResumeCache(filepath.Join(t.TempDir(), "resume.json")), "Mo", 0, io.Discard, testLogger())

	err := s.Execute(Command{Name: CmdAuto})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in a room")

	assert.ErrorIs(t, s.Execute(Command{Name: CmdQuit}), ErrQuit)
}
