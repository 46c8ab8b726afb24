package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coder/quartz"
	"github.com/lox/fruitpass/internal/game"
	"github.com/lox/fruitpass/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
}

func newAPIClient(t *testing.T) (*apiClient, *flakyStore) {
	t.Helper()
	m, _, store := newTestManager(t)
	s := NewServer("127.0.0.1:0", m, quartz.NewMock(t), testLogger())
	return &apiClient{t: t, handler: s.Handler()}, store
}

func (c *apiClient) do(method, path, participant string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if participant != "" {
		req.Header.Set(ParticipantHeader, participant)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func decodeRoom(t *testing.T, rec *httptest.ResponseRecorder) roomResponse {
	t.Helper()
	var resp roomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) protocol.Error {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	api, _ := newAPIClient(t)
	rec := api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRESTGameFlow(t *testing.T) {
	api, _ := newAPIClient(t)

	rec := api.do(http.MethodPost, "/api/rooms", "", map[string]any{"name": "Hana"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	hostID := rec.Header().Get(ParticipantHeader)
	require.NotEmpty(t, hostID, "anonymous callers get an id")
	created := decodeRoom(t, rec)
	assert.Equal(t, hostID, created.ParticipantID)
	code := created.Room.ID

	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/join", "g1", map[string]any{"name": "Gus"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeRoom(t, rec).Room.Players, 2)

	rec = api.do(http.MethodPut, "/api/rooms/"+code+"/max-players", "g1", map[string]any{"maxPlayers": 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPut, "/api/rooms/"+code+"/max-players", hostID, map[string]any{"maxPlayers": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, decodeRoom(t, rec).Room.MaxPlayers)

	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/start", "g1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, protocol.CodeNotAuthorized, decodeError(t, rec).Code)

	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/start", hostID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	started := decodeRoom(t, rec).Room
	assert.Equal(t, game.StatusPlaying, started.Status)
	assert.Len(t, started.Players, 5)

	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/join", "late", map[string]any{"name": "Late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, protocol.CodeAlreadyStarted, decodeError(t, rec).Code)

	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/pass", hostID, map[string]any{"cardIndex": 99})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/pass", hostID, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/pass", hostID, map[string]any{"cardIndex": 0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	passed := decodeRoom(t, rec).Room
	assert.Equal(t, started.Version+1, passed.Version)

	rec = api.do(http.MethodGet, "/api/rooms/"+code, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/api/rooms/"+code+"/resume", "g1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/api/rooms/"+code+"/resume", "stranger", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, protocol.CodeNotInRoom, decodeError(t, rec).Code)

	if passed.Status == game.StatusPlaying {
		rec = api.do(http.MethodPost, "/api/rooms/"+code+"/ready", "g1", nil)
		assert.Equal(t, http.StatusConflict, rec.Code, "ready only after the game ends")
	}

	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/leave", hostID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"closed":true`)

	rec = api.do(http.MethodGet, "/api/rooms/"+code, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRESTValidation(t *testing.T) {
	api, _ := newAPIClient(t)

	rec := api.do(http.MethodPost, "/api/rooms", "host", map[string]any{"name": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, protocol.CodeValidation, decodeError(t, rec).Code)

	rec = api.do(http.MethodPost, "/api/rooms", "host", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, protocol.CodeBadRequest, decodeError(t, rec).Code)

	rec = api.do(http.MethodGet, "/api/rooms/ZZZZZZ", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRESTRoomFull(t *testing.T) {
	api, _ := newAPIClient(t)

	rec := api.do(http.MethodPost, "/api/rooms", "host", map[string]any{"name": "Hana"})
	require.Equal(t, http.StatusCreated, rec.Code)
	code := decodeRoom(t, rec).Room.ID

	for _, id := range []string{"g1", "g2", "g3"} {
		rec = api.do(http.MethodPost, "/api/rooms/"+code+"/join", id, map[string]any{"name": id})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/join", "g4", map[string]any{"name": "g4"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, protocol.CodeRoomFull, decodeError(t, rec).Code)
}

func TestRESTTransportFailure(t *testing.T) {
	api, store := newAPIClient(t)

	rec := api.do(http.MethodPost, "/api/rooms", "host", map[string]any{"name": "Hana"})
	require.Equal(t, http.StatusCreated, rec.Code)
	code := decodeRoom(t, rec).Room.ID

	store.failUpdates.Store(true)
	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/join", "g1", map[string]any{"name": "Gus"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, protocol.CodeTransport, decodeError(t, rec).Code)
}

func TestStatusFor(t *testing.T) {
	tests := map[protocol.ErrorCode]int{
		protocol.CodeValidation:     http.StatusBadRequest,
		protocol.CodeBadRequest:     http.StatusBadRequest,
		protocol.CodeRoomNotFound:   http.StatusNotFound,
		protocol.CodeRoomFull:       http.StatusConflict,
		protocol.CodeAlreadyStarted: http.StatusConflict,
		protocol.CodeWrongPhase:     http.StatusConflict,
		protocol.CodeNotReady:       http.StatusConflict,
		protocol.CodeNotAuthorized:  http.StatusForbidden,
		protocol.CodeInvalidMove:    http.StatusUnprocessableEntity,
		protocol.CodeTransport:      http.StatusServiceUnavailable,
		protocol.CodeInternal:       http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, StatusFor(code), string(code))
	}
}
