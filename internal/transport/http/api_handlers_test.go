package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postToken(t *testing.T, ts *testServer, body string) *http.Response {
	t.Helper()
	resp, err := ts.Client().Post(ts.URL+"/api/token", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getRooms(t *testing.T, ts *testServer, authorization string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/rooms", nil)
	require.NoError(t, err)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTokenAndRooms(t *testing.T) {
	ts := startTestServer(t)
	ctx := context.Background()

	_, err := ts.authService.Register(ctx, "alice", "secret")
	require.NoError(t, err)

	resp := postToken(t, ts, `{"nickname":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postToken(t, ts, `{"nickname":"ghost","password":"secret"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postToken(t, ts, `{"nickname":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postToken(t, ts, `{"nickname":"alice","password":"secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var token TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&token))
	require.NotEmpty(t, token.Token)

	resp = getRooms(t, ts, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = getRooms(t, ts, "Token "+token.Token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = getRooms(t, ts, "Bearer "+token.Token+"x")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = getRooms(t, ts, "Bearer "+token.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rooms []RoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "general", rooms[0].Name)
	assert.Equal(t, "public", rooms[0].Visibility)
	assert.Zero(t, rooms[0].Unread)
}
