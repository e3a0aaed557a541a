package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coolftc/prompt/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newClient(t *testing.T, h http.HandlerFunc) *remote.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return remote.New(remote.Config{BaseURL: srv.URL + "/", Ticket: "tkt-1", AcctID: 42, Timeout: 2 * time.Second}, nil)
}

func TestFriends(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/user/42/friend", r.URL.Path)
		assert.Equal(t, "tkt-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		writeJSON(w, http.StatusOK, map[string]any{
			"friends": []map[string]any{{"friendId": 1, "fname": "a@b.c", "fdisplay": "A", "scycle": 3, "timezone": "UTC", "mirror": true}},
			"rsvps":   []map[string]any{{"friendId": 2, "fname": "d@e.f"}},
			"invites": []map[string]any{},
		})
	})

	inv, err := c.Friends(context.Background())
	require.NoError(t, err)
	require.Len(t, inv.Friends, 1)
	assert.Equal(t, remote.Friend{ID: 1, Unique: "a@b.c", Display: "A", SleepCycle: 3, Timezone: "UTC", Mirror: true}, inv.Friends[0])
	require.Len(t, inv.RSVPs, 1)
	assert.Equal(t, int64(2), inv.RSVPs[0].ID)
	assert.Empty(t, inv.Invites)
}

func TestCreatePrompt(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/user/42/prompt", r.URL.Path)

		var req remote.PromptRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(7), req.ReceiveID)
		assert.Equal(t, "hello", req.Message)
		assert.Equal(t, -1, req.Units)

		writeJSON(w, http.StatusOK, map[string]any{"noteId": 900, "noteTime": "2030-01-01T09:00:00.000Z"})
	})

	resp, err := c.CreatePrompt(context.Background(), remote.PromptRequest{ReceiveID: 7, Message: "hello", Units: -1})
	require.NoError(t, err)
	assert.Equal(t, int64(900), resp.NoteID)
	assert.Equal(t, "2030-01-01T09:00:00.000Z", resp.NoteTime)
}

func TestSnoozeAndDelete(t *testing.T) {
	var calls []string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut {
			var req remote.SnoozeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, int64(900), req.SnoozeID)
			writeJSON(w, http.StatusOK, map[string]any{"noteId": 901, "noteTime": "t"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	resp, err := c.SnoozePrompt(context.Background(), remote.SnoozeRequest{SnoozeID: 900})
	require.NoError(t, err)
	assert.Equal(t, int64(901), resp.NoteID)

	require.NoError(t, c.DeletePrompt(context.Background(), 901))
	require.NoError(t, c.Unfriend(context.Background(), 5))
	assert.Equal(t, []string{"PUT /v1/user/42/prompt", "DELETE /v1/user/42/prompt/901", "DELETE /v1/user/42/friend/5"}, calls)
}

func TestStatusError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, "already invited")
	})

	err := c.Invite(context.Background(), remote.InviteRequest{Unique: "x@y.z"})
	var se *remote.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Code)
	assert.Equal(t, "already invited", se.Message)
	assert.Equal(t, http.StatusConflict, remote.Code(err))
	assert.False(t, errors.Is(err, remote.ErrTransport))
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := remote.New(remote.Config{BaseURL: url, AcctID: 1, Timeout: time.Second}, nil)
	_, err := c.Friends(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrTransport)
	assert.Equal(t, remote.CodeNetworkDown, remote.Code(err))
}

func TestUnreadableReplyIsNotTransport(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"noteId": "abc"`))
	})

	_, err := c.CreatePrompt(context.Background(), remote.PromptRequest{ReceiveID: 7, Message: "hello", Units: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrDecode)
	assert.NotErrorIs(t, err, remote.ErrTransport)
	assert.Equal(t, remote.CodeGeneral, remote.Code(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPing(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/status/ping", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"version": "1.4"})
	})
	v, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.4", v)
}

func TestDiscover(t *testing.T) {
	camp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "ticket must not leak to base camp")
		if r.URL.Path == "/empty.json" {
			writeJSON(w, http.StatusOK, map[string]string{"Host": " "})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"Host": "https://api.example.test", "Path": "/v1"})
	}))
	t.Cleanup(camp.Close)

	c := remote.New(remote.Config{BaseURL: "http://old.invalid", Ticket: "secret", AcctID: 1}, nil)
	host, err := c.Discover(context.Background(), camp.URL+"/promptme.json")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test", host)

	c.SetBaseURL(host + "/")
	assert.Equal(t, "https://api.example.test", c.BaseURL())

	_, err = c.Discover(context.Background(), camp.URL+"/empty.json")
	assert.ErrorIs(t, err, remote.ErrNoHost)
}

func TestCode(t *testing.T) {
	assert.Equal(t, 0, remote.Code(nil))
	assert.Equal(t, remote.CodeGeneral, remote.Code(errors.New("boom")))
}
