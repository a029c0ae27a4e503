package rest_test

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/kasuganosora/hangout/model"
	"github.com/kasuganosora/hangout/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type messageResp struct {
	Message model.Message `json:"message"`
}

func TestMessages_RoomPostAndHistory(t *testing.T) {
	h := newHarness(t)
	alice := h.login(t, "alice")
	bob := h.login(t, "bob")
	r := createRoom(t, h, alice, map[string]interface{}{"name": "Lounge"})
	path := "/api/rooms/" + r.RoomID + "/messages"

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, path, bob.token, map[string]string{"text": "hi"}).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, path, bob.token, nil).Code)

	for _, text := range []string{"one", "two", "three"} {
		w := h.do(http.MethodPost, path, alice.token, map[string]string{"text": text})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, path, alice.token, map[string]string{"text": "   "}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, path, alice.token, map[string]string{"text": strings.Repeat("x", 201)}).Code)

	var hist struct {
		Messages []model.Message `json:"messages"`
	}
	decode(t, h.do(http.MethodGet, path, alice.token, nil), &hist)
	require.Len(t, hist.Messages, 3)
	assert.Equal(t, "one", hist.Messages[0].Text)
	assert.Equal(t, "three", hist.Messages[2].Text)

	decode(t, h.do(http.MethodGet, fmt.Sprintf("%s?before=%d&limit=1", path, hist.Messages[2].ID), alice.token, nil), &hist)
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, "two", hist.Messages[0].Text)

	assert.Len(t, h.rec.ByType(realtime.EventMessage), 3)
}

func TestMessages_PrivateConversation(t *testing.T) {
	h := newHarness(t)
	alice := h.login(t, "alice")
	bob := h.login(t, "bob")

	w := h.do(http.MethodPost, fmt.Sprintf("/api/users/%d/messages", bob.id), alice.token, map[string]string{"text": "hey bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = h.do(http.MethodPost, fmt.Sprintf("/api/users/%d/messages", alice.id), bob.token, map[string]string{"text": "hey alice"})
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, fmt.Sprintf("/api/users/%d/messages", alice.id), alice.token, map[string]string{"text": "me"}).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/users/9999/messages", alice.token, map[string]string{"text": "?"}).Code)

	var conv struct {
		Messages []model.Message `json:"messages"`
	}
	decode(t, h.do(http.MethodGet, fmt.Sprintf("/api/users/%d/messages", alice.id), bob.token, nil), &conv)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hey bob", conv.Messages[0].Text)
	assert.Equal(t, "hey alice", conv.Messages[1].Text)
}

func TestMessages_ToggleReaction(t *testing.T) {
	h := newHarness(t)
	alice := h.login(t, "alice")
	bob := h.login(t, "bob")
	carol := h.login(t, "carol")
	r := createRoom(t, h, alice, map[string]interface{}{"name": "Reacts"})
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/rooms/"+r.RoomID+"/join", bob.token, nil).Code)

	var posted messageResp
	decode(t, h.do(http.MethodPost, "/api/rooms/"+r.RoomID+"/messages", alice.token, map[string]string{"text": "vote"}), &posted)
	path := fmt.Sprintf("/api/messages/%d/reactions", posted.Message.ID)

	type reactionsResp struct {
		Reactions []model.Reaction `json:"reactions"`
		Version   int64            `json:"version"`
	}
	var resp reactionsResp
	decode(t, h.do(http.MethodPost, path, bob.token, map[string]string{"emoji": "👍"}), &resp)
	assert.Equal(t, []model.Reaction{{UserID: bob.id, Emoji: "👍"}}, resp.Reactions)
	assert.Equal(t, int64(1), resp.Version)

	decode(t, h.do(http.MethodPost, path, bob.token, map[string]string{"emoji": "👍"}), &resp)
	assert.Empty(t, resp.Reactions)
	assert.Equal(t, int64(2), resp.Version)

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, path, carol.token, map[string]string{"emoji": "👍"}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, path, bob.token, map[string]string{}).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/messages/9999/reactions", bob.token, map[string]string{"emoji": "👍"}).Code)

	assert.Len(t, h.rec.ByType(realtime.EventReactionUpdated), 2)
}
