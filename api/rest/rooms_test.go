package rest_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/kasuganosora/hangout/model"
	"github.com/kasuganosora/hangout/realtime"
	"github.com/kasuganosora/hangout/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createRoom(t *testing.T, h *harness, owner user, body map[string]interface{}) model.Room {
	t.Helper()
	w := h.do(http.MethodPost, "/api/rooms", owner.token, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Room model.Room `json:"room"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.Room.RoomID)
	return resp.Room
}

func TestRooms_CreateAndDetail(t *testing.T) {
	h := newHarness(t)
	alice := h.login(t, "alice")

	r := createRoom(t, h, alice, map[string]interface{}{"name": "  Study Hall  "})
	assert.Equal(t, "Study Hall", r.Name)
	assert.Equal(t, model.PrivacyPublic, r.Privacy)
	assert.Equal(t, 50, r.MaxMembers)

	var detail struct {
		Room    model.Room             `json:"room"`
		Members []model.RoomMembership `json:"members"`
	}
	decode(t, h.do(http.MethodGet, "/api/rooms/"+r.RoomID, alice.token, nil), &detail)
	require.Len(t, detail.Members, 1)
	assert.Equal(t, alice.id, detail.Members[0].UserID)
	assert.Equal(t, model.MemberRoleAdmin, detail.Members[0].Role)

	var list struct {
		Rooms []model.Room `json:"rooms"`
	}
	decode(t, h.do(http.MethodGet, "/api/rooms", alice.token, nil), &list)
	assert.Len(t, list.Rooms, 1)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/rooms/nope", alice.token, nil).Code)
}

func TestRooms_CreateValidation(t *testing.T) {
	h := newHarness(t)
	alice := h.login(t, "alice")
	for _, body := range []map[string]interface{}{
		{"name": "   "},
		{"name": "x", "privacy": "secret"},
		{"name": "x", "max_members": 100000},
		{"name": "x", "max_members": -1},
	} {
		w := h.do(http.MethodPost, "/api/rooms", alice.token, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%v", body)
	}
}

func TestRooms_JoinCapacityAndLeave(t *testing.T) {
	h := newHarness(t)
	alice := h.login(t, "alice")
	bob := h.login(t, "bob")
	carol := h.login(t, "carol")
	r := createRoom(t, h, alice, map[string]interface{}{"name": "Pair", "max_members": 2})
	join := "/api/rooms/" + r.RoomID + "/join"

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, join, bob.token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, join, bob.token, nil).Code, "already a member")

	w := h.do(http.MethodPost, join, carol.token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "full")

	joined := h.rec.OnTopic(social.RoomTopic(r.RoomID))
	require.Len(t, joined, 1)
	assert.Equal(t, realtime.EventMemberJoined, joined[0].Type)

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/rooms/"+r.RoomID+"/leave", bob.token, nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, join, carol.token, nil).Code, "seat freed by leave")
}

func TestRooms_ApprovalFlow(t *testing.T) {
	h := newHarness(t)
	alice := h.login(t, "alice")
	bob := h.login(t, "bob")
	r := createRoom(t, h, alice, map[string]interface{}{"name": "Club", "privacy": "private", "require_approval": true})

	w := h.do(http.MethodPost, "/api/rooms/"+r.RoomID+"/join", bob.token, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp struct {
		Membership model.RoomMembership `json:"membership"`
	}
	decode(t, w, &resp)
	assert.True(t, resp.Membership.PendingApproval)
	assert.False(t, resp.Membership.IsActive)

	approve := fmt.Sprintf("/api/rooms/%s/members/%d/approve", r.RoomID, bob.id)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, approve, bob.token, nil).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, approve, alice.token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, approve, alice.token, nil).Code, "nothing left to approve")

	var detail struct {
		Members []model.RoomMembership `json:"members"`
	}
	decode(t, h.do(http.MethodGet, "/api/rooms/"+r.RoomID, alice.token, nil), &detail)
	assert.Len(t, detail.Members, 2)
}

func TestRooms_PromoteDemote(t *testing.T) {
	h := newHarness(t)
	alice := h.login(t, "alice")
	bob := h.login(t, "bob")
	carol := h.login(t, "carol")
	r := createRoom(t, h, alice, map[string]interface{}{"name": "Mods"})
	for _, u := range []user{bob, carol} {
		require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/rooms/"+r.RoomID+"/join", u.token, nil).Code)
	}

	promoteCarol := fmt.Sprintf("/api/rooms/%s/members/%d/promote", r.RoomID, carol.id)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, promoteCarol, bob.token, nil).Code)

	promoteBob := fmt.Sprintf("/api/rooms/%s/members/%d/promote", r.RoomID, bob.id)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, promoteBob, alice.token, nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, promoteCarol, bob.token, nil).Code, "bob is an admin now")

	demoteOwner := fmt.Sprintf("/api/rooms/%s/members/%d/demote", r.RoomID, alice.id)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, demoteOwner, bob.token, nil).Code)

	demoteBob := fmt.Sprintf("/api/rooms/%s/members/%d/demote", r.RoomID, bob.id)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, demoteBob, alice.token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, fmt.Sprintf("/api/rooms/%s/members/x/demote", r.RoomID), alice.token, nil).Code)
}
