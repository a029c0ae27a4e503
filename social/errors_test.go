package social

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("respond 3: %w", ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("room abc: %w", ErrNotFound), http.StatusNotFound},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrInvalidTarget, http.StatusBadRequest},
		{ErrAlreadyExists, http.StatusBadRequest},
		{ErrAlreadyMember, http.StatusBadRequest},
		{ErrInvalidState, http.StatusBadRequest},
		{ErrFull, http.StatusBadRequest},
		{ErrInternal, http.StatusInternalServerError},
		{errors.New("driver: bad connection"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusCode(tc.err), "%v", tc.err)
	}
}

func TestInvalidTargetIsInvalidInput(t *testing.T) {
	err := fmt.Errorf("send request: %w", ErrInvalidTarget)
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPublicMessage_HidesInternal(t *testing.T) {
	assert.Equal(t, "internal error", PublicMessage(errors.New("sql: connection reset")))
	assert.Equal(t, "not found", PublicMessage(ErrNotFound))
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "user:42", UserTopic(42))
	assert.Equal(t, "room:abc", RoomTopic("abc"))
	id, ok := RoomFromTopic(RoomTopic("abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
	_, ok = RoomFromTopic("room:")
	assert.False(t, ok)
	_, ok = RoomFromTopic(UserTopic(42))
	assert.False(t, ok)
	assert.True(t, Actor{Role: "moderator"}.IsStaff())
	assert.False(t, Actor{Role: "member"}.IsStaff())
}

func TestInternal_WrapsCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := Internal("join room", cause)
	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.Equal(t, "internal error", PublicMessage(err))
}
