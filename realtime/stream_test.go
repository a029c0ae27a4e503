package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/hangout/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStream(t *testing.T, userID int64, rooms ...string) (*Publisher, *Stream) {
	t.Helper()
	_, ps := testutil.SetupTestCache(t)
	pub := NewPublisher(ps, nop())
	st, err := OpenStream(context.Background(), pub, userID, rooms)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return pub, st
}

func recv(t *testing.T, st *Stream) *Event {
	t.Helper()
	select {
	case ev, ok := <-st.Events():
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func quiet(t *testing.T, st *Stream) {
	t.Helper()
	select {
	case ev := <-st.Events():
		t.Fatalf("unexpected event %q on %s", ev.Type, ev.Topic)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStream_MergesTopics(t *testing.T) {
	pub, st := openStream(t, 7, "a")
	ctx := context.Background()

	pub.Emit(ctx, "user:7", EventFriendRequest, FriendRequestPayload{FriendshipID: 1})
	assert.Equal(t, "user:7", recv(t, st).Topic)
	pub.Emit(ctx, "live", EventLiveStarted, LivePayload{SessionID: 2})
	assert.Equal(t, "live", recv(t, st).Topic)
	pub.Emit(ctx, "room:a", EventMessage, MessagePayload{MessageID: 3})
	assert.Equal(t, "room:a", recv(t, st).Topic)

	pub.Emit(ctx, "room:b", EventMessage, MessagePayload{MessageID: 4})
	quiet(t, st)
	assert.Equal(t, []string{"a"}, st.Rooms())
}

func TestStream_AddRoom(t *testing.T) {
	pub, st := openStream(t, 7)

	added, err := st.AddRoom("b")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = st.AddRoom("b")
	require.NoError(t, err)
	assert.False(t, added)

	pub.Emit(context.Background(), "room:b", EventMessage, MessagePayload{MessageID: 1})
	assert.Equal(t, "room:b", recv(t, st).Topic)
}

func TestStream_OwnLeaveDropsRoom(t *testing.T) {
	pub, st := openStream(t, 7, "a", "b")
	ctx := context.Background()

	pub.Emit(ctx, "room:a", EventMemberLeft, MemberPayload{UserID: 8})
	ev := recv(t, st)
	assert.Equal(t, EventMemberLeft, ev.Type)

	pub.Emit(ctx, "room:a", EventMemberLeft, MemberPayload{UserID: 7})
	pub.Emit(ctx, "room:a", EventMessage, MessagePayload{MessageID: 1})
	ev = recv(t, st)
	assert.Equal(t, EventMemberLeft, ev.Type, "the leave itself is still delivered")
	quiet(t, st)
	assert.Equal(t, []string{"b"}, st.Rooms())

	pub.Emit(ctx, "room:b", EventMessage, MessagePayload{MessageID: 2})
	assert.Equal(t, "room:b", recv(t, st).Topic)

	added, err := st.AddRoom("a")
	require.NoError(t, err)
	assert.True(t, added, "rejoining subscribes again")
	pub.Emit(ctx, "room:a", EventMessage, MessagePayload{MessageID: 3})
	assert.Equal(t, "room:a", recv(t, st).Topic)
}

func TestStream_CloseEndsEvents(t *testing.T) {
	_, st := openStream(t, 7, "a")
	st.Close()
	st.Close()

	select {
	case _, ok := <-st.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
	_, err := st.AddRoom("b")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLeftBy(t *testing.T) {
	ev := &Event{Type: EventMemberLeft, Topic: "room:a", Payload: []byte(`{"userId":7}`)}
	id, ok := LeftBy(ev, 7)
	assert.True(t, ok)
	assert.Equal(t, "a", id)

	_, ok = LeftBy(ev, 8)
	assert.False(t, ok)
	_, ok = LeftBy(&Event{Type: EventMemberJoined, Topic: "room:a", Payload: []byte(`{"userId":7}`)}, 7)
	assert.False(t, ok)
	_, ok = LeftBy(&Event{Type: EventMemberLeft, Topic: "user:7", Payload: []byte(`{"userId":7}`)}, 7)
	assert.False(t, ok)
}
