package sse_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/hangout/api/sse"
	"github.com/kasuganosora/hangout/config"
	"github.com/kasuganosora/hangout/model"
	mw "github.com/kasuganosora/hangout/middleware"
	"github.com/kasuganosora/hangout/realtime"
	"github.com/kasuganosora/hangout/social/chat"
	"github.com/kasuganosora/hangout/social/room"
	"github.com/kasuganosora/hangout/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testSec = config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour}

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	db    *gorm.DB
	srv   *httptest.Server
	rooms *room.Service
	chats *chat.Service
	token string
	user  int64
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	log := zap.NewNop()
	pub := realtime.NewPublisher(ps, log)

	rooms := room.NewService(db, pub, config.RoomConfig{DefaultMaxMembers: 10, MaxMembersLimit: 100, MaxNameLen: 64}, log)
	chats := chat.NewService(db, c, rooms, pub, config.ChatConfig{MaxMessageLen: 200, RecentBuffer: 10, HistoryLimit: 50}, log)

	u := testutil.CreateUser(t, db, "alice")
	token, err := mw.GenerateToken(u.ID, u.Role, testSec.JWTSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), mw.SessionKey(token), "1", time.Hour))

	h := sse.NewHandler(pub, rooms, chats, c, testSec, log)
	h.SetKeepalive(50 * time.Millisecond)
	r := gin.New()
	r.GET("/sse", h.ServeSSE)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &fixture{db: db, srv: srv, rooms: rooms, chats: chats, token: token, user: u.ID}
}

// readEvents collects event names and comment lines from the stream.
func readEvents(t *testing.T, resp *http.Response) <-chan string {
	t.Helper()
	out := make(chan string, 64)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				out <- strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, ":"):
				out <- "keepalive"
			}
		}
	}()
	return out
}

func next(t *testing.T, ch <-chan string, skipKeepalive bool) string {
	t.Helper()
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "stream closed")
			if skipKeepalive && ev == "keepalive" {
				continue
			}
			return ev
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for event")
			return ""
		}
	}
}

func TestServeSSE_RejectsMissingAndBadTokens(t *testing.T) {
	f := setup(t)

	resp, err := http.Get(f.srv.URL + "/sse")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/sse?token=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeSSE_ReplaysBacklogThenStreams(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	r, err := f.rooms.CreateRoom(ctx, f.user, room.Spec{Name: "lobby"})
	require.NoError(t, err)
	_, err = f.chats.PostMessage(ctx, f.user, chat.Target{RoomID: r.RoomID}, "before")
	require.NoError(t, err)

	resp, err := http.Get(f.srv.URL + "/sse?token=" + f.token)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"),
		"content type %q", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp)
	assert.Equal(t, "connected", next(t, events, true))
	assert.Equal(t, realtime.EventMessage, next(t, events, true))

	_, err = f.chats.PostMessage(ctx, f.user, chat.Target{RoomID: r.RoomID}, "after")
	require.NoError(t, err)
	assert.Equal(t, realtime.EventMessage, next(t, events, true))
}

func TestServeSSE_Keepalive(t *testing.T) {
	f := setup(t)

	resp, err := http.Get(f.srv.URL + "/sse?token=" + f.token)
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp)
	assert.Equal(t, "connected", next(t, events, false))
	assert.Equal(t, "keepalive", next(t, events, false))
}

func TestServeSSE_LeavingRoomStopsItsEvents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	bob := testutil.CreateUser(t, f.db, "bob")
	r, err := f.rooms.CreateRoom(ctx, bob.ID, room.Spec{Name: "private", Privacy: model.PrivacyPrivate})
	require.NoError(t, err)
	_, err = f.rooms.JoinRoom(ctx, f.user, r.RoomID)
	require.NoError(t, err)

	resp, err := http.Get(f.srv.URL + "/sse?token=" + f.token)
	require.NoError(t, err)
	defer resp.Body.Close()
	events := readEvents(t, resp)
	assert.Equal(t, "connected", next(t, events, true))

	require.NoError(t, f.rooms.LeaveRoom(ctx, f.user, r.RoomID))
	assert.Equal(t, realtime.EventMemberLeft, next(t, events, true))

	_, err = f.chats.PostMessage(ctx, bob.ID, chat.Target{RoomID: r.RoomID}, "members only")
	require.NoError(t, err)
	for keepalives := 0; keepalives < 3; {
		ev := next(t, events, false)
		require.NotEqual(t, realtime.EventMessage, ev, "message delivered after leaving")
		if ev == "keepalive" {
			keepalives++
		}
	}
}
