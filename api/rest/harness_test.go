package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/hangout/api/rest"
	"github.com/kasuganosora/hangout/audit"
	"github.com/kasuganosora/hangout/config"
	mw "github.com/kasuganosora/hangout/middleware"
	"github.com/kasuganosora/hangout/notify"
	"github.com/kasuganosora/hangout/realtime/realtimetest"
	"github.com/kasuganosora/hangout/scheduler"
	"github.com/kasuganosora/hangout/social/chat"
	"github.com/kasuganosora/hangout/social/friend"
	"github.com/kasuganosora/hangout/social/presence"
	"github.com/kasuganosora/hangout/social/room"
	"github.com/kasuganosora/hangout/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const adminKey = "admin-key"

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	testSec      = config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour}
	testPresence = config.PresenceConfig{
		OnlineWindow: 2 * time.Minute,
		FriendWindow: 5 * time.Minute,
		LiveWindow:   2 * time.Minute,
	}
)

type harness struct {
	r     *gin.Engine
	db    *gorm.DB
	rec   *realtimetest.Recorder
	audit *audit.Service
	sched *scheduler.Scheduler
	socks *fakeSockets
}

type fakeSockets struct {
	mu           sync.Mutex
	disconnected []int64
}

func (f *fakeSockets) Disconnect(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, userID)
	return 1
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	log := zap.NewNop()
	rec := &realtimetest.Recorder{}

	pres := presence.NewService(db, rec, testPresence, log)
	store := notify.NewStore(db)
	friends := friend.NewService(db, rec, store, testPresence, log)
	rooms := room.NewService(db, rec, config.RoomConfig{DefaultMaxMembers: 50, MaxMembersLimit: 500, MaxNameLen: 64}, log)
	chats := chat.NewService(db, c, rooms, rec, config.ChatConfig{MaxMessageLen: 200, RecentBuffer: 10, HistoryLimit: 100}, log)

	a := audit.New(db, log)
	t.Cleanup(func() { a.Stop(context.Background()) })
	sched := scheduler.New(log)
	t.Cleanup(sched.Stop)

	socks := &fakeSockets{}
	admin := rest.NewAdminHandler(db, rooms, a, sched, log)
	admin.SetDisconnector(socks)

	h := &rest.Handlers{
		Auth:          rest.NewAuthHandler(db, c, testSec, log),
		Friends:       rest.NewFriendHandler(friends, log),
		Rooms:         rest.NewRoomHandler(rooms, log),
		Messages:      rest.NewMessageHandler(chats, log),
		Presence:      rest.NewPresenceHandler(pres, testPresence, log),
		Notifications: rest.NewNotificationHandler(store, log),
		Admin:         admin,
	}
	r := gin.New()
	r.Use(mw.TraceID())
	h.Mount(r.Group("/api"), rest.Guards{
		Protect: []gin.HandlerFunc{mw.Auth(testSec, c), mw.Touch(pres, c, 0, log)},
		Admin:   []gin.HandlerFunc{mw.AdminAuth(adminKey)},
	}, a)
	return &harness{r: r, db: db, rec: rec, audit: a, sched: sched, socks: socks}
}

type user struct {
	id    int64
	token string
}

func (h *harness) login(t *testing.T, username string) user {
	t.Helper()
	w := h.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": "pass1234"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token  string `json:"token"`
		UserID int64  `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return user{id: resp.UserID, token: resp.Token}
}

func (h *harness) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewReader(b)
	} else {
		buf = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
