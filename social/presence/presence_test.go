package presence

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/hangout/config"
	"github.com/kasuganosora/hangout/model"
	"github.com/kasuganosora/hangout/realtime"
	"github.com/kasuganosora/hangout/realtime/realtimetest"
	"github.com/kasuganosora/hangout/social"
	"github.com/kasuganosora/hangout/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

var testCfg = config.PresenceConfig{
	OnlineWindow: 2 * time.Minute,
	FriendWindow: 5 * time.Minute,
	LiveWindow:   2 * time.Minute,
}

func newService(t *testing.T) (*Service, *gorm.DB, *testutil.Clock, *realtimetest.Recorder) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	rec := &realtimetest.Recorder{}
	clock := testutil.NewClock(time.Time{})
	svc := NewService(db, rec, testCfg, nop())
	svc.SetClock(clock.NowFunc())
	return svc, db, clock, rec
}

func TestOnline(t *testing.T) {
	now := testutil.ReferenceTime()
	seen := now.Add(-time.Minute)
	edge := now.Add(-2 * time.Minute)

	assert.False(t, Online(nil, now, time.Minute))
	assert.True(t, Online(&seen, now, 2*time.Minute))
	assert.False(t, Online(&seen, now, 30*time.Second))
	assert.False(t, Online(&edge, now, 2*time.Minute), "window end is exclusive")
}

func TestIsLive(t *testing.T) {
	now := testutil.ReferenceTime()
	s := &model.LiveSession{IsLive: true, LastHeartbeatAt: now.Add(-time.Minute)}
	assert.True(t, IsLive(s, now, 2*time.Minute))
	assert.False(t, IsLive(s, now, 30*time.Second))
	s.IsLive = false
	assert.False(t, IsLive(s, now, 2*time.Minute))
	assert.False(t, IsLive(nil, now, time.Minute))
}

func TestTouch_OnlineWindow(t *testing.T) {
	svc, db, clock, _ := newService(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "ana")

	online, err := svc.IsOnline(ctx, u.ID, 2*time.Minute)
	require.NoError(t, err)
	assert.False(t, online, "never seen")

	require.NoError(t, svc.Touch(ctx, u.ID))
	online, err = svc.IsOnline(ctx, u.ID, 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, online)

	clock.Advance(119 * time.Second)
	online, _ = svc.IsOnline(ctx, u.ID, 2*time.Minute)
	assert.True(t, online)

	clock.Advance(time.Second)
	online, _ = svc.IsOnline(ctx, u.ID, 2*time.Minute)
	assert.False(t, online, "120s without activity")

	online, _ = svc.IsOnline(ctx, u.ID, 5*time.Minute)
	assert.True(t, online, "a wider window still counts the user")
}

func TestIsOnline_DefaultWindow(t *testing.T) {
	svc, db, clock, _ := newService(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "ben")

	require.NoError(t, svc.Touch(ctx, u.ID))
	clock.Advance(3 * time.Minute)
	online, err := svc.IsOnline(ctx, u.ID, 0)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestTouch_UnknownUser(t *testing.T) {
	svc, _, _, _ := newService(t)
	assert.ErrorIs(t, svc.Touch(context.Background(), 404), social.ErrNotFound)
	_, err := svc.IsOnline(context.Background(), 404, time.Minute)
	assert.ErrorIs(t, err, social.ErrNotFound)
}

func TestStartLive_OnePerOwner(t *testing.T) {
	svc, db, _, rec := newService(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "cam")

	s, err := svc.StartLive(ctx, u.ID, "  late night  ")
	require.NoError(t, err)
	assert.True(t, s.IsLive)
	assert.Equal(t, "late night", s.Title)

	_, err = svc.StartLive(ctx, u.ID, "again")
	assert.ErrorIs(t, err, social.ErrInvalidState)

	started := rec.ByType(realtime.EventLiveStarted)
	require.Len(t, started, 1)
	assert.Equal(t, social.LiveTopic, started[0].Topic)
}

func TestStartLive_TitleTooLong(t *testing.T) {
	svc, db, _, _ := newService(t)
	u := testutil.CreateUser(t, db, "dee")
	long := make([]rune, maxTitleLen+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := svc.StartLive(context.Background(), u.ID, string(long))
	assert.ErrorIs(t, err, social.ErrInvalidInput)
}

func TestHeartbeat(t *testing.T) {
	svc, db, clock, _ := newService(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "eve")
	other := testutil.CreateUser(t, db, "fay")

	s, err := svc.StartLive(ctx, owner.ID, "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Heartbeat(ctx, 999, owner.ID), social.ErrNotFound)
	assert.ErrorIs(t, svc.Heartbeat(ctx, s.ID, other.ID), social.ErrForbidden)

	clock.Advance(90 * time.Second)
	require.NoError(t, svc.Heartbeat(ctx, s.ID, owner.ID))

	// 90s after the refreshed heartbeat the session is still inside the window.
	clock.Advance(90 * time.Second)
	n, err := svc.ReapStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.NoError(t, svc.Heartbeat(ctx, s.ID, owner.ID))

	clock.Advance(2 * time.Minute)
	assert.ErrorIs(t, svc.Heartbeat(ctx, s.ID, owner.ID), social.ErrNotFound, "stale session")
}

func TestReapStale(t *testing.T) {
	svc, db, clock, rec := newService(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, db, "gus")
	b := testutil.CreateUser(t, db, "hal")

	sa, err := svc.StartLive(ctx, a.ID, "a")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	sb, err := svc.StartLive(ctx, b.ID, "b")
	require.NoError(t, err)

	clock.Advance(90 * time.Second) // a is 150s old, b is 90s old
	n, err := svc.ReapStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var got model.LiveSession
	require.NoError(t, db.First(&got, sa.ID).Error)
	assert.False(t, got.IsLive)
	assert.NotNil(t, got.EndedAt)

	live, err := svc.LiveNow(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, sb.ID, live[0].ID)

	ended := rec.ByType(realtime.EventLiveEnded)
	require.Len(t, ended, 1)
	var p realtime.LivePayload
	require.NoError(t, ended[0].Decode(&p))
	assert.Equal(t, sa.ID, p.SessionID)

	n, err = svc.ReapStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "already reaped")
}

func TestReapStale_LogsOncePerSweep(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	db := testutil.SetupTestDB(t)
	clock := testutil.NewClock(time.Time{})
	svc := NewService(db, &realtimetest.Recorder{}, testCfg, zap.New(core))
	svc.SetClock(clock.NowFunc())
	ctx := context.Background()

	_, err := svc.ReapStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, logs.FilterMessage("reaped stale live sessions").Len(), "quiet when nothing is reaped")

	for _, name := range []string{"jo", "kit"} {
		u := testutil.CreateUser(t, db, name)
		_, err := svc.StartLive(ctx, u.ID, name)
		require.NoError(t, err)
	}
	clock.Advance(5 * time.Minute)
	n, err := svc.ReapStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	reaped := logs.FilterMessage("reaped stale live sessions").All()
	require.Len(t, reaped, 1)
	assert.Equal(t, int64(2), reaped[0].ContextMap()["count"])
}

func TestStartLive_ReplacesStaleSession(t *testing.T) {
	svc, db, clock, _ := newService(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "ivy")

	old, err := svc.StartLive(ctx, u.ID, "first")
	require.NoError(t, err)
	clock.Advance(5 * time.Minute)

	fresh, err := svc.StartLive(ctx, u.ID, "second")
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)

	var got model.LiveSession
	require.NoError(t, db.First(&got, old.ID).Error)
	assert.False(t, got.IsLive)
}

func TestEndLive(t *testing.T) {
	svc, db, _, rec := newService(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "jay")
	other := testutil.CreateUser(t, db, "kim")

	s, err := svc.StartLive(ctx, u.ID, "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.EndLive(ctx, s.ID, other.ID), social.ErrForbidden)
	require.NoError(t, svc.EndLive(ctx, s.ID, u.ID))
	assert.ErrorIs(t, svc.EndLive(ctx, s.ID, u.ID), social.ErrInvalidState)
	assert.ErrorIs(t, svc.Heartbeat(ctx, s.ID, u.ID), social.ErrNotFound)
	assert.Len(t, rec.ByType(realtime.EventLiveEnded), 1)
}
