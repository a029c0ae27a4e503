// Package presence derives online and live state from activity timestamps.
// Presence is a best-effort signal: writes are last-write-wins and readers
// may see a value that is a moment stale.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/hangout/config"
	"github.com/kasuganosora/hangout/model"
	"github.com/kasuganosora/hangout/realtime"
	"github.com/kasuganosora/hangout/social"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxTitleLen = 128

// Online reports whether lastSeen falls inside window before now. A user
// that was never seen is offline.
func Online(lastSeen *time.Time, now time.Time, window time.Duration) bool {
	return lastSeen != nil && now.Sub(*lastSeen) < window
}

// IsLive reports whether a session is flagged live and heart-beated within
// window.
func IsLive(s *model.LiveSession, now time.Time, window time.Duration) bool {
	return s != nil && s.IsLive && now.Sub(s.LastHeartbeatAt) < window
}

// Service tracks user activity and live sessions.
type Service struct {
	db     *gorm.DB
	rt     realtime.Emitter
	cfg    config.PresenceConfig
	owners *social.KeyedMutex
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a presence Service.
func NewService(db *gorm.DB, rt realtime.Emitter, cfg config.PresenceConfig, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		rt:     rt,
		cfg:    cfg,
		owners: social.NewKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// SetClock overrides the time source.
func (svc *Service) SetClock(now func() time.Time) { svc.now = now }

// Touch records activity for userID.
func (svc *Service) Touch(ctx context.Context, userID int64) error {
	res := svc.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("last_seen_at", svc.now())
	if res.Error != nil {
		return social.Internal("touch", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("touch user %d: %w", userID, social.ErrNotFound)
	}
	return nil
}

// IsOnline reports whether userID was active within window. A non-positive
// window falls back to the configured online window.
func (svc *Service) IsOnline(ctx context.Context, userID int64, window time.Duration) (bool, error) {
	if window <= 0 {
		window = svc.cfg.OnlineWindow
	}
	var u model.User
	err := svc.db.WithContext(ctx).Select("id", "last_seen_at").First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("user %d: %w", userID, social.ErrNotFound)
	}
	if err != nil {
		return false, social.Internal("is online", err)
	}
	return Online(u.LastSeenAt, svc.now(), window), nil
}

// StartLive opens a live session for ownerID. An owner has at most one live
// session; a stale one that the reaper has not closed yet is closed first.
func (svc *Service) StartLive(ctx context.Context, ownerID int64, title string) (*model.LiveSession, error) {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > maxTitleLen {
		return nil, fmt.Errorf("title longer than %d characters: %w", maxTitleLen, social.ErrInvalidInput)
	}

	unlock := svc.owners.Lock(fmt.Sprint(ownerID))
	defer unlock()

	now := svc.now()
	cutoff := now.Add(-svc.cfg.LiveWindow)
	var session *model.LiveSession
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.LiveSession{}).
			Where("owner_id = ? AND is_live = ? AND last_heartbeat_at < ?", ownerID, true, cutoff).
			Updates(map[string]interface{}{"is_live": false, "ended_at": now}).Error; err != nil {
			return err
		}
		var live int64
		if err := tx.Model(&model.LiveSession{}).
			Where("owner_id = ? AND is_live = ?", ownerID, true).
			Count(&live).Error; err != nil {
			return err
		}
		if live > 0 {
			return social.ErrInvalidState
		}
		session = &model.LiveSession{
			OwnerID:         ownerID,
			Title:           title,
			IsLive:          true,
			StartedAt:       now,
			LastHeartbeatAt: now,
		}
		return tx.Create(session).Error
	})
	if errors.Is(err, social.ErrInvalidState) {
		return nil, fmt.Errorf("user %d is already live: %w", ownerID, err)
	}
	if err != nil {
		return nil, social.Internal("start live", err)
	}

	svc.rt.Emit(ctx, social.LiveTopic, realtime.EventLiveStarted, realtime.LivePayload{
		SessionID: session.ID, OwnerID: ownerID, Title: title,
	})
	return session, nil
}

// Heartbeat keeps a live session alive. Sessions that are missing, ended or
// already past the live window are NotFound.
func (svc *Service) Heartbeat(ctx context.Context, sessionID, ownerID int64) error {
	s, err := svc.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.OwnerID != ownerID {
		return fmt.Errorf("live session %d: %w", sessionID, social.ErrForbidden)
	}
	now := svc.now()
	if !IsLive(s, now, svc.cfg.LiveWindow) {
		return fmt.Errorf("live session %d is not live: %w", sessionID, social.ErrNotFound)
	}
	res := svc.db.WithContext(ctx).Model(&model.LiveSession{}).
		Where("id = ? AND is_live = ?", sessionID, true).
		Update("last_heartbeat_at", now)
	if res.Error != nil {
		return social.Internal("heartbeat", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("live session %d is not live: %w", sessionID, social.ErrNotFound)
	}
	return nil
}

// EndLive closes the owner's session.
func (svc *Service) EndLive(ctx context.Context, sessionID, ownerID int64) error {
	s, err := svc.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.OwnerID != ownerID {
		return fmt.Errorf("live session %d: %w", sessionID, social.ErrForbidden)
	}
	res := svc.db.WithContext(ctx).Model(&model.LiveSession{}).
		Where("id = ? AND is_live = ?", sessionID, true).
		Updates(map[string]interface{}{"is_live": false, "ended_at": svc.now()})
	if res.Error != nil {
		return social.Internal("end live", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("live session %d already ended: %w", sessionID, social.ErrInvalidState)
	}
	svc.rt.Emit(ctx, social.LiveTopic, realtime.EventLiveEnded, realtime.LivePayload{
		SessionID: sessionID, OwnerID: ownerID,
	})
	return nil
}

// ReapStale closes every live session whose heartbeat is older than the
// live window and returns how many it closed.
func (svc *Service) ReapStale(ctx context.Context) (int, error) {
	now := svc.now()
	cutoff := now.Add(-svc.cfg.LiveWindow)

	var stale []model.LiveSession
	if err := svc.db.WithContext(ctx).
		Where("is_live = ? AND last_heartbeat_at < ?", true, cutoff).
		Find(&stale).Error; err != nil {
		return 0, social.Internal("reap stale", err)
	}

	closed := 0
	for _, s := range stale {
		// A heartbeat that lands between the scan and here keeps the session.
		res := svc.db.WithContext(ctx).Model(&model.LiveSession{}).
			Where("id = ? AND is_live = ? AND last_heartbeat_at < ?", s.ID, true, cutoff).
			Updates(map[string]interface{}{"is_live": false, "ended_at": now})
		if res.Error != nil {
			svc.logger.Warn("reap live session failed", zap.Int64("session_id", s.ID), zap.Error(res.Error))
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}
		closed++
		svc.rt.Emit(ctx, social.LiveTopic, realtime.EventLiveEnded, realtime.LivePayload{
			SessionID: s.ID, OwnerID: s.OwnerID,
		})
	}
	if closed > 0 {
		svc.logger.Info("reaped stale live sessions", zap.Int("count", closed))
	}
	return closed, nil
}

// LiveNow lists sessions that currently satisfy IsLive.
func (svc *Service) LiveNow(ctx context.Context) ([]model.LiveSession, error) {
	cutoff := svc.now().Add(-svc.cfg.LiveWindow)
	var list []model.LiveSession
	if err := svc.db.WithContext(ctx).
		Where("is_live = ? AND last_heartbeat_at >= ?", true, cutoff).
		Order("started_at DESC").
		Find(&list).Error; err != nil {
		return nil, social.Internal("live now", err)
	}
	return list, nil
}

func (svc *Service) load(ctx context.Context, sessionID int64) (*model.LiveSession, error) {
	var s model.LiveSession
	err := svc.db.WithContext(ctx).First(&s, sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("live session %d: %w", sessionID, social.ErrNotFound)
	}
	if err != nil {
		return nil, social.Internal("load live session", err)
	}
	return &s, nil
}
