// Package room is the room membership registry: rooms, their members and
// member roles, with capacity enforced at join time.
package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kasuganosora/hangout/config"
	dbadapter "github.com/kasuganosora/hangout/db"
	"github.com/kasuganosora/hangout/model"
	"github.com/kasuganosora/hangout/realtime"
	"github.com/kasuganosora/hangout/social"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Spec describes a room to create.
type Spec struct {
	Name            string
	Privacy         string
	MaxMembers      int
	RequireApproval bool
}

// Service manages rooms and memberships.
type Service struct {
	db     *gorm.DB
	rt     realtime.Emitter
	cfg    config.RoomConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a room Service.
func NewService(db *gorm.DB, rt realtime.Emitter, cfg config.RoomConfig, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		rt:     rt,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// SetClock overrides the time source.
func (svc *Service) SetClock(now func() time.Time) { svc.now = now }

// CreateRoom creates a room owned by ownerID. The owner's admin membership
// is written in the same transaction, so a room never exists without it.
func (svc *Service) CreateRoom(ctx context.Context, ownerID int64, spec Spec) (*model.Room, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, fmt.Errorf("room name is empty: %w", social.ErrInvalidInput)
	}
	if svc.cfg.MaxNameLen > 0 && utf8.RuneCountInString(name) > svc.cfg.MaxNameLen {
		return nil, fmt.Errorf("room name longer than %d characters: %w", svc.cfg.MaxNameLen, social.ErrInvalidInput)
	}
	privacy := spec.Privacy
	if privacy == "" {
		privacy = model.PrivacyPublic
	}
	if privacy != model.PrivacyPublic && privacy != model.PrivacyPrivate {
		return nil, fmt.Errorf("privacy %q: %w", spec.Privacy, social.ErrInvalidInput)
	}
	maxMembers := spec.MaxMembers
	if maxMembers == 0 {
		maxMembers = svc.cfg.DefaultMaxMembers
	}
	if maxMembers < 1 || (svc.cfg.MaxMembersLimit > 0 && maxMembers > svc.cfg.MaxMembersLimit) {
		return nil, fmt.Errorf("max members %d: %w", spec.MaxMembers, social.ErrInvalidInput)
	}

	now := svc.now()
	r := &model.Room{
		RoomID:          uuid.NewString(),
		Name:            name,
		Privacy:         privacy,
		RequireApproval: spec.RequireApproval,
		MaxMembers:      maxMembers,
		ActiveMembers:   1,
		OwnerID:         ownerID,
		CreatedAt:       now,
	}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(r).Error; err != nil {
			return err
		}
		return tx.Create(&model.RoomMembership{
			UserID:   ownerID,
			RoomID:   r.ID,
			Role:     model.MemberRoleAdmin,
			IsActive: true,
			JoinedAt: now,
		}).Error
	})
	if err != nil {
		return nil, social.Internal("create room", err)
	}
	svc.logger.Info("room created", zap.String("room_id", r.RoomID), zap.Int64("owner_id", ownerID))
	return r, nil
}

// JoinRoom adds userID to the room. Rooms that are private and require
// approval record a pending membership instead; it becomes active through
// SetMembershipActive.
func (svc *Service) JoinRoom(ctx context.Context, userID int64, roomID string) (*model.RoomMembership, error) {
	r, err := svc.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	existing, err := svc.membership(ctx, r.ID, userID)
	if err != nil && !errors.Is(err, social.ErrNotFound) {
		return nil, err
	}
	if existing != nil && (existing.IsActive || existing.PendingApproval) {
		return nil, fmt.Errorf("user %d in room %s: %w", userID, roomID, social.ErrAlreadyMember)
	}

	if r.Privacy == model.PrivacyPrivate && r.RequireApproval {
		return svc.requestApproval(ctx, r, userID, existing)
	}

	m, err := svc.activate(ctx, r, userID, existing)
	if err != nil {
		return nil, err
	}
	svc.rt.Emit(ctx, social.RoomTopic(r.RoomID), realtime.EventMemberJoined, realtime.MemberPayload{UserID: userID})
	return m, nil
}

func (svc *Service) requestApproval(ctx context.Context, r *model.Room, userID int64, existing *model.RoomMembership) (*model.RoomMembership, error) {
	if existing != nil {
		res := svc.db.WithContext(ctx).Model(&model.RoomMembership{}).
			Where("id = ? AND is_active = ? AND pending_approval = ?", existing.ID, false, false).
			Update("pending_approval", true)
		if res.Error != nil {
			return nil, social.Internal("join room", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, fmt.Errorf("user %d in room %s: %w", userID, r.RoomID, social.ErrAlreadyMember)
		}
		existing.PendingApproval = true
		return existing, nil
	}
	m := &model.RoomMembership{
		UserID:          userID,
		RoomID:          r.ID,
		Role:            model.MemberRoleMember,
		PendingApproval: true,
		JoinedAt:        svc.now(),
	}
	if err := svc.db.WithContext(ctx).Create(m).Error; err != nil {
		if dbadapter.IsUniqueViolation(err) {
			return nil, fmt.Errorf("user %d in room %s: %w", userID, r.RoomID, social.ErrAlreadyMember)
		}
		return nil, social.Internal("join room", err)
	}
	return m, nil
}

// activate takes a seat and marks the membership active in one transaction.
// The seat is claimed by a conditional increment of the room's counter, so
// concurrent joins can never push it past max_members.
func (svc *Service) activate(ctx context.Context, r *model.Room, userID int64, existing *model.RoomMembership) (*model.RoomMembership, error) {
	now := svc.now()
	var m *model.RoomMembership
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seat := tx.Model(&model.Room{}).
			Where("id = ? AND active_members < max_members", r.ID).
			Update("active_members", gorm.Expr("active_members + 1"))
		if seat.Error != nil {
			return seat.Error
		}
		if seat.RowsAffected == 0 {
			return social.ErrFull
		}

		if existing != nil {
			res := tx.Model(&model.RoomMembership{}).
				Where("id = ? AND is_active = ?", existing.ID, false).
				Updates(map[string]interface{}{
					"is_active":        true,
					"pending_approval": false,
					"left_at":          nil,
					"joined_at":        now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return social.ErrAlreadyMember
			}
			existing.IsActive = true
			existing.PendingApproval = false
			existing.LeftAt = nil
			existing.JoinedAt = now
			m = existing
			return nil
		}

		m = &model.RoomMembership{
			UserID:   userID,
			RoomID:   r.ID,
			Role:     model.MemberRoleMember,
			IsActive: true,
			JoinedAt: now,
		}
		if err := tx.Create(m).Error; err != nil {
			if dbadapter.IsUniqueViolation(err) {
				return social.ErrAlreadyMember
			}
			return err
		}
		return nil
	})
	switch {
	case err == nil:
		return m, nil
	case errors.Is(err, social.ErrFull), errors.Is(err, social.ErrAlreadyMember):
		return nil, fmt.Errorf("user %d joining room %s: %w", userID, r.RoomID, err)
	default:
		return nil, social.Internal("join room", err)
	}
}

// SetMembershipActive activates or deactivates an existing membership.
// Activation takes a seat exactly like JoinRoom. Deactivating a membership
// that is only pending clears the request.
func (svc *Service) SetMembershipActive(ctx context.Context, roomID string, userID int64, active bool) error {
	r, err := svc.Get(ctx, roomID)
	if err != nil {
		return err
	}
	m, err := svc.membership(ctx, r.ID, userID)
	if err != nil {
		return err
	}

	if active {
		if m.IsActive {
			return fmt.Errorf("user %d in room %s: %w", userID, roomID, social.ErrAlreadyMember)
		}
		if _, err := svc.activate(ctx, r, userID, m); err != nil {
			return err
		}
		svc.rt.Emit(ctx, social.RoomTopic(r.RoomID), realtime.EventMemberJoined, realtime.MemberPayload{UserID: userID})
		return nil
	}

	if !m.IsActive {
		if !m.PendingApproval {
			return fmt.Errorf("user %d is not active in room %s: %w", userID, roomID, social.ErrInvalidState)
		}
		res := svc.db.WithContext(ctx).Model(&model.RoomMembership{}).
			Where("id = ? AND is_active = ?", m.ID, false).
			Update("pending_approval", false)
		if res.Error != nil {
			return social.Internal("decline membership", res.Error)
		}
		return nil
	}
	return svc.deactivate(ctx, r, m)
}

// Approve activates a pending membership on behalf of a room admin.
func (svc *Service) Approve(ctx context.Context, actor social.Actor, roomID string, userID int64) error {
	r, err := svc.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if err := svc.authorize(ctx, actor, r); err != nil {
		return err
	}
	m, err := svc.membership(ctx, r.ID, userID)
	if err != nil {
		return err
	}
	if !m.PendingApproval {
		return fmt.Errorf("user %d has no pending request in room %s: %w", userID, roomID, social.ErrInvalidState)
	}
	return svc.SetMembershipActive(ctx, roomID, userID, true)
}

// LeaveRoom deactivates userID's membership and frees the seat. The row is
// kept for moderation history.
func (svc *Service) LeaveRoom(ctx context.Context, userID int64, roomID string) error {
	r, err := svc.Get(ctx, roomID)
	if err != nil {
		return err
	}
	m, err := svc.membership(ctx, r.ID, userID)
	if err != nil {
		return err
	}
	if !m.IsActive {
		return fmt.Errorf("user %d is not in room %s: %w", userID, roomID, social.ErrNotFound)
	}
	return svc.deactivate(ctx, r, m)
}

func (svc *Service) deactivate(ctx context.Context, r *model.Room, m *model.RoomMembership) error {
	now := svc.now()
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.RoomMembership{}).
			Where("id = ? AND is_active = ?", m.ID, true).
			Updates(map[string]interface{}{"is_active": false, "left_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return social.ErrNotFound
		}
		return tx.Model(&model.Room{}).
			Where("id = ? AND active_members > 0", r.ID).
			Update("active_members", gorm.Expr("active_members - 1")).Error
	})
	if errors.Is(err, social.ErrNotFound) {
		return fmt.Errorf("user %d is not in room %s: %w", m.UserID, r.RoomID, err)
	}
	if err != nil {
		return social.Internal("leave room", err)
	}
	svc.rt.Emit(ctx, social.RoomTopic(r.RoomID), realtime.EventMemberLeft, realtime.MemberPayload{UserID: m.UserID})
	return nil
}

// Promote makes an active member a room admin.
func (svc *Service) Promote(ctx context.Context, actor social.Actor, roomID string, targetUserID int64) error {
	return svc.setRole(ctx, actor, roomID, targetUserID, model.MemberRoleMember, model.MemberRoleAdmin)
}

// Demote turns a room admin back into a member. Only the owner or platform
// staff may demote the owner.
func (svc *Service) Demote(ctx context.Context, actor social.Actor, roomID string, targetUserID int64) error {
	return svc.setRole(ctx, actor, roomID, targetUserID, model.MemberRoleAdmin, model.MemberRoleMember)
}

func (svc *Service) setRole(ctx context.Context, actor social.Actor, roomID string, targetUserID int64, from, to string) error {
	r, err := svc.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if err := svc.authorize(ctx, actor, r); err != nil {
		return err
	}
	if to == model.MemberRoleMember && targetUserID == r.OwnerID &&
		actor.UserID != r.OwnerID && !actor.IsStaff() {
		return fmt.Errorf("only the owner can demote the owner of room %s: %w", roomID, social.ErrForbidden)
	}

	m, err := svc.membership(ctx, r.ID, targetUserID)
	if err != nil {
		return err
	}
	if !m.IsActive {
		return fmt.Errorf("user %d is not in room %s: %w", targetUserID, roomID, social.ErrNotFound)
	}
	if m.Role != from {
		return fmt.Errorf("user %d is already %s in room %s: %w", targetUserID, m.Role, roomID, social.ErrInvalidState)
	}
	res := svc.db.WithContext(ctx).Model(&model.RoomMembership{}).
		Where("id = ? AND role = ? AND is_active = ?", m.ID, from, true).
		Update("role", to)
	if res.Error != nil {
		return social.Internal("set member role", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("membership of user %d changed concurrently: %w", targetUserID, social.ErrInvalidState)
	}
	svc.logger.Info("room role changed",
		zap.String("room_id", roomID),
		zap.Int64("actor_id", actor.UserID),
		zap.Int64("user_id", targetUserID),
		zap.String("role", to))
	return nil
}

// authorize requires the actor to be an active admin of r, unless the actor
// is platform staff.
func (svc *Service) authorize(ctx context.Context, actor social.Actor, r *model.Room) error {
	if actor.IsStaff() {
		return nil
	}
	m, err := svc.membership(ctx, r.ID, actor.UserID)
	if errors.Is(err, social.ErrNotFound) {
		return fmt.Errorf("user %d is not an admin of room %s: %w", actor.UserID, r.RoomID, social.ErrForbidden)
	}
	if err != nil {
		return err
	}
	if !m.IsActive || m.Role != model.MemberRoleAdmin {
		return fmt.Errorf("user %d is not an admin of room %s: %w", actor.UserID, r.RoomID, social.ErrForbidden)
	}
	return nil
}
