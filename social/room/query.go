package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/kasuganosora/hangout/model"
	"github.com/kasuganosora/hangout/social"
	"gorm.io/gorm"
)

// Get returns the room with the given external id.
func (svc *Service) Get(ctx context.Context, roomID string) (*model.Room, error) {
	var r model.Room
	err := svc.db.WithContext(ctx).Where("room_id = ?", roomID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("room %s: %w", roomID, social.ErrNotFound)
	}
	if err != nil {
		return nil, social.Internal("get room", err)
	}
	return &r, nil
}

// GetByPK returns the room with the given internal primary key.
func (svc *Service) GetByPK(ctx context.Context, id int64) (*model.Room, error) {
	var r model.Room
	err := svc.db.WithContext(ctx).First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("room #%d: %w", id, social.ErrNotFound)
	}
	if err != nil {
		return nil, social.Internal("get room", err)
	}
	return &r, nil
}

// ListPublic returns public rooms, newest first.
func (svc *Service) ListPublic(ctx context.Context, limit int) ([]model.Room, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rooms := []model.Room{}
	if err := svc.db.WithContext(ctx).
		Where("privacy = ?", model.PrivacyPublic).
		Order("id DESC").Limit(limit).
		Find(&rooms).Error; err != nil {
		return nil, social.Internal("list rooms", err)
	}
	return rooms, nil
}

// Members returns the active memberships of a room.
func (svc *Service) Members(ctx context.Context, roomID string) ([]model.RoomMembership, error) {
	return svc.memberships(ctx, roomID, true)
}

// History returns every membership a room has had, including members who
// left and pending requests.
func (svc *Service) History(ctx context.Context, roomID string) ([]model.RoomMembership, error) {
	return svc.memberships(ctx, roomID, false)
}

func (svc *Service) memberships(ctx context.Context, roomID string, activeOnly bool) ([]model.RoomMembership, error) {
	r, err := svc.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	q := svc.db.WithContext(ctx).Where("room_id = ?", r.ID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	list := []model.RoomMembership{}
	if err := q.Order("id").Find(&list).Error; err != nil {
		return nil, social.Internal("list members", err)
	}
	return list, nil
}

// IsActiveMember reports whether userID holds an active membership in the
// room with primary key roomPK.
func (svc *Service) IsActiveMember(ctx context.Context, roomPK, userID int64) (bool, error) {
	var n int64
	err := svc.db.WithContext(ctx).Model(&model.RoomMembership{}).
		Where("room_id = ? AND user_id = ? AND is_active = ?", roomPK, userID, true).
		Count(&n).Error
	if err != nil {
		return false, social.Internal("check membership", err)
	}
	return n > 0, nil
}

// ActiveRoomIDs returns the external ids of every room userID is active in.
func (svc *Service) ActiveRoomIDs(ctx context.Context, userID int64) ([]string, error) {
	ids := []string{}
	err := svc.db.WithContext(ctx).Model(&model.Room{}).
		Joins("JOIN room_memberships ON room_memberships.room_id = rooms.id").
		Where("room_memberships.user_id = ? AND room_memberships.is_active = ?", userID, true).
		Order("rooms.id").
		Pluck("rooms.room_id", &ids).Error
	if err != nil {
		return nil, social.Internal("active rooms", err)
	}
	return ids, nil
}

func (svc *Service) membership(ctx context.Context, roomPK, userID int64) (*model.RoomMembership, error) {
	var m model.RoomMembership
	err := svc.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomPK, userID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("membership of user %d: %w", userID, social.ErrNotFound)
	}
	if err != nil {
		return nil, social.Internal("load membership", err)
	}
	return &m, nil
}
