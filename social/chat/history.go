package chat

import (
	"context"
	"fmt"

	"github.com/kasuganosora/hangout/model"
	"github.com/kasuganosora/hangout/social"
	"gorm.io/gorm"
)

// History returns up to limit room messages older than beforeID (0 for the
// newest), oldest first. Only active members may read it.
func (svc *Service) History(ctx context.Context, userID int64, roomID string, beforeID int64, limit int) ([]model.Message, error) {
	r, err := svc.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ok, err := svc.rooms.IsActiveMember(ctx, r.ID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %d is not in room %s: %w", userID, roomID, social.ErrForbidden)
	}
	q := svc.db.WithContext(ctx).Where("room_id = ?", r.ID)
	return svc.page(q, beforeID, limit)
}

// Conversation returns the private messages exchanged by userID and
// otherID, oldest first.
func (svc *Service) Conversation(ctx context.Context, userID, otherID, beforeID int64, limit int) ([]model.Message, error) {
	if userID == otherID {
		return nil, social.ErrInvalidTarget
	}
	q := svc.db.WithContext(ctx).
		Where("(author_id = ? AND to_user_id = ?) OR (author_id = ? AND to_user_id = ?)",
			userID, otherID, otherID, userID)
	return svc.page(q, beforeID, limit)
}

func (svc *Service) page(q *gorm.DB, beforeID int64, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > svc.cfg.HistoryLimit {
		limit = svc.cfg.HistoryLimit
	}
	if limit <= 0 {
		limit = 50
	}
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	list := []model.Message{}
	if err := q.Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, social.Internal("message history", err)
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}
