package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kasuganosora/hangout/metrics"
	"github.com/kasuganosora/hangout/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store persists notices as in-app notifications.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Notify(ctx context.Context, n Notice) error {
	payload, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("notify: encode payload: %w", err)
	}
	err = s.db.WithContext(ctx).Create(&model.Notification{
		UserID:  n.UserID,
		Kind:    n.Kind,
		Payload: datatypes.JSON(payload),
	}).Error
	metrics.NotificationsSent.WithLabelValues("inapp", metrics.Outcome(err)).Inc()
	return err
}

// Unread returns the user's unread notifications, newest first.
func (s *Store) Unread(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var list []model.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND read_at IS NULL", userID).
		Order("id DESC").Limit(limit).
		Find(&list).Error
	return list, err
}

// MarkRead marks one of the user's notifications as read. It reports false
// when no unread notification with that id belongs to the user.
func (s *Store) MarkRead(ctx context.Context, userID, id int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", time.Now())
	return res.RowsAffected == 1, res.Error
}
