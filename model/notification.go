package model

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is an in-app notice kept for users who were offline when the
// real-time event went out.
type Notification struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64          `gorm:"index:idx_notification_user;not null" json:"user_id"`
	Kind      string         `gorm:"size:32;not null" json:"kind"`
	Payload   datatypes.JSON `json:"payload"`
	ReadAt    *time.Time     `json:"read_at"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
