package model

import (
	"fmt"
	"time"
)

type FriendshipStatus = string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipRejected FriendshipStatus = "rejected"
)

// Friendship is the single edge between two users. RequesterID and
// RecipientID keep the direction of the original request; PairKey is the
// order-independent key that makes the edge unique per unordered pair.
type Friendship struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RequesterID int64     `gorm:"index:idx_friendship_requester;not null" json:"requester_id"`
	RecipientID int64     `gorm:"index:idx_friendship_recipient;not null" json:"recipient_id"`
	PairKey     string    `gorm:"uniqueIndex;size:48;not null" json:"-"`
	Status      string    `gorm:"size:16;default:pending;not null" json:"status"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PairKey returns the canonical "lo:hi" key for two user ids.
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// Other returns the counterpart of userID in the friendship.
func (f *Friendship) Other(userID int64) int64 {
	if f.RequesterID == userID {
		return f.RecipientID
	}
	return f.RequesterID
}
