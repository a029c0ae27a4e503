package model

import "time"

type Privacy = string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
)

type MemberRole = string

const (
	MemberRoleMember MemberRole = "member"
	MemberRoleAdmin  MemberRole = "admin"
)

// Room is a chat room. RoomID is the external slug; ID stays internal.
// ActiveMembers mirrors the number of active memberships and is the column
// the capacity check updates conditionally.
type Room struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	RoomID          string    `gorm:"uniqueIndex;size:36;not null" json:"room_id"`
	Name            string    `gorm:"size:64;not null" json:"name"`
	Privacy         string    `gorm:"size:16;default:public;not null" json:"privacy"`
	RequireApproval bool      `gorm:"default:false" json:"require_approval"`
	MaxMembers      int       `gorm:"not null" json:"max_members"`
	ActiveMembers   int       `gorm:"default:0;not null" json:"active_members"`
	OwnerID         int64     `gorm:"index:idx_room_owner;not null" json:"owner_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// RoomMembership is a user's participation record in a room. Rows are never
// deleted; leaving flips IsActive so moderators can see who was present.
type RoomMembership struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64      `gorm:"uniqueIndex:idx_membership_user_room;not null" json:"user_id"`
	RoomID          int64      `gorm:"uniqueIndex:idx_membership_user_room;index:idx_membership_room;not null" json:"-"`
	Role            string     `gorm:"size:16;default:member;not null" json:"role"`
	IsActive        bool       `gorm:"default:false;not null" json:"is_active"`
	PendingApproval bool       `gorm:"default:false;not null" json:"pending_approval"`
	JoinedAt        time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LeftAt          *time.Time `json:"left_at"`
}
