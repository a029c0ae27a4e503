package model

import "time"

// Role is a user's platform-wide role supplied by the identity layer.
type Role = string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// User is the identity projection the social core reads from. Only
// LastSeenAt is written by the core.
type User struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	DisplayName  string     `gorm:"size:64" json:"display_name"`
	Email        string     `gorm:"size:128" json:"-"`
	PasswordHash string     `gorm:"size:64;not null" json:"-"`
	Role         string     `gorm:"size:16;default:member" json:"role"`
	Status       int        `gorm:"default:1" json:"status"` // 0=banned 1=normal
	LastSeenAt   *time.Time `json:"last_seen_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// IsStaff reports whether the role may override room-level permissions.
func IsStaff(role string) bool {
	return role == RoleModerator || role == RoleAdmin
}
