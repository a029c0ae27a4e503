package model

import "time"

// LiveSession is a user's ephemeral live broadcast. It stays live while the
// owner keeps heart-beating; stale sessions are closed by the reaper.
type LiveSession struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID         int64      `gorm:"index:idx_live_owner;not null" json:"owner_id"`
	Title           string     `gorm:"size:128" json:"title"`
	IsLive          bool       `gorm:"index:idx_live_state;not null" json:"is_live"`
	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	LastHeartbeatAt time.Time  `gorm:"index:idx_live_state;not null" json:"last_heartbeat_at"`
	EndedAt         *time.Time `json:"ended_at"`
}
