package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records social actions for moderation lookups.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36" json:"trace_id"`
	ActorID    int64          `gorm:"index:idx_audit_actor;not null" json:"actor_id"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	Target     string         `gorm:"index:idx_audit_target;size:64" json:"target"`
	Detail     datatypes.JSON `json:"detail"`
	IP         string         `gorm:"size:45" json:"ip"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime" json:"created_at"`
}
