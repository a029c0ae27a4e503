package social

import (
	"strconv"
	"strings"

	"github.com/kasuganosora/hangout/model"
)

// Actor is the authenticated identity an operation runs as. It is supplied by
// the session layer and trusted as-is.
type Actor struct {
	UserID int64
	Role   string
}

// IsStaff reports whether the actor holds a platform moderation role.
func (a Actor) IsStaff() bool { return model.IsStaff(a.Role) }

// UserTopic is the real-time topic private to one user.
func UserTopic(userID int64) string { return "user:" + strconv.FormatInt(userID, 10) }

// RoomTopic is the real-time topic shared by a room's members.
func RoomTopic(roomID string) string { return "room:" + roomID }

// RoomFromTopic is the inverse of RoomTopic.
func RoomFromTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, "room:")
	return id, ok && id != ""
}

// LiveTopic carries live session start/end announcements.
const LiveTopic = "live"
