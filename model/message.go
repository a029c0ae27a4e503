package model

import (
	"time"

	"gorm.io/datatypes"
)

// Reaction is one user's emoji on a message.
type Reaction struct {
	UserID int64  `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Message is a chat message addressed either to a room or to a single user.
// Version increases on every reaction change and guards the conditional
// update that serializes concurrent toggles.
type Message struct {
	ID        int64                         `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID    *int64                        `gorm:"index:idx_message_room" json:"-"`
	ToUserID  *int64                        `gorm:"index:idx_message_to_user" json:"to_user_id,omitempty"`
	AuthorID  int64                         `gorm:"index:idx_message_author;not null" json:"author_id"`
	Text      string                        `gorm:"type:text;not null" json:"text"`
	Reactions datatypes.JSONSlice[Reaction] `json:"reactions"`
	Version   int64                         `gorm:"default:0;not null" json:"version"`
	CreatedAt time.Time                     `gorm:"autoCreateTime" json:"created_at"`
}

// ReactionList returns the reactions as a non-nil slice.
func (m *Message) ReactionList() []Reaction {
	if len(m.Reactions) == 0 {
		return []Reaction{}
	}
	out := make([]Reaction, len(m.Reactions))
	copy(out, m.Reactions)
	return out
}
