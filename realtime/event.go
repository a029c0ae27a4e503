package realtime

import (
	"encoding/json"
	"time"
)

// Event types published by the social core.
const (
	EventFriendRequest   = "friend_request"
	EventFriendResponse  = "friend_response"
	EventMessage         = "message"
	EventReactionUpdated = "reaction_updated"
	EventMemberJoined    = "member_joined"
	EventMemberLeft      = "member_left"
	EventLiveStarted     = "live_started"
	EventLiveEnded       = "live_ended"
)

// Event is the envelope delivered on a topic.
type Event struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	TS      int64           `json:"ts"` // unix millis
}

// Decode parses a raw pub/sub payload into an Event.
func Decode(raw string) (*Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func encode(topic, eventType string, payload interface{}, at time.Time) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: eventType, Topic: topic, Payload: body, TS: at.UnixMilli()})
}

type FriendRequestPayload struct {
	FriendshipID int64 `json:"friendshipId"`
	FromUserID   int64 `json:"fromUserId"`
}

type FriendResponsePayload struct {
	FriendshipID int64 `json:"friendshipId"`
	Accepted     bool  `json:"accepted"`
}

type MessagePayload struct {
	MessageID int64  `json:"messageId"`
	AuthorID  int64  `json:"authorId"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"` // unix millis
	RoomID    string `json:"roomId,omitempty"`
	ToUserID  int64  `json:"toUserId,omitempty"`
}

// ReactionPayload carries the full reaction list after a toggle. Version
// lets clients discard out-of-date snapshots.
type ReactionPayload struct {
	MessageID int64           `json:"messageId"`
	Reactions []ReactionEntry `json:"reactions"`
	Version   int64           `json:"version"`
}

type ReactionEntry struct {
	UserID int64  `json:"userId"`
	Emoji  string `json:"emoji"`
}

type MemberPayload struct {
	UserID int64 `json:"userId"`
}

type LivePayload struct {
	SessionID int64  `json:"sessionId"`
	OwnerID   int64  `json:"ownerId"`
	Title     string `json:"title,omitempty"`
}
