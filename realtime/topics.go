package realtime

import (
	"context"
	"encoding/json"

	"github.com/kasuganosora/hangout/social"
)

// RoomLister lists the rooms a user is an active member of.
type RoomLister interface {
	ActiveRoomIDs(ctx context.Context, userID int64) ([]string, error)
}

// RecentSource returns a room's buffered messages, oldest first.
type RecentSource interface {
	Recent(ctx context.Context, roomID string) ([]MessagePayload, error)
}

// Subscriber streams decoded events for a set of topics.
type Subscriber interface {
	Subscribe(ctx context.Context, topics ...string) (<-chan *Event, func(), error)
}

// Topics returns everything a connected user listens to: their own topic,
// the live feed and one topic per room.
func Topics(userID int64, roomIDs []string) []string {
	topics := make([]string, 0, len(roomIDs)+2)
	topics = append(topics, social.UserTopic(userID), social.LiveTopic)
	for _, id := range roomIDs {
		topics = append(topics, social.RoomTopic(id))
	}
	return topics
}

// Backlog turns the recent buffer of each room into message events so a
// fresh stream can catch up. Rooms whose buffer cannot be read are skipped
// and the first such error is returned alongside the rest.
func Backlog(ctx context.Context, src RecentSource, roomIDs []string) ([]*Event, error) {
	var (
		out      []*Event
		firstErr error
	)
	for _, id := range roomIDs {
		msgs, err := src.Recent(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		topic := social.RoomTopic(id)
		for _, m := range msgs {
			body, err := json.Marshal(m)
			if err != nil {
				continue
			}
			out = append(out, &Event{Type: EventMessage, Topic: topic, Payload: body, TS: m.CreatedAt})
		}
	}
	return out, firstErr
}
