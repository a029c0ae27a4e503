package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kasuganosora/hangout/metrics"
	"github.com/kasuganosora/hangout/model"
	"github.com/kasuganosora/hangout/realtime"
	"github.com/kasuganosora/hangout/social"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxEmojiLen      = 16
	maxReactionTries = 10
)

// Toggle flips (userID, emoji) in list: it is removed when present and
// appended otherwise. The input is not modified.
func Toggle(list []model.Reaction, userID int64, emoji string) []model.Reaction {
	out := make([]model.Reaction, 0, len(list)+1)
	found := false
	for _, r := range list {
		if r.UserID == userID && r.Emoji == emoji {
			found = true
			continue
		}
		out = append(out, r)
	}
	if !found {
		out = append(out, model.Reaction{UserID: userID, Emoji: emoji})
	}
	return out
}

// ToggleReaction adds or removes userID's emoji on a message. Writes go
// through a per-message lock and a version check, so concurrent toggles by
// different users are all kept.
func (svc *Service) ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) (*model.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLen {
		return nil, fmt.Errorf("emoji %q: %w", emoji, social.ErrInvalidInput)
	}

	msg, err := svc.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	topics, err := svc.visibleTopics(ctx, msg, userID)
	if err != nil {
		return nil, err
	}

	unlock := svc.msgs.Lock(strconv.FormatInt(messageID, 10))
	defer unlock()

	for attempt := 0; attempt < maxReactionTries; attempt++ {
		if attempt > 0 {
			metrics.ReactionRetries.Inc()
			if msg, err = svc.loadMessage(ctx, messageID); err != nil {
				return nil, err
			}
		}
		next := Toggle(msg.Reactions, userID, emoji)
		res := svc.db.WithContext(ctx).Model(&model.Message{}).
			Where("id = ? AND version = ?", msg.ID, msg.Version).
			Updates(map[string]interface{}{
				"reactions": datatypes.JSONSlice[model.Reaction](next),
				"version":   msg.Version + 1,
			})
		if res.Error != nil {
			return nil, social.Internal("toggle reaction", res.Error)
		}
		if res.RowsAffected == 0 {
			// Another process updated the row first; re-read and retry.
			continue
		}
		msg.Reactions = next
		msg.Version++
		svc.publishReactions(ctx, msg, topics)
		return msg, nil
	}
	svc.logger.Warn("reaction toggle gave up after conflicts",
		zap.Int64("message_id", messageID), zap.Int64("user_id", userID))
	return nil, fmt.Errorf("message %d kept changing: %w", messageID, social.ErrInternal)
}

func (svc *Service) publishReactions(ctx context.Context, msg *model.Message, topics []string) {
	list := msg.ReactionList()
	entries := make([]realtime.ReactionEntry, len(list))
	for i, r := range list {
		entries[i] = realtime.ReactionEntry{UserID: r.UserID, Emoji: r.Emoji}
	}
	payload := realtime.ReactionPayload{MessageID: msg.ID, Reactions: entries, Version: msg.Version}
	for _, topic := range topics {
		svc.rt.Emit(ctx, topic, realtime.EventReactionUpdated, payload)
	}
}

// visibleTopics checks that userID can see msg and returns the topics its
// updates go to.
func (svc *Service) visibleTopics(ctx context.Context, msg *model.Message, userID int64) ([]string, error) {
	if msg.RoomID != nil {
		r, err := svc.rooms.GetByPK(ctx, *msg.RoomID)
		if err != nil {
			return nil, err
		}
		ok, err := svc.rooms.IsActiveMember(ctx, r.ID, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("user %d cannot see message %d: %w", userID, msg.ID, social.ErrForbidden)
		}
		return []string{social.RoomTopic(r.RoomID)}, nil
	}
	if msg.ToUserID == nil || (userID != msg.AuthorID && userID != *msg.ToUserID) {
		return nil, fmt.Errorf("user %d cannot see message %d: %w", userID, msg.ID, social.ErrForbidden)
	}
	return []string{social.UserTopic(*msg.ToUserID), social.UserTopic(msg.AuthorID)}, nil
}

func (svc *Service) loadMessage(ctx context.Context, id int64) (*model.Message, error) {
	var msg model.Message
	err := svc.db.WithContext(ctx).First(&msg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("message %d: %w", id, social.ErrNotFound)
	}
	if err != nil {
		return nil, social.Internal("load message", err)
	}
	return &msg, nil
}
