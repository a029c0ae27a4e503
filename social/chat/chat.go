// Package chat persists messages and reactions and fans them out to room
// and user topics.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/hangout/cache"
	"github.com/kasuganosora/hangout/config"
	"github.com/kasuganosora/hangout/model"
	"github.com/kasuganosora/hangout/realtime"
	"github.com/kasuganosora/hangout/social"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RoomDirectory is the slice of the room registry chat depends on.
type RoomDirectory interface {
	Get(ctx context.Context, roomID string) (*model.Room, error)
	GetByPK(ctx context.Context, id int64) (*model.Room, error)
	IsActiveMember(ctx context.Context, roomPK, userID int64) (bool, error)
}

// Target addresses a message to exactly one of a room or a user.
type Target struct {
	RoomID   string
	ToUserID int64
}

// RecentKey is the cache list holding a room's most recent messages,
// newest first.
func RecentKey(roomID string) string { return "room:" + roomID + ":recent" }

// Service posts messages and toggles reactions.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	rooms  RoomDirectory
	rt     realtime.Emitter
	cfg    config.ChatConfig
	topics *social.KeyedMutex // serializes persist+publish per destination
	msgs   *social.KeyedMutex // serializes reaction writes per message
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a chat Service.
func NewService(db *gorm.DB, c cache.Cache, rooms RoomDirectory, rt realtime.Emitter, cfg config.ChatConfig, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		cache:  c,
		rooms:  rooms,
		rt:     rt,
		cfg:    cfg,
		topics: social.NewKeyedMutex(),
		msgs:   social.NewKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// SetClock overrides the time source.
func (svc *Service) SetClock(now func() time.Time) { svc.now = now }

// PostMessage stores text from authorID and publishes it. The destination
// lock is held from insert to publish, so subscribers of a topic receive
// messages in the order they were stored.
func (svc *Service) PostMessage(ctx context.Context, authorID int64, to Target, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message is empty: %w", social.ErrInvalidInput)
	}
	if svc.cfg.MaxMessageLen > 0 && utf8.RuneCountInString(text) > svc.cfg.MaxMessageLen {
		return nil, fmt.Errorf("message longer than %d characters: %w", svc.cfg.MaxMessageLen, social.ErrInvalidInput)
	}
	switch {
	case to.RoomID != "" && to.ToUserID != 0, to.RoomID == "" && to.ToUserID == 0:
		return nil, fmt.Errorf("message needs exactly one of room or user: %w", social.ErrInvalidInput)
	case to.RoomID != "":
		return svc.postToRoom(ctx, authorID, to.RoomID, text)
	default:
		return svc.postToUser(ctx, authorID, to.ToUserID, text)
	}
}

func (svc *Service) postToRoom(ctx context.Context, authorID int64, roomID, text string) (*model.Message, error) {
	r, err := svc.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ok, err := svc.rooms.IsActiveMember(ctx, r.ID, authorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %d is not in room %s: %w", authorID, roomID, social.ErrForbidden)
	}

	unlock := svc.topics.Lock(social.RoomTopic(r.RoomID))
	defer unlock()

	msg, err := svc.insert(ctx, &model.Message{RoomID: &r.ID, AuthorID: authorID, Text: text})
	if err != nil {
		return nil, err
	}
	payload := svc.messagePayload(msg)
	payload.RoomID = r.RoomID
	svc.rt.Emit(ctx, social.RoomTopic(r.RoomID), realtime.EventMessage, payload)
	svc.remember(ctx, r.RoomID, payload)
	return msg, nil
}

func (svc *Service) postToUser(ctx context.Context, authorID, toUserID int64, text string) (*model.Message, error) {
	if toUserID == authorID {
		return nil, social.ErrInvalidTarget
	}
	var recipient model.User
	err := svc.db.WithContext(ctx).Select("id").First(&recipient, toUserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d: %w", toUserID, social.ErrNotFound)
	}
	if err != nil {
		return nil, social.Internal("post message", err)
	}

	unlock := svc.topics.Lock("dm:" + model.PairKey(authorID, toUserID))
	defer unlock()

	msg, err := svc.insert(ctx, &model.Message{ToUserID: &toUserID, AuthorID: authorID, Text: text})
	if err != nil {
		return nil, err
	}
	payload := svc.messagePayload(msg)
	payload.ToUserID = toUserID
	svc.rt.Emit(ctx, social.UserTopic(toUserID), realtime.EventMessage, payload)
	svc.rt.Emit(ctx, social.UserTopic(authorID), realtime.EventMessage, payload)
	return msg, nil
}

func (svc *Service) insert(ctx context.Context, msg *model.Message) (*model.Message, error) {
	msg.Reactions = datatypes.JSONSlice[model.Reaction]{}
	msg.CreatedAt = svc.now()
	if err := svc.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, social.Internal("post message", err)
	}
	return msg, nil
}

func (svc *Service) messagePayload(msg *model.Message) realtime.MessagePayload {
	return realtime.MessagePayload{
		MessageID: msg.ID,
		AuthorID:  msg.AuthorID,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt.UnixMilli(),
	}
}

// remember pushes a room message onto the bounded recent buffer. The buffer
// is a replay aid for newly attached streams; failures only cost replay.
func (svc *Service) remember(ctx context.Context, roomID string, payload realtime.MessagePayload) {
	if svc.cfg.RecentBuffer <= 0 {
		return
	}
	data, err := json.Marshal(payload)
	if err == nil {
		err = svc.cache.LPush(ctx, RecentKey(roomID), string(data))
	}
	if err == nil {
		err = svc.cache.LTrim(ctx, RecentKey(roomID), 0, int64(svc.cfg.RecentBuffer-1))
	}
	if err != nil {
		svc.logger.Warn("recent buffer update failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

// Recent returns the buffered recent messages of a room, oldest first.
func (svc *Service) Recent(ctx context.Context, roomID string) ([]realtime.MessagePayload, error) {
	raw, err := svc.cache.LRange(ctx, RecentKey(roomID), 0, -1)
	if err != nil {
		return nil, err
	}
	out := make([]realtime.MessagePayload, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var p realtime.MessagePayload
		if err := json.Unmarshal([]byte(raw[i]), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
