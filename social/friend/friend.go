// Package friend maintains the friendship ledger: one edge per unordered
// pair of users, moved through pending, accepted and rejected.
package friend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/hangout/config"
	dbadapter "github.com/kasuganosora/hangout/db"
	"github.com/kasuganosora/hangout/model"
	"github.com/kasuganosora/hangout/notify"
	"github.com/kasuganosora/hangout/realtime"
	"github.com/kasuganosora/hangout/social"
	"github.com/kasuganosora/hangout/social/presence"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Decision is the recipient's answer to a pending request.
type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

// Friend is an accepted counterpart as seen by one user.
type Friend struct {
	UserID       int64      `json:"user_id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	IsOnline     bool       `json:"is_online"`
	LastSeenAt   *time.Time `json:"last_seen_at"`
	FriendshipID int64      `json:"friendship_id"`
	Since        time.Time  `json:"since"`
}

// Service is the friendship ledger.
type Service struct {
	db       *gorm.DB
	rt       realtime.Emitter
	notifier notify.Notifier
	window   time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a friend Service. Friend lists derive is_online from
// the friend window.
func NewService(db *gorm.DB, rt realtime.Emitter, notifier notify.Notifier, cfg config.PresenceConfig, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		rt:       rt,
		notifier: notifier,
		window:   cfg.FriendWindow,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// SetClock overrides the time source.
func (svc *Service) SetClock(now func() time.Time) { svc.now = now }

// SendRequest creates a pending request from requesterID to recipientID.
// Any existing edge between the two, whatever its status or direction,
// makes the request fail with ErrAlreadyExists.
func (svc *Service) SendRequest(ctx context.Context, requesterID, recipientID int64) (*model.Friendship, error) {
	if requesterID == recipientID {
		return nil, social.ErrInvalidTarget
	}
	var recipient model.User
	err := svc.db.WithContext(ctx).Select("id").First(&recipient, recipientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, social.ErrInvalidTarget
	}
	if err != nil {
		return nil, social.Internal("send request", err)
	}

	f := &model.Friendship{
		RequesterID: requesterID,
		RecipientID: recipientID,
		PairKey:     model.PairKey(requesterID, recipientID),
		Status:      model.FriendshipPending,
	}
	if err := svc.db.WithContext(ctx).Create(f).Error; err != nil {
		if dbadapter.IsUniqueViolation(err) {
			return nil, fmt.Errorf("friendship %s: %w", f.PairKey, social.ErrAlreadyExists)
		}
		return nil, social.Internal("send request", err)
	}

	svc.rt.Emit(ctx, social.UserTopic(recipientID), realtime.EventFriendRequest, realtime.FriendRequestPayload{
		FriendshipID: f.ID,
		FromUserID:   requesterID,
	})
	return f, nil
}

// Respond moves a pending request to accepted or rejected. Only the
// recipient may respond, and only once: the status change is conditional on
// the row still being pending.
func (svc *Service) Respond(ctx context.Context, friendshipID, actingUserID int64, decision Decision) (*model.Friendship, error) {
	var status string
	switch decision {
	case Accept:
		status = model.FriendshipAccepted
	case Reject:
		status = model.FriendshipRejected
	default:
		return nil, fmt.Errorf("decision %q: %w", decision, social.ErrInvalidInput)
	}

	f, err := svc.load(ctx, friendshipID)
	if err != nil {
		return nil, err
	}
	if f.RecipientID != actingUserID {
		return nil, fmt.Errorf("friendship %d: %w", friendshipID, social.ErrForbidden)
	}
	if f.Status != model.FriendshipPending {
		return nil, fmt.Errorf("friendship %d is %s: %w", friendshipID, f.Status, social.ErrInvalidState)
	}

	now := svc.now()
	res := svc.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("id = ? AND status = ?", friendshipID, model.FriendshipPending).
		Updates(map[string]interface{}{"status": status, "updated_at": now})
	if res.Error != nil {
		return nil, social.Internal("respond", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("friendship %d already answered: %w", friendshipID, social.ErrInvalidState)
	}
	f.Status = status
	f.UpdatedAt = now

	accepted := decision == Accept
	svc.rt.Emit(ctx, social.UserTopic(f.RequesterID), realtime.EventFriendResponse, realtime.FriendResponsePayload{
		FriendshipID: f.ID,
		Accepted:     accepted,
	})
	svc.notifyResponse(ctx, f, accepted)
	return f, nil
}

func (svc *Service) notifyResponse(ctx context.Context, f *model.Friendship, accepted bool) {
	body := "Your friend request was declined."
	if accepted {
		body = "Your friend request was accepted."
	}
	err := svc.notifier.Notify(ctx, notify.Notice{
		UserID:  f.RequesterID,
		Kind:    notify.KindFriendResponse,
		Subject: "Friend request update",
		Body:    body,
		Data:    realtime.FriendResponsePayload{FriendshipID: f.ID, Accepted: accepted},
	})
	if err != nil {
		svc.logger.Warn("friend response notification failed",
			zap.Int64("friendship_id", f.ID),
			zap.Int64("user_id", f.RequesterID),
			zap.Error(err))
	}
}

// Unfriend removes the accepted edge between the two users. The row is
// deleted so either side may send a new request later.
func (svc *Service) Unfriend(ctx context.Context, actingUserID, otherUserID int64) error {
	if actingUserID == otherUserID {
		return social.ErrInvalidTarget
	}
	res := svc.db.WithContext(ctx).
		Where("pair_key = ? AND status = ?", model.PairKey(actingUserID, otherUserID), model.FriendshipAccepted).
		Delete(&model.Friendship{})
	if res.Error != nil {
		return social.Internal("unfriend", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no friendship with user %d: %w", otherUserID, social.ErrNotFound)
	}
	return nil
}

// Cancel withdraws a pending request. Only the requester may cancel.
func (svc *Service) Cancel(ctx context.Context, friendshipID, requesterID int64) error {
	f, err := svc.load(ctx, friendshipID)
	if err != nil {
		return err
	}
	if f.RequesterID != requesterID {
		return fmt.Errorf("friendship %d: %w", friendshipID, social.ErrForbidden)
	}
	res := svc.db.WithContext(ctx).
		Where("id = ? AND status = ?", friendshipID, model.FriendshipPending).
		Delete(&model.Friendship{})
	if res.Error != nil {
		return social.Internal("cancel request", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("friendship %d is no longer pending: %w", friendshipID, social.ErrInvalidState)
	}
	return nil
}

// List returns userID's accepted friends with their online flag.
func (svc *Service) List(ctx context.Context, userID int64) ([]Friend, error) {
	var edges []model.Friendship
	if err := svc.db.WithContext(ctx).
		Where("(requester_id = ? OR recipient_id = ?) AND status = ?", userID, userID, model.FriendshipAccepted).
		Order("id").
		Find(&edges).Error; err != nil {
		return nil, social.Internal("list friends", err)
	}
	if len(edges) == 0 {
		return []Friend{}, nil
	}

	ids := make([]int64, len(edges))
	for i := range edges {
		ids[i] = edges[i].Other(userID)
	}
	var users []model.User
	if err := svc.db.WithContext(ctx).
		Select("id", "username", "display_name", "last_seen_at").
		Where("id IN ?", ids).
		Find(&users).Error; err != nil {
		return nil, social.Internal("list friends", err)
	}
	byID := make(map[int64]*model.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	now := svc.now()
	out := make([]Friend, 0, len(edges))
	for i, e := range edges {
		u, ok := byID[ids[i]]
		if !ok {
			continue
		}
		out = append(out, Friend{
			UserID:       u.ID,
			Username:     u.Username,
			DisplayName:  u.DisplayName,
			IsOnline:     presence.Online(u.LastSeenAt, now, svc.window),
			LastSeenAt:   u.LastSeenAt,
			FriendshipID: e.ID,
			Since:        e.UpdatedAt,
		})
	}
	return out, nil
}

// ListPending returns requests waiting for userID's answer.
func (svc *Service) ListPending(ctx context.Context, userID int64) ([]model.Friendship, error) {
	return svc.listPending(ctx, "recipient_id", userID)
}

// ListOutgoing returns requests userID sent that are still pending.
func (svc *Service) ListOutgoing(ctx context.Context, userID int64) ([]model.Friendship, error) {
	return svc.listPending(ctx, "requester_id", userID)
}

func (svc *Service) listPending(ctx context.Context, column string, userID int64) ([]model.Friendship, error) {
	list := []model.Friendship{}
	if err := svc.db.WithContext(ctx).
		Where(column+" = ? AND status = ?", userID, model.FriendshipPending).
		Order("id").
		Find(&list).Error; err != nil {
		return nil, social.Internal("list pending", err)
	}
	return list, nil
}

func (svc *Service) load(ctx context.Context, friendshipID int64) (*model.Friendship, error) {
	var f model.Friendship
	err := svc.db.WithContext(ctx).First(&f, friendshipID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("friendship %d: %w", friendshipID, social.ErrNotFound)
	}
	if err != nil {
		return nil, social.Internal("load friendship", err)
	}
	return &f, nil
}
