package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kasuganosora/hangout/social"
	"go.uber.org/zap"
)

// Client packet types.
const (
	TypePing          = "ping"
	TypeTouch         = "touch"
	TypeHeartbeat     = "heartbeat"
	TypeSubscribeRoom = "subscribe_room"
)

func (h *Handler) registerHandlers() {
	h.router.On(TypePing, h.handlePing)
	h.router.On(TypeTouch, h.handleTouch)
	h.router.On(TypeHeartbeat, h.handleHeartbeat)
	h.router.On(TypeSubscribeRoom, h.handleSubscribeRoom)
}

func decodePayload(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		return fmt.Errorf("missing payload: %w", social.ErrInvalidInput)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("malformed payload: %w", social.ErrInvalidInput)
	}
	return nil
}

func (h *Handler) handlePing(_ context.Context, s *Session, _ json.RawMessage) error {
	s.Reply("pong", map[string]int64{"ts": time.Now().UnixMilli()})
	return nil
}

// handleTouch is a no-op: the read loop touches presence for every packet.
func (h *Handler) handleTouch(context.Context, *Session, json.RawMessage) error {
	return nil
}

func (h *Handler) handleHeartbeat(ctx context.Context, s *Session, payload json.RawMessage) error {
	var req struct {
		SessionID int64 `json:"sessionId"`
	}
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	if req.SessionID == 0 {
		return fmt.Errorf("sessionId is required: %w", social.ErrInvalidInput)
	}
	return h.deps.Presence.Heartbeat(ctx, req.SessionID, s.UserID)
}

// handleSubscribeRoom adds a room the user joined after connecting.
func (h *Handler) handleSubscribeRoom(ctx context.Context, s *Session, payload json.RawMessage) error {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	if req.RoomID == "" {
		return fmt.Errorf("roomId is required: %w", social.ErrInvalidInput)
	}
	r, err := h.deps.Rooms.Get(ctx, req.RoomID)
	if err != nil {
		return err
	}
	ok, err := h.deps.Rooms.IsActiveMember(ctx, r.ID, s.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %d is not in room %s: %w", s.UserID, r.RoomID, social.ErrForbidden)
	}
	st := s.Stream()
	if st == nil {
		return fmt.Errorf("session %s has no stream: %w", s.ID, social.ErrInvalidState)
	}
	added, err := st.AddRoom(r.RoomID)
	if err != nil {
		return social.Internal("subscribe room", err)
	}
	if added {
		h.replay(ctx, s, r.RoomID)
		h.logger.Debug("ws room subscribed", zap.Int64("user_id", s.UserID), zap.String("room_id", r.RoomID))
	}
	s.Reply("subscribed", map[string]string{"roomId": r.RoomID})
	return nil
}
