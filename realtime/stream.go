package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/kasuganosora/hangout/social"
)

// Stream merges everything one connected user listens to into a single
// channel. The personal topic and the live feed share one subscription and
// every room gets its own, so a room can be dropped on its own. A room's
// subscription ends right after the user's own member_left event for it is
// delivered; later room events never reach the stream.
type Stream struct {
	ctx    context.Context
	sub    Subscriber
	userID int64

	out  chan *Event
	done chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	rooms  map[string]func()
	base   func()
	closed bool
	once   sync.Once
}

// OpenStream subscribes userID to its personal topic, the live feed and
// each of roomIDs.
func OpenStream(ctx context.Context, sub Subscriber, userID int64, roomIDs []string) (*Stream, error) {
	st := &Stream{
		ctx:    ctx,
		sub:    sub,
		userID: userID,
		out:    make(chan *Event, 256),
		done:   make(chan struct{}),
		rooms:  make(map[string]func()),
	}
	events, cancel, err := sub.Subscribe(ctx, Topics(userID, nil)...)
	if err != nil {
		return nil, err
	}
	st.base = cancel
	st.wg.Add(1)
	go st.forward("", events)

	for _, id := range roomIDs {
		if _, err := st.AddRoom(id); err != nil {
			st.Close()
			return nil, err
		}
	}
	return st, nil
}

// Events is the merged event channel. It closes after Close once every
// subscription has drained.
func (st *Stream) Events() <-chan *Event { return st.out }

// AddRoom subscribes to roomID. It reports false when the room is already
// part of the stream.
func (st *Stream) AddRoom(roomID string) (bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return false, context.Canceled
	}
	if _, ok := st.rooms[roomID]; ok {
		return false, nil
	}
	events, cancel, err := st.sub.Subscribe(st.ctx, social.RoomTopic(roomID))
	if err != nil {
		return false, err
	}
	st.rooms[roomID] = cancel
	st.wg.Add(1)
	go st.forward(roomID, events)
	return true, nil
}

// DropRoom cancels the subscription to roomID, if any.
func (st *Stream) DropRoom(roomID string) {
	st.mu.Lock()
	cancel, ok := st.rooms[roomID]
	delete(st.rooms, roomID)
	st.mu.Unlock()
	if ok {
		cancel()
	}
}

// Rooms lists the subscribed rooms in order.
func (st *Stream) Rooms() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]string, 0, len(st.rooms))
	for id := range st.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close drops every subscription. Safe to call more than once.
func (st *Stream) Close() {
	st.once.Do(func() {
		st.mu.Lock()
		st.closed = true
		cancels := make([]func(), 0, len(st.rooms)+1)
		if st.base != nil {
			cancels = append(cancels, st.base)
		}
		for id, cancel := range st.rooms {
			cancels = append(cancels, cancel)
			delete(st.rooms, id)
		}
		st.mu.Unlock()

		close(st.done)
		for _, cancel := range cancels {
			cancel()
		}
		go func() {
			st.wg.Wait()
			close(st.out)
		}()
	})
}

// forward copies one subscription into the merged channel until it closes.
// Events left after the stream closes or the room is dropped are drained.
func (st *Stream) forward(roomID string, in <-chan *Event) {
	defer st.wg.Done()
	stopped := false
	for ev := range in {
		if stopped {
			continue
		}
		select {
		case st.out <- ev:
		case <-st.done:
			stopped = true
			continue
		}
		if roomID == "" {
			continue
		}
		if left, ok := LeftBy(ev, st.userID); ok && left == roomID {
			stopped = true
			st.DropRoom(roomID)
		}
	}
}

// LeftBy returns the room a member_left event announces userID leaving.
func LeftBy(ev *Event, userID int64) (string, bool) {
	if ev.Type != EventMemberLeft {
		return "", false
	}
	roomID, ok := social.RoomFromTopic(ev.Topic)
	if !ok {
		return "", false
	}
	var p MemberPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.UserID != userID {
		return "", false
	}
	return roomID, true
}
