// Package notify delivers out-of-band notices to users who may not be
// attached to a real-time stream.
package notify

import (
	"context"
	"errors"
)

// Notification kinds.
const (
	KindFriendResponse = "friend_response"
)

// Notice is one notification addressed to a user.
type Notice struct {
	UserID  int64
	Kind    string
	Subject string
	Body    string
	Data    interface{}
}

// Notifier delivers a Notice. Callers treat failures as best-effort.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Multi fans a Notice out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every notice.
type Nop struct{}

func (Nop) Notify(context.Context, Notice) error { return nil }
