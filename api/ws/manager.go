package ws

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionManager maintains the registry of attached sessions, keyed by user.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[int64]map[string]*Session // userID → session ID → session
	logger   *zap.Logger
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]map[string]*Session),
		logger:   logger,
	}
}

// Register adds a session. Other sessions of the same user stay attached.
func (sm *SessionManager) Register(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	byID, ok := sm.sessions[s.UserID]
	if !ok {
		byID = make(map[string]*Session)
		sm.sessions[s.UserID] = byID
	}
	byID[s.ID] = s
	sm.logger.Info("ws session registered",
		zap.Int64("user_id", s.UserID),
		zap.String("session_id", s.ID),
		zap.Int("user_sessions", len(byID)))
}

// Unregister removes one session.
func (sm *SessionManager) Unregister(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	byID := sm.sessions[s.UserID]
	delete(byID, s.ID)
	if len(byID) == 0 {
		delete(sm.sessions, s.UserID)
	}
	sm.logger.Info("ws session unregistered",
		zap.Int64("user_id", s.UserID),
		zap.String("session_id", s.ID))
}

// Sessions returns a snapshot of a user's sessions.
func (sm *SessionManager) Sessions(userID int64) []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*Session, 0, len(sm.sessions[userID]))
	for _, s := range sm.sessions[userID] {
		out = append(out, s)
	}
	return out
}

// IsAttached reports whether the user has at least one open session.
func (sm *SessionManager) IsAttached(userID int64) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions[userID]) > 0
}

// Count returns the number of currently attached sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	n := 0
	for _, byID := range sm.sessions {
		n += len(byID)
	}
	return n
}

// Disconnect closes every session of a user and returns how many there were.
// The read loops unregister them as they exit.
func (sm *SessionManager) Disconnect(userID int64) int {
	sessions := sm.Sessions(userID)
	for _, s := range sessions {
		s.Close()
	}
	if len(sessions) > 0 {
		sm.logger.Info("ws user disconnected", zap.Int64("user_id", userID), zap.Int("sessions", len(sessions)))
	}
	return len(sessions)
}

func (sm *SessionManager) all() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*Session, 0)
	for _, byID := range sm.sessions {
		for _, s := range byID {
			out = append(out, s)
		}
	}
	return out
}

// CloseAll closes every session and waits up to maxWait for the read loops
// to unregister them.
func (sm *SessionManager) CloseAll(maxWait time.Duration) {
	sessions := sm.all()
	sm.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	start := time.Now()
	for time.Since(start) < maxWait {
		if sm.Count() == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
