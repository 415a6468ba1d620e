package domain

import (
	"sync"
	"time"
)

// Session is the identity and liveness of one websocket connection.
type Session struct {
	ClientID    string
	DisplayName string
	ConnectedAt time.Time
	LastSeenAt  time.Time
	mu          sync.RWMutex
}

func NewSession(now time.Time) *Session {
	return &Session{
		ConnectedAt: now,
		LastSeenAt:  now,
	}
}

func (s *Session) Identify(clientID, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if clientID != "" {
		s.ClientID = clientID
	}
	if displayName != "" {
		s.DisplayName = displayName
	}
}

func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastSeenAt = now
}

func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastSeenAt
}

func (s *Session) GetClientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ClientID
}

func (s *Session) GetDisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.DisplayName
}
