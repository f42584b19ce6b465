// Package services ties the authentication flow together: login against the
// platform, sealed persistence in the vault, the in-memory session the signer
// reads, and the panic-button reset.
package services

import (
	"sync"

	"github.com/dsokolov-dev/phantompost/internal/models"
)

// SessionHolder is the single in-memory home of the active session. The
// signer reads it through Current on every call; login and logout swap it.
type SessionHolder struct {
	mu sync.Mutex
	s  *models.Session
}

// Current returns the active session, never nil. An empty session simply
// fails models.Session.Valid.
func (h *SessionHolder) Current() *models.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.s == nil {
		return &models.Session{}
	}
	return h.s
}

// Set replaces the active session.
func (h *SessionHolder) Set(s *models.Session) {
	h.mu.Lock()
	h.s = s
	h.mu.Unlock()
}

// Clear drops the active session.
func (h *SessionHolder) Clear() {
	h.mu.Lock()
	h.s = nil
	h.mu.Unlock()
}
