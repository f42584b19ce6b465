// Package models holds the plain data types shared between components.
package models

// Session is the authenticated identity captured at login. It is persisted
// encrypted in the credential vault and cleared on logout or emergency reset.
type Session struct {
	SessionID string `json:"session_id"`
	CSRFToken string `json:"csrf_token"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	LoggedIn  bool   `json:"logged_in"`
}

// Valid reports whether the session carries everything a signed call needs.
func (s *Session) Valid() bool {
	return s != nil && s.LoggedIn && s.SessionID != "" && s.CSRFToken != "" && s.UserID != ""
}
