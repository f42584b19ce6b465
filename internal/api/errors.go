package api

import (
	"errors"
	"fmt"
)

// Every call fails with exactly one of these kinds. The orchestrator maps
// them to phase transitions; nothing is ever swallowed below it.
var (
	// ErrLockedOut: the guard reports an active lockdown; no call was made.
	ErrLockedOut = errors.New("account lockdown active")

	// ErrRateLimited: the local rate ceiling is reached; no call was made.
	ErrRateLimited = errors.New("local rate ceiling reached")

	// ErrNetwork: transport-level failure; retryable.
	ErrNetwork = errors.New("network failure")

	// ErrSessionExpired: the platform rejected the session; re-auth needed.
	ErrSessionExpired = errors.New("session expired")

	// ErrChallengeRequired: the platform demands human verification.
	ErrChallengeRequired = errors.New("verification challenge required")

	// ErrAbuseDetected: the platform signalled automated-abuse suspicion.
	ErrAbuseDetected = errors.New("abuse signal detected")
)

// HTTPError carries a non-2xx status that matched no stronger
// classification.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}
