package guard

import (
	"bytes"
	"strings"
)

// Signal classifies an abuse marker found in a response body. Precedence is
// the declaration order: when several markers match, the strongest
// (lowest-numbered) wins.
type Signal int

const (
	SignalNone Signal = iota

	// SignalChallenge: the platform demands out-of-band human verification.
	SignalChallenge

	// SignalSessionInvalid: the platform has force-logged-out the session.
	SignalSessionInvalid

	// SignalSpam: the action was explicitly flagged as spam.
	SignalSpam

	// SignalTempBlock: the account is temporarily blocked from this action.
	SignalTempBlock
)

// marker lists are matched case-insensitively against the raw body. They are
// substrings of observed response payloads, not a documented contract.
var signalMarkers = []struct {
	sig     Signal
	markers []string
}{
	{SignalChallenge, []string{"challenge_required", "checkpoint_required", "verify your account"}},
	{SignalSessionInvalid, []string{"login_required", "not authorized to view"}},
	{SignalSpam, []string{`"spam":true`, `"spam": true`, "feedback_required"}},
	{SignalTempBlock, []string{"temporarily blocked", "try again later"}},
}

// ScanBody scans a response body for abuse markers and returns the strongest
// matching signal, or SignalNone.
func ScanBody(body []byte) Signal {
	if len(body) == 0 {
		return SignalNone
	}
	lower := bytes.ToLower(body)
	for _, group := range signalMarkers {
		for _, m := range group.markers {
			if bytes.Contains(lower, []byte(m)) {
				return group.sig
			}
		}
	}
	return SignalNone
}

// IsChallengeMessage reports whether an error message carries the
// verification-required marker. Used for non-2xx bodies where only the
// message field is inspected.
func IsChallengeMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "challenge_required") ||
		strings.Contains(lower, "checkpoint_required") ||
		strings.Contains(lower, "verify your account")
}

// Reason translates a signal into the plain-language lockdown reason shown
// to the user.
func (s Signal) Reason() string {
	switch s {
	case SignalChallenge:
		return "the platform is asking for account verification; complete it in the official app"
	case SignalSessionInvalid:
		return "the platform invalidated this session"
	case SignalSpam:
		return "the last action was flagged as spam"
	case SignalTempBlock:
		return "the account is temporarily blocked from this action"
	default:
		return ""
	}
}
