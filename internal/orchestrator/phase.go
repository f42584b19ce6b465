package orchestrator

import (
	"fmt"
	"time"
)

// PhaseKind enumerates the authoritative orchestration states. Exactly one
// Phase value is active per batch at any instant; everything user-visible is
// derived from it.
type PhaseKind string

const (
	PhaseIdle            PhaseKind = "idle"
	PhaseUploading       PhaseKind = "uploading"
	PhaseArchiving       PhaseKind = "archiving"
	PhaseWaitingNextItem PhaseKind = "waiting_next_item"
	PhaseCooldown        PhaseKind = "cooldown"
	PhaseAutoRetrying    PhaseKind = "auto_retrying"
	PhaseWaitingNetwork  PhaseKind = "waiting_network"
	PhasePaused          PhaseKind = "paused"
	PhaseEscalatedPause  PhaseKind = "escalated_pause"
	PhaseBotLockdown     PhaseKind = "bot_lockdown"
	PhaseSessionExpired  PhaseKind = "session_expired"
	PhaseCompleted       PhaseKind = "completed"
)

// Phase is one tagged state value. Countdown phases carry the absolute
// deadline, never a mutable remaining-seconds counter, so a restart can
// recompute remaining time without drift.
type Phase struct {
	Kind    PhaseKind
	Item    int       // 1-based item ordinal (uploading, waiting_next_item)
	Until   time.Time // deadline of countdown phases
	Attempt int       // auto_retrying attempt number
}

// Countdown reports whether the phase is deadline-driven.
func (p Phase) Countdown() bool {
	switch p.Kind {
	case PhaseWaitingNextItem, PhaseCooldown, PhaseAutoRetrying,
		PhaseEscalatedPause, PhaseBotLockdown:
		return true
	}
	return false
}

// Terminal reports whether the batch can never progress again without
// external action beyond resume.
func (p Phase) Terminal() bool {
	return p.Kind == PhaseCompleted || p.Kind == PhaseSessionExpired
}

// Remaining returns the time left on a countdown phase at now, zero
// otherwise.
func (p Phase) Remaining(now time.Time) time.Duration {
	if !p.Countdown() || now.After(p.Until) {
		return 0
	}
	return p.Until.Sub(now)
}

func (p Phase) String() string {
	switch p.Kind {
	case PhaseUploading:
		return fmt.Sprintf("uploading item %d", p.Item)
	case PhaseWaitingNextItem:
		return fmt.Sprintf("waiting before item %d", p.Item)
	case PhaseAutoRetrying:
		return fmt.Sprintf("retrying (attempt %d)", p.Attempt)
	default:
		return string(p.Kind)
	}
}
