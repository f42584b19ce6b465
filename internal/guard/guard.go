// Package guard enforces the account-wide anti-abuse policy: a sliding-window
// rate limiter, an exponential backoff counter, and the lockdown state
// machine. One Guard instance is shared by every batch — an abuse signal
// concerns the account, not the batch that happened to trigger it.
//
// All mutations go through the Guard's mutex (single writer); reads may come
// from any goroutine.
package guard

import (
	"sync"
	"time"

	"github.com/dsokolov-dev/phantompost/internal/common"
)

// consecutiveFailureLimit is how many generic failures in a row trigger the
// precautionary short lockdown.
const consecutiveFailureLimit = 3

// Durations groups the lockdown lengths by severity.
type Durations struct {
	Short    time.Duration
	Long     time.Duration
	VeryLong time.Duration
}

// DefaultDurations are deliberately conservative; nothing here is derived
// from knowledge of the platform's actual policy.
var DefaultDurations = Durations{
	Short:    15 * time.Minute,
	Long:     6 * time.Hour,
	VeryLong: 24 * time.Hour,
}

// Options configures a Guard.
type Options struct {
	// Ceiling is the maximum number of actions in any trailing 60 minutes.
	Ceiling int

	// BackoffCap bounds the exponential backoff delay.
	BackoffCap time.Duration

	Durations Durations

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Guard is the shared abuse-avoidance state. Construct with New.
type Guard struct {
	mu sync.Mutex

	ceiling    int
	backoffCap time.Duration
	durations  Durations
	now        func() time.Time

	locked   bool
	reason   string
	until    time.Time
	failures int
	window   []time.Time
}

// New returns a Guard with the given options, filling in defaults for
// anything unset.
func New(opts Options) *Guard {
	if opts.Ceiling <= 0 {
		opts.Ceiling = 60
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 5 * time.Minute
	}
	if opts.Durations == (Durations{}) {
		opts.Durations = DefaultDurations
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Guard{
		ceiling:    opts.Ceiling,
		backoffCap: opts.BackoffCap,
		durations:  opts.Durations,
		now:        opts.Now,
	}
}

// Locked reports whether the account is in lockdown, applying automatic
// expiry first.
func (g *Guard) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()
	return g.locked
}

// LockInfo returns the plain-language reason and expiry while locked.
// ok is false when unlocked.
func (g *Guard) LockInfo() (reason string, until time.Time, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()
	if !g.locked {
		return "", time.Time{}, false
	}
	return g.reason, g.until, true
}

// LockRemaining returns how long the current lockdown still has to run,
// zero when unlocked.
func (g *Guard) LockRemaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()
	if !g.locked {
		return 0
	}
	return g.until.Sub(g.now())
}

// RecordSignal applies a scanned abuse signal, arming the lockdown mapped to
// its severity. SignalNone is a no-op.
func (g *Guard) RecordSignal(sig Signal) {
	if sig == SignalNone {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armLocked(sig.Reason(), g.signalDuration(sig))
}

// ArmLockdown locks the account for d with an explicit reason. Used for the
// fixed-duration 429 lockdown.
func (g *Guard) ArmLockdown(reason string, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armLocked(reason, d)
}

// RecordFailure counts one generic failure. Hitting the consecutive-failure
// limit with no stronger signal arms the short precautionary lockdown.
func (g *Guard) RecordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	if g.failures >= consecutiveFailureLimit && !g.locked {
		g.armLocked("repeated request failures; pausing as a precaution", g.durations.Short)
	}
}

// RecordSuccess resets the consecutive-failure counter.
func (g *Guard) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = 0
}

// Failures returns the current consecutive-failure count.
func (g *Guard) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}

// BackoffDelay returns how long the next call must wait before hitting the
// network: min(2^failures, cap) seconds plus up to 30% jitter, zero when the
// last call succeeded. The base is monotonic in the failure count up to the
// cap and resets with it.
func (g *Guard) BackoffDelay() time.Duration {
	g.mu.Lock()
	failures := g.failures
	cap := g.backoffCap
	g.mu.Unlock()

	if failures == 0 {
		return 0
	}

	base := time.Duration(1<<uint(min(failures, 62))) * time.Second
	if base > cap || base <= 0 {
		base = cap
	}
	return common.Jitter(base, 0.3)
}

// RateAllow reports whether one more action fits under the trailing-hour
// ceiling. It does not reserve anything; call RecordAction after the action
// actually happened.
func (g *Guard) RateAllow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked()
	return len(g.window) < g.ceiling
}

// RateUsed returns the number of actions in the trailing 60 minutes.
func (g *Guard) RateUsed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked()
	return len(g.window)
}

// RateNextFree returns when the oldest ledger entry ages out, freeing one
// slot. Zero time when the window is not full.
func (g *Guard) RateNextFree() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked()
	if len(g.window) < g.ceiling || len(g.window) == 0 {
		return time.Time{}
	}
	return g.window[0].Add(time.Hour)
}

// RecordAction appends the current instant to the rate ledger.
func (g *Guard) RecordAction() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.window = append(g.window, g.now())
}

// Unlock clears the lockdown on explicit user action and resets the failure
// counter.
func (g *Guard) Unlock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locked = false
	g.reason = ""
	g.until = time.Time{}
	g.failures = 0
}

// EmergencyReset wipes all guard state: lockdown, failure counter, and the
// rate ledger. The caller is responsible for the matching session/credential
// purge.
func (g *Guard) EmergencyReset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locked = false
	g.reason = ""
	g.until = time.Time{}
	g.failures = 0
	g.window = nil
}

// armLocked must be called with the mutex held. A stronger (longer) lockdown
// may extend a weaker one; it is never shortened.
func (g *Guard) armLocked(reason string, d time.Duration) {
	until := g.now().Add(d)
	if g.locked && g.until.After(until) {
		return
	}
	g.locked = true
	g.reason = reason
	g.until = until
}

func (g *Guard) expireLocked() {
	if g.locked && !g.now().Before(g.until) {
		g.locked = false
		g.reason = ""
		g.until = time.Time{}
	}
}

func (g *Guard) pruneLocked() {
	cutoff := g.now().Add(-time.Hour)
	i := 0
	for i < len(g.window) && !g.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.window = append(g.window[:0], g.window[i:]...)
	}
}

func (g *Guard) signalDuration(sig Signal) time.Duration {
	switch sig {
	case SignalSessionInvalid:
		return g.durations.VeryLong
	case SignalChallenge, SignalSpam, SignalTempBlock:
		return g.durations.Long
	default:
		return g.durations.Short
	}
}
