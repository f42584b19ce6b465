// Package orchestrator drives a batch through the upload pipeline as an
// explicit phase machine. Pacing, retries, lockdown reactions, and restart
// recovery are all phase transitions, and countdown phases carry absolute
// deadlines so the display and the scheduler can never drift apart.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dsokolov-dev/phantompost/internal/api"
	"github.com/dsokolov-dev/phantompost/internal/common"
	"github.com/dsokolov-dev/phantompost/internal/guard"
	"github.com/dsokolov-dev/phantompost/internal/logging"
	"github.com/dsokolov-dev/phantompost/internal/models"
	"github.com/dsokolov-dev/phantompost/internal/netmon"
	"github.com/dsokolov-dev/phantompost/internal/repositories/items"
)

var (
	// ErrBatchRunning is returned when Start/Resume is called while a run is
	// already active.
	ErrBatchRunning = errors.New("a batch is already running")

	// ErrNotRunning is returned by Pause when nothing is active.
	ErrNotRunning = errors.New("no batch is running")

	// ErrNotPaused is returned by Resume when the current phase is not
	// resumable.
	ErrNotPaused = errors.New("batch is not paused")
)

// Platform is the subset of the API client the orchestrator drives.
// *api.Client satisfies it.
type Platform interface {
	UploadPhoto(ctx context.Context, uploadID string, data []byte) error
	ConfigureMedia(ctx context.Context, uploadID, caption string) (string, error)
}

// Preparer is the content pipeline the orchestrator feeds each item through.
// *codec.Codec satisfies it.
type Preparer interface {
	ContentHash(data []byte) string
	Prepare(data []byte, targetBytes int) ([]byte, error)
	Uniqueify(data []byte) ([]byte, error)
}

// Network is the connectivity view the orchestrator consults. *netmon.Monitor
// satisfies it.
type Network interface {
	CurrentState() netmon.State
	AwaitConnectivity(ctx context.Context, timeout time.Duration) error
}

// ActiveBatchStore remembers which batch a run was working on, so a process
// restart can find the interrupted batch and park it instead of forgetting
// it. *services.BatchTracker satisfies it.
type ActiveBatchStore interface {
	SaveActiveBatch(ctx context.Context, batchID string) error
	// LoadActiveBatch returns "" when no batch is tracked.
	LoadActiveBatch(ctx context.Context) (string, error)
	ClearActiveBatch(ctx context.Context) error
}

// Options tunes the pacing and retry policy.
type Options struct {
	MinItemDelay   time.Duration // randomized inter-item delay bounds
	MaxItemDelay   time.Duration
	TargetBytes    int           // byte ceiling handed to the preparer
	MaxAutoRetries int           // transient-failure attempts per step before escalating
	RetryDelay     time.Duration // base auto-retry delay, doubled per attempt
	EscalatedPause time.Duration
	Tick           time.Duration // scheduler resolution
	Now            func() time.Time
}

func (o *Options) fillDefaults() {
	if o.MinItemDelay <= 0 {
		o.MinItemDelay = 25 * time.Second
	}
	if o.MaxItemDelay <= o.MinItemDelay {
		o.MaxItemDelay = o.MinItemDelay + 65*time.Second
	}
	if o.TargetBytes <= 0 {
		o.TargetBytes = 480 * 1024
	}
	if o.MaxAutoRetries <= 0 {
		o.MaxAutoRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	if o.EscalatedPause <= 0 {
		o.EscalatedPause = 10 * time.Minute
	}
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// stopMode says why a running loop was asked to stop.
type stopMode int

const (
	stopNone stopMode = iota
	stopPause
	stopReset
)

// Orchestrator runs one batch at a time. The guard is shared with every other
// component touching the account, so a lockdown armed here halts them all.
type Orchestrator struct {
	opts     Options
	platform Platform
	store    items.Repository
	prep     Preparer
	guard    *guard.Guard
	network  Network
	tracker  ActiveBatchStore
	log      logging.Logger

	mu           sync.Mutex
	phase        Phase
	subs         []func(Phase)
	batch        *models.Batch
	lastSentHash string
	running      bool
	stop         stopMode
	stopCh       chan struct{}
	runDone      chan struct{}
}

func New(opts Options, platform Platform, store items.Repository, prep Preparer,
	g *guard.Guard, network Network, tracker ActiveBatchStore, log logging.Logger) *Orchestrator {
	opts.fillDefaults()
	return &Orchestrator{
		opts:     opts,
		platform: platform,
		store:    store,
		prep:     prep,
		guard:    g,
		network:  network,
		tracker:  tracker,
		log:      log.With("component", "orchestrator"),
		phase:    Phase{Kind: PhaseIdle},
	}
}

// CurrentPhase returns the active phase value.
func (o *Orchestrator) CurrentPhase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Subscribe registers a callback invoked on every phase transition. Callbacks
// run on the orchestrator goroutine and must return quickly.
func (o *Orchestrator) Subscribe(fn func(Phase)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subs = append(o.subs, fn)
}

// LockInfo exposes the shared guard's lockdown state for the status display.
func (o *Orchestrator) LockInfo() (reason string, until time.Time, ok bool) {
	return o.guard.LockInfo()
}

// Progress returns the per-status item counts of the active (or last) batch.
func (o *Orchestrator) Progress(ctx context.Context) (models.ProgressCounts, error) {
	o.mu.Lock()
	b := o.batch
	o.mu.Unlock()
	if b == nil {
		return models.ProgressCounts{}, errors.New("no batch selected")
	}
	return o.store.ProgressCounts(ctx, b.ID)
}

// Recover runs at process start: if a previous run left a batch tracked, its
// persisted items decide the phase via Reconcile. With nothing tracked the
// orchestrator stays idle.
func (o *Orchestrator) Recover(ctx context.Context) error {
	batchID, err := o.tracker.LoadActiveBatch(ctx)
	if err != nil {
		return err
	}
	if batchID == "" {
		return nil
	}
	return o.Reconcile(ctx, batchID)
}

// Reconcile inspects persisted item state after a restart and forces the
// phase accordingly: a batch caught mid-run resumes only on explicit user
// action, so anything started but unfinished lands in paused. The tracked
// batch id is kept only in that interrupted case.
func (o *Orchestrator) Reconcile(ctx context.Context, batchID string) error {
	b, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	counts, err := o.store.ProgressCounts(ctx, b.ID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.batch = b
	o.mu.Unlock()

	switch {
	case counts.Total() == 0 || !counts.Started():
		o.clearTracked(ctx)
		o.transition(Phase{Kind: PhaseIdle})
	case counts.AllDone():
		o.clearTracked(ctx)
		o.transition(Phase{Kind: PhaseCompleted})
	default:
		o.log.Info(ctx, "found interrupted batch, waiting for resume",
			"batch", b.ID, "completed", counts.Completed, "pending", counts.Pending)
		o.transition(Phase{Kind: PhasePaused})
	}
	return nil
}

// Start begins (or restarts) processing the batch. It refuses to start under
// an active lockdown.
func (o *Orchestrator) Start(ctx context.Context, batchID string) error {
	if reason, until, locked := o.guard.LockInfo(); locked {
		return fmt.Errorf("%w: %s (until %s)", api.ErrLockedOut, reason,
			until.Format(time.Kitchen))
	}

	b, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}

	if err := o.awaitStopped(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrBatchRunning
	}
	o.batch = b
	o.beginRunLocked()
	o.mu.Unlock()

	// remember the batch so a crash mid-run is found again at next start
	if err := o.tracker.SaveActiveBatch(ctx, b.ID); err != nil {
		o.log.Warn(ctx, "tracking active batch failed", "batch", b.ID, "error", err)
	}

	go o.run(ctx)
	return nil
}

// awaitStopped waits for a run that is already winding down (stop requested)
// to fully exit. An active run without a stop request is reported as busy.
func (o *Orchestrator) awaitStopped(ctx context.Context) error {
	for {
		o.mu.Lock()
		if !o.running {
			o.mu.Unlock()
			return nil
		}
		if o.stop == stopNone {
			o.mu.Unlock()
			return ErrBatchRunning
		}
		done := o.runDone
		o.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pause asks the run loop to stop at the next phase boundary. A request
// already on the wire is never cancelled; only the next scheduled action is
// suppressed.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return ErrNotRunning
	}
	o.requestStopLocked(stopPause)
	return nil
}

// Resume continues a paused batch. The lockdown is re-validated: expiry of a
// bot lockdown only permits resumption, never performs it.
func (o *Orchestrator) Resume(ctx context.Context) error {
	if reason, until, locked := o.guard.LockInfo(); locked {
		return fmt.Errorf("%w: %s (until %s)", api.ErrLockedOut, reason,
			until.Format(time.Kitchen))
	}

	if err := o.awaitStopped(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrBatchRunning
	}
	if o.phase.Kind != PhasePaused || o.batch == nil {
		o.mu.Unlock()
		return ErrNotPaused
	}
	o.beginRunLocked()
	o.mu.Unlock()

	go o.run(ctx)
	return nil
}

// Reset stops any active run and returns the orchestrator to idle. Persisted
// item state is left alone; use the stores directly to discard a batch.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.batch = nil
		o.lastSentHash = ""
		o.mu.Unlock()
		o.clearTracked(ctx)
		o.transition(Phase{Kind: PhaseIdle})
		return nil
	}
	o.requestStopLocked(stopReset)
	done := o.runDone
	o.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (o *Orchestrator) beginRunLocked() {
	o.running = true
	o.stop = stopNone
	o.stopCh = make(chan struct{})
	o.runDone = make(chan struct{})
}

func (o *Orchestrator) requestStopLocked(mode stopMode) {
	if o.stop == stopNone {
		o.stop = mode
		close(o.stopCh)
		return
	}
	// a reset supersedes a pause already in progress
	if mode == stopReset && o.stop == stopPause {
		o.stop = stopReset
	}
}

func (o *Orchestrator) stopRequested() stopMode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stop
}

// clearTracked drops the persisted active-batch id once the batch reached a
// state that must not be re-reconciled after a restart.
func (o *Orchestrator) clearTracked(ctx context.Context) {
	if err := o.tracker.ClearActiveBatch(ctx); err != nil {
		o.log.Warn(ctx, "clearing tracked batch failed", "error", err)
	}
}

// transition publishes a new phase. Subscribers run outside the lock.
func (o *Orchestrator) transition(p Phase) {
	o.mu.Lock()
	o.phase = p
	subs := make([]func(Phase), len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
}

// run is the batch loop. It exits by reaching a terminal phase, by arriving
// at paused, or on a stop request.
func (o *Orchestrator) run(ctx context.Context) {
	o.mu.Lock()
	batch := o.batch
	done := o.runDone
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		close(done)
	}()

	// anything stranded in-flight by an earlier interruption goes first
	if err := o.store.ResetInFlight(ctx, batch.ID); err != nil {
		o.log.Error(ctx, "reset in-flight items", "error", err)
		o.transition(Phase{Kind: PhasePaused})
		return
	}

	for {
		if o.stopRequested() != stopNone {
			o.finishStopped(ctx)
			return
		}

		item, err := o.store.NextPending(ctx, batch.ID)
		if errors.Is(err, items.ErrNoPending) {
			o.log.Info(ctx, "batch complete", "batch", batch.ID)
			o.clearTracked(ctx)
			o.transition(Phase{Kind: PhaseCompleted})
			return
		}
		if err != nil {
			o.log.Error(ctx, "fetch next item", "error", err)
			o.transition(Phase{Kind: PhasePaused})
			return
		}

		ordinal := item.Position + 1
		o.transition(Phase{Kind: PhaseUploading, Item: ordinal})

		outcome := o.processItem(ctx, batch, item, ordinal)
		switch outcome {
		case outcomeDone, outcomeSkipped:
			counts, err := o.store.ProgressCounts(ctx, batch.ID)
			if err != nil {
				o.log.Error(ctx, "progress counts", "error", err)
				o.transition(Phase{Kind: PhasePaused})
				return
			}
			if counts.Pending == 0 {
				o.clearTracked(ctx)
				o.transition(Phase{Kind: PhaseCompleted})
				return
			}
			if outcome == outcomeDone {
				delay := common.RandomBetween(o.opts.MinItemDelay, o.opts.MaxItemDelay)
				until := o.opts.Now().Add(delay)
				o.transition(Phase{Kind: PhaseWaitingNextItem, Item: ordinal + 1, Until: until})
				if !o.waitUntil(until) {
					o.finishStopped(ctx)
					return
				}
			}

		case outcomeStoreFailed:
			// the item store stopped persisting; nothing is trustworthy
			// enough to continue on, so park and let the user look
			o.transition(Phase{Kind: PhasePaused})
			return

		case outcomeStopped:
			o.revertToPending(ctx, item.ID)
			o.finishStopped(ctx)
			return

		case outcomeLockdown:
			// return the interrupted item, sit out the lockdown visibly,
			// then park; lockdown expiry never auto-resumes
			o.revertToPending(ctx, item.ID)
			_, until, locked := o.guard.LockInfo()
			if locked {
				o.transition(Phase{Kind: PhaseBotLockdown, Until: until})
				if !o.waitUntil(until) {
					o.finishStopped(ctx)
					return
				}
			}
			o.transition(Phase{Kind: PhasePaused})
			return

		case outcomeEscalated:
			o.revertToPending(ctx, item.ID)
			until := o.opts.Now().Add(o.opts.EscalatedPause)
			o.log.Warn(ctx, "retries exhausted, escalating", "item", item.ID)
			o.transition(Phase{Kind: PhaseEscalatedPause, Until: until})
			o.waitUntil(until)
			o.transition(Phase{Kind: PhasePaused})
			return

		case outcomeSessionExpired:
			o.revertToPending(ctx, item.ID)
			o.transition(Phase{Kind: PhaseSessionExpired})
			return
		}
	}
}

func (o *Orchestrator) finishStopped(ctx context.Context) {
	switch o.stopRequested() {
	case stopReset:
		o.mu.Lock()
		o.batch = nil
		o.lastSentHash = ""
		o.mu.Unlock()
		o.clearTracked(ctx)
		o.transition(Phase{Kind: PhaseIdle})
	default:
		o.transition(Phase{Kind: PhasePaused})
	}
}

// revertToPending hands an interrupted item back to the queue. A failed write
// here is survivable: ResetInFlight repairs the status at the next run.
func (o *Orchestrator) revertToPending(ctx context.Context, itemID string) {
	if err := o.store.SetStatus(ctx, itemID, models.StatusPending); err != nil {
		o.log.Error(ctx, "reverting item to pending failed", "item", itemID, "error", err)
	}
}

type outcome int

const (
	outcomeDone outcome = iota // item completed
	outcomeSkipped             // item-local failure recorded, move on
	outcomeStopped             // stop requested mid-item
	outcomeStoreFailed         // item store write failed, park the run
	outcomeLockdown
	outcomeEscalated
	outcomeSessionExpired
)

// processItem takes one item through prepare, upload, and finalize. Transient
// failures retry the failed step in place; the cooldown budget is only spent
// once the finalize succeeded.
func (o *Orchestrator) processItem(ctx context.Context, batch *models.Batch,
	item *models.UploadItem, ordinal int) outcome {

	data, err := o.store.ItemData(ctx, item.ID)
	if err != nil {
		o.log.Warn(ctx, "item unreadable, skipping", "item", item.ID, "error", err)
		o.store.SetLastError(ctx, item.ID, err.Error())
		return outcomeSkipped
	}

	hash := o.prep.ContentHash(data)
	o.mu.Lock()
	duplicate := hash != "" && hash == o.lastSentHash
	o.mu.Unlock()

	if duplicate {
		if !batch.AllowRepeat {
			o.log.Warn(ctx, "duplicate of previous upload, skipping", "item", item.ID)
			o.store.SetLastError(ctx, item.ID, "duplicate of the previous upload")
			return outcomeSkipped
		}
		if data, err = o.prep.Uniqueify(data); err != nil {
			o.store.SetLastError(ctx, item.ID, err.Error())
			return outcomeSkipped
		}
	}

	prepared, err := o.prep.Prepare(data, o.opts.TargetBytes)
	if err != nil {
		o.log.Warn(ctx, "prepare failed, skipping", "item", item.ID, "error", err)
		o.store.SetLastError(ctx, item.ID, err.Error())
		return outcomeSkipped
	}

	if err := o.store.SetContentHash(ctx, item.ID, hash); err != nil {
		o.store.SetLastError(ctx, item.ID, err.Error())
		return outcomeSkipped
	}
	if err := o.store.SetStatus(ctx, item.ID, models.StatusUploading); err != nil {
		o.log.Error(ctx, "persisting item status failed", "item", item.ID, "error", err)
		return outcomeStoreFailed
	}

	uploadID := strconv.FormatInt(o.opts.Now().UnixMilli(), 10)

	// upload step
	if out := o.withRetries(ctx, ordinal, func() error {
		return o.platform.UploadPhoto(ctx, uploadID, prepared)
	}); out != outcomeDone {
		return out
	}
	if err := o.store.SetStatus(ctx, item.ID, models.StatusUploaded); err != nil {
		o.log.Error(ctx, "persisting item status failed", "item", item.ID, "error", err)
		return outcomeStoreFailed
	}

	// finalize step
	o.transition(Phase{Kind: PhaseArchiving, Item: ordinal})
	if err := o.store.SetStatus(ctx, item.ID, models.StatusArchiving); err != nil {
		o.log.Error(ctx, "persisting item status failed", "item", item.ID, "error", err)
		return outcomeStoreFailed
	}

	var remoteID string
	if out := o.withRetries(ctx, ordinal, func() error {
		var err error
		remoteID, err = o.platform.ConfigureMedia(ctx, uploadID, batch.Caption)
		return err
	}); out != outcomeDone {
		return out
	}

	if err := o.store.SetRemoteID(ctx, item.ID, remoteID); err != nil {
		return o.completionFailure(ctx, item.ID, remoteID, err)
	}
	if err := o.store.SetStatus(ctx, item.ID, models.StatusCompleted); err != nil {
		return o.completionFailure(ctx, item.ID, remoteID, err)
	}
	o.mu.Lock()
	o.lastSentHash = hash
	o.mu.Unlock()
	o.log.Info(ctx, "item published", "item", item.ID, "remote_id", remoteID)
	return outcomeDone
}

// completionFailure handles a store write failing after the platform already
// accepted the item. Letting the run continue would leave it in-flight, and
// the next start would reset it to pending and publish it a second time. The
// item is marked errored so ResetInFlight skips it, and the run parks.
func (o *Orchestrator) completionFailure(ctx context.Context, itemID, remoteID string, err error) outcome {
	o.log.Error(ctx, "item published but recording completion failed",
		"item", itemID, "remote_id", remoteID, "error", err)
	if serr := o.store.SetLastError(ctx, itemID,
		fmt.Sprintf("published as %s but recording completion failed: %v", remoteID, err)); serr != nil {
		o.log.Error(ctx, "marking item errored failed", "item", itemID, "error", serr)
	}
	return outcomeStoreFailed
}

// withRetries runs one network step, absorbing the retryable error classes:
// disconnection parks in waitingNetwork and resumes the prior phase, a full
// rate window sits out a cooldown, transient failures back off a bounded
// number of times before escalating. Abuse and session errors bubble up.
func (o *Orchestrator) withRetries(ctx context.Context, ordinal int, step func() error) outcome {
	attempt := 0
	for {
		if o.stopRequested() != stopNone {
			return outcomeStopped
		}

		prior := o.CurrentPhase()
		err := step()
		if err == nil {
			return outcomeDone
		}

		switch {
		case errors.Is(err, api.ErrSessionExpired):
			return outcomeSessionExpired

		case errors.Is(err, api.ErrAbuseDetected),
			errors.Is(err, api.ErrChallengeRequired),
			errors.Is(err, api.ErrLockedOut):
			return outcomeLockdown

		case errors.Is(err, api.ErrRateLimited):
			until := o.guard.RateNextFree()
			if until.IsZero() {
				until = o.opts.Now().Add(o.opts.Tick)
			}
			o.log.Info(ctx, "rate window exhausted, cooling down", "until", until)
			o.transition(Phase{Kind: PhaseCooldown, Until: until})
			if !o.waitUntil(until) {
				return outcomeStopped
			}
			o.transition(prior)

		case errors.Is(err, api.ErrNetwork) && !o.network.CurrentState().Connected:
			// disconnection is not a failure of ours; wait it out and
			// return to where we were without spending an attempt
			o.log.Info(ctx, "offline, waiting for connectivity")
			o.transition(Phase{Kind: PhaseWaitingNetwork, Item: ordinal})
			if !o.awaitReconnect(ctx) {
				return outcomeStopped
			}
			o.transition(prior)

		default:
			attempt++
			if attempt > o.opts.MaxAutoRetries {
				return outcomeEscalated
			}
			delay := o.opts.RetryDelay << uint(attempt-1)
			until := o.opts.Now().Add(delay)
			o.log.Warn(ctx, "step failed, retrying",
				"attempt", attempt, "delay", delay, "error", err)
			o.transition(Phase{Kind: PhaseAutoRetrying, Until: until, Attempt: attempt})
			if !o.waitUntil(until) {
				return outcomeStopped
			}
			o.transition(prior)
		}
	}
}

// awaitReconnect blocks until connectivity returns or a stop is requested.
func (o *Orchestrator) awaitReconnect(ctx context.Context) bool {
	o.mu.Lock()
	stopCh := o.stopCh
	o.mu.Unlock()

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	for {
		err := o.network.AwaitConnectivity(waitCtx, 0)
		if err == nil {
			return true
		}
		if errors.Is(err, netmon.ErrConnectivityTimeout) {
			continue
		}
		return false
	}
}

// waitUntil sleeps toward an absolute deadline at scheduler resolution.
// Returns false when a stop request interrupted the countdown; the pending
// timer is always released.
func (o *Orchestrator) waitUntil(until time.Time) bool {
	o.mu.Lock()
	stopCh := o.stopCh
	o.mu.Unlock()

	for {
		remaining := until.Sub(o.opts.Now())
		if remaining <= 0 {
			return true
		}
		step := o.opts.Tick
		if remaining < step {
			step = remaining
		}

		timer := time.NewTimer(step)
		select {
		case <-timer.C:
		case <-stopCh:
			timer.Stop()
			return false
		}
	}
}
