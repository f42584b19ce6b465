// Package api executes calls against the platform's private HTTP API:
// pre-checks with the abuse guard, request shaping via the signer, dispatch
// over a read or write lane, and response classification feeding back into
// the guard.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dsokolov-dev/phantompost/internal/guard"
	"github.com/dsokolov-dev/phantompost/internal/logging"
	"github.com/dsokolov-dev/phantompost/internal/netmon"
	"github.com/dsokolov-dev/phantompost/internal/signer"
)

// Lane selects the dispatch behavior on transport failure.
type Lane int

const (
	// LaneRead waits for connectivity and retries transport errors; safe
	// for idempotent calls only.
	LaneRead Lane = iota

	// LaneWrite fails immediately on transport error. Silently retrying a
	// state-changing call risks duplicate server-side effects, and a replay
	// is itself a detectable pattern.
	LaneWrite
)

// midHeader is the response header carrying the vendor machine identifier.
const midHeader = "Ig-Set-X-Mid"

// readLaneAttempts bounds the transparent retry of idempotent calls.
const readLaneAttempts = 3

// MachineIDStore persists the vendor machine identifier across runs.
type MachineIDStore interface {
	SaveMachineID(ctx context.Context, mid string) error
}

// Options configures a Client.
type Options struct {
	BaseURL             string
	ConnectivityTimeout time.Duration

	// ThrottleLockdown is the fixed lockdown armed on HTTP 429.
	ThrottleLockdown time.Duration

	// ChallengeLockdown is armed when a response carries the
	// verification-required marker.
	ChallengeLockdown time.Duration
}

// Client executes one call end-to-end. Construct with New; all fields are
// required except HTTP, which defaults to a 30s-timeout http.Client.
type Client struct {
	opts    Options
	http    *http.Client
	signer  *signer.Signer
	guard   *guard.Guard
	monitor *netmon.Monitor
	mids    MachineIDStore
	log     logging.Logger

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Client bound to its collaborators.
func New(opts Options, httpClient *http.Client, sg *signer.Signer, g *guard.Guard, m *netmon.Monitor, mids MachineIDStore, log logging.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.ThrottleLockdown <= 0 {
		opts.ThrottleLockdown = guard.DefaultDurations.Long
	}
	if opts.ChallengeLockdown <= 0 {
		opts.ChallengeLockdown = guard.DefaultDurations.Long
	}
	return &Client{
		opts:    opts,
		http:    httpClient,
		signer:  sg,
		guard:   g,
		monitor: m,
		mids:    mids,
		log:     log.With("component", "api"),
		sleep:   sleepCtx,
	}
}

// Execute performs one JSON call. Write payloads travel as the signed-body
// envelope; a nil payload sends no body.
func (c *Client) Execute(ctx context.Context, method, path string, payload any, lane Lane) ([]byte, error) {
	body, _, err := c.do(ctx, lane, func() (*http.Request, error) {
		return c.buildJSONRequest(ctx, method, path, payload)
	})
	return body, err
}

// do runs the guarded call sequence shared by JSON calls and the binary
// upload: guard pre-checks, backoff, connectivity, dispatch, classification.
func (c *Client) do(ctx context.Context, lane Lane, build func() (*http.Request, error)) ([]byte, http.Header, error) {
	if c.guard.Locked() {
		reason, _, _ := c.guard.LockInfo()
		c.log.Warn(ctx, "call refused: lockdown active", "reason", reason)
		return nil, nil, ErrLockedOut
	}

	if !c.guard.RateAllow() {
		c.log.Warn(ctx, "call refused: rate ceiling reached", "used", c.guard.RateUsed())
		return nil, nil, ErrRateLimited
	}

	if d := c.guard.BackoffDelay(); d > 0 {
		c.log.Debug(ctx, "backoff before call", "delay", d)
		if err := c.sleep(ctx, d); err != nil {
			return nil, nil, err
		}
	}

	if !c.monitor.CurrentState().Connected {
		if err := c.monitor.AwaitConnectivity(ctx, c.opts.ConnectivityTimeout); err != nil {
			if errors.Is(err, netmon.ErrConnectivityTimeout) {
				return nil, nil, fmt.Errorf("%w: %s", ErrNetwork, err)
			}
			return nil, nil, err
		}
	}

	if lane == LaneWrite {
		// a write right after a transport hop is the riskiest moment
		if err := c.monitor.AwaitStability(ctx); err != nil {
			return nil, nil, err
		}
		return c.dispatch(ctx, build)
	}

	// read lane: transparent bounded retry of transport errors
	var body []byte
	var header http.Header
	backoff := retry.WithMaxRetries(readLaneAttempts-1, retry.NewFibonacci(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if !c.monitor.CurrentState().Connected {
			if err := c.monitor.AwaitConnectivity(ctx, c.opts.ConnectivityTimeout); err != nil {
				return retry.RetryableError(err)
			}
		}
		var err error
		body, header, err = c.dispatch(ctx, build)
		if errors.Is(err, ErrNetwork) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, netmon.ErrConnectivityTimeout) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNetwork, err)
		}
		return nil, nil, err
	}
	return body, header, nil
}

// dispatch sends one request and classifies the response.
func (c *Client) dispatch(ctx context.Context, build func() (*http.Request, error)) ([]byte, http.Header, error) {
	req, err := build()
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.guard.RecordFailure()
		return nil, nil, fmt.Errorf("%w: %s", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.guard.RecordFailure()
		return nil, nil, fmt.Errorf("%w: reading body: %s", ErrNetwork, err)
	}

	if err := c.classify(ctx, resp.StatusCode, resp.Header, body); err != nil {
		return nil, nil, err
	}
	return body, resp.Header, nil
}

// classify turns a response into the caller-visible outcome and updates the
// guard. First match wins.
func (c *Client) classify(ctx context.Context, status int, header http.Header, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		c.guard.ArmLockdown("the platform throttled this account", c.opts.ThrottleLockdown)
		c.log.Error(ctx, "server throttle; lockdown armed", "status", status)
		return ErrAbuseDetected

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrSessionExpired

	case status >= 400:
		message := bodyMessage(body)
		if guard.IsChallengeMessage(message) {
			c.guard.ArmLockdown(guard.SignalChallenge.Reason(), c.opts.ChallengeLockdown)
			c.log.Error(ctx, "verification challenge; lockdown armed", "status", status)
			return ErrChallengeRequired
		}
		c.guard.RecordFailure()
		return &HTTPError{Status: status, Message: message}
	}

	// 2xx can still carry an abuse signal in the body
	if sig := guard.ScanBody(body); sig != guard.SignalNone {
		c.guard.RecordSignal(sig)
		c.log.Error(ctx, "abuse signal in 2xx body", "signal", int(sig))
		switch sig {
		case guard.SignalChallenge:
			return ErrChallengeRequired
		case guard.SignalSessionInvalid:
			return ErrSessionExpired
		default:
			return ErrAbuseDetected
		}
	}

	if mid := header.Get(midHeader); mid != "" && mid != c.signer.MachineID() {
		c.signer.SetMachineID(mid)
		if err := c.mids.SaveMachineID(ctx, mid); err != nil {
			c.log.Warn(ctx, "persisting machine id failed", "error", err)
		}
	}

	c.guard.RecordSuccess()
	c.guard.RecordAction()
	return nil
}

func (c *Client) buildJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var bodyReader io.Reader
	contentType := ""

	if payload != nil {
		envelope, err := c.signer.SignBody(payload)
		if err != nil {
			return nil, err
		}
		bodyReader = strings.NewReader(envelope)
		contentType = "application/x-www-form-urlencoded; charset=UTF-8"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header = c.signer.Headers(c.monitor.CurrentState().Transport)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// bodyMessage extracts the "message" field of a JSON error body, falling
// back to a trimmed prefix of the raw body.
func bodyMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
