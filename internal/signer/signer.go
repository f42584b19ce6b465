// Package signer shapes outbound traffic to resemble a genuine mobile
// client: the full identity header set and the HMAC signed-body envelope for
// write payloads.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/dsokolov-dev/phantompost/internal/device"
	"github.com/dsokolov-dev/phantompost/internal/models"
	"github.com/dsokolov-dev/phantompost/internal/netmon"
)

// Options carries the static client-identity values, normally straight from
// config.
type Options struct {
	AppID         string
	AppVersion    string
	UserAgent     string
	Locale        string
	SigKey        string
	SigKeyVersion string
	Capabilities  string
}

// Signer builds header sets and body signatures for pending calls.
// Header construction and SignBody are pure functions of (session, device,
// payload, declared nonces); the rotating session UUID and telemetry sample
// are the declared nonces.
type Signer struct {
	opts      Options
	device    *device.Identity
	session   func() *models.Session
	telemetry TelemetrySource

	mu          sync.Mutex
	sessionUUID string
	mid         string
}

// New returns a Signer. session is a getter so the active session can be
// swapped on re-auth without rebuilding the signer.
func New(opts Options, dev *device.Identity, session func() *models.Session, telemetry TelemetrySource) *Signer {
	if opts.Capabilities == "" {
		opts.Capabilities = "3brTv10="
	}
	return &Signer{
		opts:        opts,
		device:      dev,
		session:     session,
		telemetry:   telemetry,
		sessionUUID: uuid.NewString(),
	}
}

// Rotate replaces the per-run session UUID. Called on foreground/resume so a
// new run does not look like one endless session.
func (s *Signer) Rotate() {
	s.mu.Lock()
	s.sessionUUID = uuid.NewString()
	s.mu.Unlock()
}

// SetMachineID stores the vendor machine identifier echoed back on later
// requests. Persisted by the caller; the signer only carries it.
func (s *Signer) SetMachineID(mid string) {
	s.mu.Lock()
	s.mid = mid
	s.mu.Unlock()
}

// MachineID returns the stored vendor machine identifier, if any.
func (s *Signer) MachineID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mid
}

// Headers builds the full identity header set for one call on the given
// transport.
func (s *Signer) Headers(transport netmon.Transport) http.Header {
	s.mu.Lock()
	sessionUUID := s.sessionUUID
	mid := s.mid
	s.mu.Unlock()

	tel := s.telemetry.Sample()

	h := http.Header{}
	h.Set("User-Agent", s.opts.UserAgent)
	h.Set("Accept-Language", s.opts.Locale)
	h.Set("X-IG-App-ID", s.opts.AppID)
	h.Set("X-IG-App-Locale", s.opts.Locale)
	h.Set("X-IG-Device-ID", s.device.ClientInstallID)
	h.Set("X-IG-Android-ID", s.device.DeviceID)
	h.Set("X-IG-Capabilities", s.opts.Capabilities)
	h.Set("X-IG-Connection-Type", connectionType(transport))
	h.Set("X-IG-Bandwidth-Speed-KBPS", strconv.Itoa(tel.SpeedKBPS))
	h.Set("X-IG-Bandwidth-TotalBytes-B", strconv.FormatInt(tel.TotalBytes, 10))
	h.Set("X-IG-Bandwidth-TotalTime-MS", strconv.FormatInt(tel.TotalTimeMS, 10))
	h.Set("X-Pigeon-Session-Id", sessionUUID)
	if mid != "" {
		h.Set("X-MID", mid)
	}

	if sess := s.session(); sess.Valid() {
		h.Set("Cookie", fmt.Sprintf("sessionid=%s; csrftoken=%s; ds_user_id=%s",
			sess.SessionID, sess.CSRFToken, sess.UserID))
		h.Set("X-CSRFToken", sess.CSRFToken)
	}

	return h
}

// SignBody computes the signed-body envelope for a JSON write payload:
//
//	signed_body=<hex-hmac-sha256>.<urlencoded-json>&ig_sig_key_version=<n>
//
// Identical payloads always produce identical envelopes.
func (s *Signer) SignBody(payload any) (string, error) {
	js, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(s.opts.SigKey))
	mac.Write(js)
	sig := hex.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("signed_body=%s.%s&ig_sig_key_version=%s",
		sig, url.QueryEscape(string(js)), s.opts.SigKeyVersion), nil
}

func connectionType(t netmon.Transport) string {
	switch t {
	case netmon.TransportCellular:
		return "MOBILE(LTE)"
	case netmon.TransportWiFi:
		return "WIFI"
	default:
		return "WIFI"
	}
}
