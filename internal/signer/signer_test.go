package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dsokolov-dev/phantompost/internal/device"
	"github.com/dsokolov-dev/phantompost/internal/models"
	"github.com/dsokolov-dev/phantompost/internal/netmon"
)

func testSigner(sess *models.Session) *Signer {
	dev := &device.Identity{
		DeviceID:        "android-0123456789abcdef",
		ClientInstallID: "7b1e8a00-1111-2222-3333-444455556666",
	}
	opts := Options{
		AppID:         "appid",
		AppVersion:    "1.0",
		UserAgent:     "TestClient/1.0",
		Locale:        "en_US",
		SigKey:        "test-sig-key",
		SigKeyVersion: "4",
	}
	return New(opts, dev, func() *models.Session { return sess }, StaticTelemetry{T: Telemetry{
		SpeedKBPS:   3000,
		TotalBytes:  1_000_000,
		TotalTimeMS: 1200,
	}})
}

func TestHeadersIncludeSessionCookies(t *testing.T) {
	sess := &models.Session{
		SessionID: "X",
		CSRFToken: "Y",
		UserID:    "Z",
		Username:  "user",
		LoggedIn:  true,
	}
	h := testSigner(sess).Headers(netmon.TransportWiFi)

	require.Equal(t, "sessionid=X; csrftoken=Y; ds_user_id=Z", h.Get("Cookie"))
	require.Equal(t, "Y", h.Get("X-CSRFToken"))
}

func TestHeadersIdentitySet(t *testing.T) {
	h := testSigner(nil).Headers(netmon.TransportCellular)

	require.Equal(t, "TestClient/1.0", h.Get("User-Agent"))
	require.Equal(t, "appid", h.Get("X-IG-App-ID"))
	require.Equal(t, "android-0123456789abcdef", h.Get("X-IG-Android-ID"))
	require.Equal(t, "7b1e8a00-1111-2222-3333-444455556666", h.Get("X-IG-Device-ID"))
	require.Equal(t, "MOBILE(LTE)", h.Get("X-IG-Connection-Type"))
	require.Equal(t, "3000", h.Get("X-IG-Bandwidth-Speed-KBPS"))
	require.NotEmpty(t, h.Get("X-Pigeon-Session-Id"))

	// logged out: no credential headers
	require.Empty(t, h.Get("Cookie"))
	require.Empty(t, h.Get("X-CSRFToken"))
	// no machine id yet
	require.Empty(t, h.Get("X-MID"))
}

func TestMachineIDEchoedOnceKnown(t *testing.T) {
	s := testSigner(nil)
	s.SetMachineID("mid-123")

	h := s.Headers(netmon.TransportWiFi)
	require.Equal(t, "mid-123", h.Get("X-MID"))
}

func TestRotateChangesSessionUUID(t *testing.T) {
	s := testSigner(nil)

	before := s.Headers(netmon.TransportWiFi).Get("X-Pigeon-Session-Id")
	s.Rotate()
	after := s.Headers(netmon.TransportWiFi).Get("X-Pigeon-Session-Id")

	require.NotEqual(t, before, after)
}

func TestSignBodyDeterministicAndVerifiable(t *testing.T) {
	s := testSigner(nil)

	payload := map[string]string{"upload_id": "42", "caption": "hi there"}

	first, err := s.SignBody(payload)
	require.NoError(t, err)
	second, err := s.SignBody(payload)
	require.NoError(t, err)
	require.Equal(t, first, second, "identical inputs must sign identically")

	require.True(t, strings.HasPrefix(first, "signed_body="))
	require.True(t, strings.HasSuffix(first, "&ig_sig_key_version=4"))

	// recompute the mac over the transmitted json
	envelope := strings.TrimPrefix(strings.TrimSuffix(first, "&ig_sig_key_version=4"), "signed_body=")
	parts := strings.SplitN(envelope, ".", 2)
	require.Len(t, parts, 2)

	rawJSON, err := url.QueryUnescape(parts[1])
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("test-sig-key"))
	mac.Write([]byte(rawJSON))
	require.Equal(t, hex.EncodeToString(mac.Sum(nil)), parts[0])
}

func TestSignBodyDiffersPerPayload(t *testing.T) {
	s := testSigner(nil)

	a, err := s.SignBody(map[string]string{"k": "a"})
	require.NoError(t, err)
	b, err := s.SignBody(map[string]string{"k": "b"})
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestDriftingTelemetryStaysInBounds(t *testing.T) {
	d := NewDriftingTelemetry()

	prev := d.Sample()
	for i := 0; i < 200; i++ {
		cur := d.Sample()
		require.GreaterOrEqual(t, cur.SpeedKBPS, speedFloorKBPS)
		require.LessOrEqual(t, cur.SpeedKBPS, speedCeilingKBPS)
		require.LessOrEqual(t, absInt(cur.SpeedKBPS-prev.SpeedKBPS), maxDriftKBPS)
		require.Greater(t, cur.TotalBytes, prev.TotalBytes)
		require.Greater(t, cur.TotalTimeMS, prev.TotalTimeMS)
		prev = cur
	}
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
