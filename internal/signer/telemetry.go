package signer

import (
	"sync"

	"github.com/dsokolov-dev/phantompost/internal/common"
)

// Telemetry is the synthetic bandwidth measurement embedded in the header
// set. Real clients report their observed throughput; ours drifts a
// plausible value slightly between calls so consecutive requests never carry
// identical numbers.
type Telemetry struct {
	SpeedKBPS   int
	TotalBytes  int64
	TotalTimeMS int64
}

// TelemetrySource produces the telemetry for one outbound call. The signer
// treats the sample as a declared input, keeping header construction a pure
// function of its inputs.
type TelemetrySource interface {
	Sample() Telemetry
}

const (
	speedFloorKBPS   = 900
	speedCeilingKBPS = 9000
	maxDriftKBPS     = 350
)

// DriftingTelemetry is the default source: a random walk bounded to a
// realistic mobile-bandwidth band, with monotonically growing totals.
type DriftingTelemetry struct {
	mu   sync.Mutex
	last Telemetry
}

func NewDriftingTelemetry() *DriftingTelemetry {
	return &DriftingTelemetry{
		last: Telemetry{
			SpeedKBPS:   common.RandomIntBetween(2000, 6000),
			TotalBytes:  int64(common.RandomIntBetween(800_000, 3_000_000)),
			TotalTimeMS: int64(common.RandomIntBetween(600, 2500)),
		},
	}
}

func (d *DriftingTelemetry) Sample() Telemetry {
	d.mu.Lock()
	defer d.mu.Unlock()

	speed := d.last.SpeedKBPS + common.RandomIntBetween(-maxDriftKBPS, maxDriftKBPS+1)
	if speed < speedFloorKBPS {
		speed = speedFloorKBPS
	}
	if speed > speedCeilingKBPS {
		speed = speedCeilingKBPS
	}

	d.last = Telemetry{
		SpeedKBPS:   speed,
		TotalBytes:  d.last.TotalBytes + int64(common.RandomIntBetween(40_000, 400_000)),
		TotalTimeMS: d.last.TotalTimeMS + int64(common.RandomIntBetween(80, 900)),
	}
	return d.last
}

// StaticTelemetry always returns the same sample. Tests use it to pin the
// header set.
type StaticTelemetry struct {
	T Telemetry
}

func (s StaticTelemetry) Sample() Telemetry { return s.T }
