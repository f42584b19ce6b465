// Package device provides the stable install fingerprint every request
// carries. The identity is generated exactly once per install and is
// read-only afterwards; reinstalling (or purging the local store) is the only
// way to obtain a new one.
package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dsokolov-dev/phantompost/internal/common"
	"github.com/dsokolov-dev/phantompost/internal/repositories/metadata"
)

const metadataKey = "device.identity"

// Identity is the persistent device fingerprint.
type Identity struct {
	// DeviceID is an android-style hardware id: "android-" + 16 hex chars.
	DeviceID string `json:"device_id"`

	// ClientInstallID is the per-install UUID sent as the device GUID.
	ClientInstallID string `json:"client_install_id"`
}

// Load returns the stored identity, generating and persisting one on first
// use.
func Load(ctx context.Context, repo metadata.Repository) (*Identity, error) {
	raw, err := repo.Get(ctx, metadataKey)
	if err == nil {
		id := &Identity{}
		if err := json.Unmarshal(raw, id); err != nil {
			return nil, fmt.Errorf("decode device identity: %w", err)
		}
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	id, err := generate()
	if err != nil {
		return nil, err
	}

	raw, err = json.Marshal(id)
	if err != nil {
		return nil, err
	}
	if err := repo.Set(ctx, metadataKey, raw); err != nil {
		return nil, fmt.Errorf("persist device identity: %w", err)
	}
	return id, nil
}

func generate() (*Identity, error) {
	hexPart, err := common.MakeRandHexString(8)
	if err != nil {
		return nil, err
	}
	return &Identity{
		DeviceID:        "android-" + hexPart,
		ClientInstallID: uuid.NewString(),
	}, nil
}
