package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dsokolov-dev/phantompost/internal/repositories/metadata"
)

const machineIDKey = "device.machine_id"

// MachineIDKeeper persists the vendor machine identifier the platform assigns
// through a response header. It satisfies api.MachineIDStore.
type MachineIDKeeper struct {
	repo metadata.Repository
}

func NewMachineIDKeeper(repo metadata.Repository) *MachineIDKeeper {
	return &MachineIDKeeper{repo: repo}
}

// SaveMachineID stores the identifier for future runs.
func (k *MachineIDKeeper) SaveMachineID(ctx context.Context, mid string) error {
	return k.repo.Set(ctx, machineIDKey, []byte(mid))
}

// LoadMachineID returns the stored identifier, or "" when none was assigned
// yet.
func (k *MachineIDKeeper) LoadMachineID(ctx context.Context) (string, error) {
	b, err := k.repo.Get(ctx, machineIDKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return string(b), nil
}

// Purge removes the stored identifier. Part of the emergency reset.
func (k *MachineIDKeeper) Purge(ctx context.Context) error {
	return k.repo.Delete(ctx, machineIDKey)
}
