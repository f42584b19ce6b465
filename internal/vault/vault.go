// Package vault persists the authenticated Session, encrypted at rest.
// The ciphertext lives in the local metadata store; the key is derived from a
// local passphrase, so a copied database file alone is useless.
package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dsokolov-dev/phantompost/internal/common"
	"github.com/dsokolov-dev/phantompost/internal/cryptox"
	"github.com/dsokolov-dev/phantompost/internal/models"
	"github.com/dsokolov-dev/phantompost/internal/repositories/metadata"
)

// ErrNoSession is returned by Load when no session has been saved.
var ErrNoSession = errors.New("no stored session")

const (
	keySessionCiphertext = "vault.session.ct"
	keySessionNonce      = "vault.session.nonce"
	keySessionSalt       = "vault.session.salt"
)

// Vault stores and retrieves the active Session.
type Vault interface {
	Save(ctx context.Context, s *models.Session) error
	Load(ctx context.Context) (*models.Session, error)
	Delete(ctx context.Context) error
}

// MetadataVault is a Vault backed by the metadata repository.
type MetadataVault struct {
	repo       metadata.Repository
	passphrase []byte
}

// New returns a MetadataVault sealing sessions under the given passphrase.
func New(repo metadata.Repository, passphrase []byte) *MetadataVault {
	return &MetadataVault{repo: repo, passphrase: passphrase}
}

func (v *MetadataVault) Save(ctx context.Context, s *models.Session) error {
	salt := common.GenerateRandByteArray(16)
	key := cryptox.DeriveKey(v.passphrase, salt)
	defer common.WipeByteArray(key)

	ct, nonce, err := cryptox.Seal(s, key)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}

	if err := v.repo.Set(ctx, keySessionSalt, salt); err != nil {
		return err
	}
	if err := v.repo.Set(ctx, keySessionNonce, nonce); err != nil {
		return err
	}
	if err := v.repo.Set(ctx, keySessionCiphertext, ct); err != nil {
		return err
	}
	return nil
}

func (v *MetadataVault) Load(ctx context.Context) (*models.Session, error) {
	ct, err := v.get(ctx, keySessionCiphertext)
	if err != nil {
		return nil, err
	}
	nonce, err := v.get(ctx, keySessionNonce)
	if err != nil {
		return nil, err
	}
	salt, err := v.get(ctx, keySessionSalt)
	if err != nil {
		return nil, err
	}

	key := cryptox.DeriveKey(v.passphrase, salt)
	defer common.WipeByteArray(key)

	s := &models.Session{}
	if err := cryptox.Open(ct, nonce, key, s); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return s, nil
}

func (v *MetadataVault) Delete(ctx context.Context) error {
	for _, k := range []string{keySessionCiphertext, keySessionNonce, keySessionSalt} {
		if err := v.repo.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (v *MetadataVault) get(ctx context.Context, key string) ([]byte, error) {
	b, err := v.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return b, nil
}
