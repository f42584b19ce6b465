package services

import (
	"context"
	"fmt"

	"github.com/dsokolov-dev/phantompost/internal/guard"
	"github.com/dsokolov-dev/phantompost/internal/logging"
	"github.com/dsokolov-dev/phantompost/internal/models"
	"github.com/dsokolov-dev/phantompost/internal/signer"
	"github.com/dsokolov-dev/phantompost/internal/vault"
)

// loginClient is the slice of the API client the auth flow needs.
// *api.Client satisfies it.
type loginClient interface {
	Login(ctx context.Context, username, password string) (*models.Session, error)
}

// AuthService owns the session lifecycle: login, restore-from-vault, logout,
// and the emergency reset that wipes every piece of account state at once.
type AuthService struct {
	client loginClient
	vault  vault.Vault
	holder *SessionHolder
	signer *signer.Signer
	guard  *guard.Guard
	mids   *MachineIDKeeper
	log    logging.Logger
}

func NewAuthService(client loginClient, v vault.Vault, holder *SessionHolder,
	sg *signer.Signer, g *guard.Guard, mids *MachineIDKeeper, log logging.Logger) *AuthService {
	return &AuthService{
		client: client,
		vault:  v,
		holder: holder,
		signer: sg,
		guard:  g,
		mids:   mids,
		log:    log.With("component", "auth"),
	}
}

// Login authenticates, seals the session into the vault, activates it, and
// rotates the per-run identifier so the new session starts fresh.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.Session, error) {
	sess, err := s.client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	if err := s.vault.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	s.holder.Set(sess)
	s.signer.Rotate()
	s.log.Info(ctx, "logged in", "username", sess.Username)
	return sess, nil
}

// Restore loads the sealed session from the vault and activates it. Returns
// vault.ErrNoSession when nobody logged in yet.
func (s *AuthService) Restore(ctx context.Context) (*models.Session, error) {
	sess, err := s.vault.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.holder.Set(sess)
	s.log.Debug(ctx, "session restored", "username", sess.Username)
	return sess, nil
}

// Logout drops the active session and its sealed copy.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.vault.Delete(ctx); err != nil {
		return err
	}
	s.holder.Clear()
	s.signer.Rotate()
	s.log.Info(ctx, "logged out")
	return nil
}

// EmergencyReset is the panic button: guard state, rate ledger, session,
// sealed credentials, and the assigned machine id all go at once. Requires a
// fresh login afterwards.
func (s *AuthService) EmergencyReset(ctx context.Context) error {
	s.guard.EmergencyReset()

	if err := s.vault.Delete(ctx); err != nil {
		return fmt.Errorf("purge vault: %w", err)
	}
	if err := s.mids.Purge(ctx); err != nil {
		return fmt.Errorf("purge machine id: %w", err)
	}

	s.holder.Clear()
	s.signer.SetMachineID("")
	s.signer.Rotate()
	s.log.Warn(ctx, "emergency reset performed; all account state wiped")
	return nil
}
