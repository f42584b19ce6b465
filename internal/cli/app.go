// Package cli is the interactive shell around the uploader: login, batch
// definition, start/pause/resume, the status display, and the emergency
// reset.
package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/dsokolov-dev/phantompost/internal/config"
	"github.com/dsokolov-dev/phantompost/internal/models"
	"github.com/dsokolov-dev/phantompost/internal/orchestrator"
	"github.com/dsokolov-dev/phantompost/internal/repositories/items"
)

// authService is the slice of services.AuthService the shell uses.
type authService interface {
	Login(ctx context.Context, username, password string) (*models.Session, error)
	Restore(ctx context.Context) (*models.Session, error)
	EmergencyReset(ctx context.Context) error
}

// uploader is the slice of orchestrator.Orchestrator the shell uses.
type uploader interface {
	Start(ctx context.Context, batchID string) error
	Pause() error
	Resume(ctx context.Context) error
	Reset(ctx context.Context) error
	CurrentPhase() orchestrator.Phase
	Progress(ctx context.Context) (models.ProgressCounts, error)
	LockInfo() (reason string, until time.Time, ok bool)
}

// App is the interactive shell. Construct with NewApp and drive it with Root.
type App struct {
	config   *config.Config
	auth     authService
	orch     uploader
	store    items.Repository
	reader   *bufio.Reader
	out      io.Writer
	userName string
}

// NewApp wires the shell to its collaborators. The binary builds those in
// cmd/phantompost.
func NewApp(c *config.Config, auth authService, orch uploader, store items.Repository) *App {
	return &App{
		config: c,
		auth:   auth,
		orch:   orch,
		store:  store,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}
