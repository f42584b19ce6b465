package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dsokolov-dev/phantompost/internal/common"
	"github.com/dsokolov-dev/phantompost/internal/models"
	"github.com/dsokolov-dev/phantompost/internal/vault"
)

// Login prompts for credentials and authenticates.
func (a *App) Login(ctx context.Context) error {
	userName, err := GetSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	sess, err := a.auth.Login(ctx, userName, string(password))
	if err != nil {
		fmt.Fprintf(a.out, "Login failed: %s\n", err)
		return err
	}

	a.userName = sess.Username
	fmt.Fprintf(a.out, "Logged in as %s\n", sess.Username)
	return nil
}

// Restore tries to reactivate a previously vaulted session. Quiet when there
// is none.
func (a *App) Restore(ctx context.Context) {
	sess, err := a.auth.Restore(ctx)
	if err != nil {
		if !errors.Is(err, vault.ErrNoSession) {
			fmt.Fprintf(a.out, "Could not restore session: %s\n", err)
		}
		return
	}
	a.userName = sess.Username
	fmt.Fprintf(a.out, "Session restored for %s\n", sess.Username)
}

// Add defines a new batch from a directory of JPEG files.
func (a *App) Add(ctx context.Context) error {
	dir, err := GetSimpleText(a.reader, "Enter directory with .jpg files", a.out)
	if err != nil {
		return err
	}

	caption, err := GetSimpleText(a.reader, "Enter caption", a.out)
	if err != nil {
		return err
	}

	allowRepeat, err := GetYesNo(a.reader, "Allow posting identical content twice?", a.out)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(a.out, "Cannot read directory: %s\n", err)
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		fmt.Fprintln(a.out, "No .jpg files found")
		return errors.New("empty batch")
	}

	batch := &models.Batch{ID: uuid.NewString(), Caption: caption, AllowRepeat: allowRepeat}
	if err := a.store.AddBatch(ctx, batch); err != nil {
		return err
	}
	for i, name := range files {
		item := &models.UploadItem{
			ID:       uuid.NewString(),
			BatchID:  batch.ID,
			Status:   models.StatusPending,
			Position: i,
		}
		if err := a.store.AddItem(ctx, item, filepath.Join(dir, name)); err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out, "Batch %s created with %d items\n", batch.ID, len(files))
	return nil
}

// Start begins processing the given batch.
func (a *App) Start(ctx context.Context, batchID string) error {
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, "Log in first")
		return errors.New("not logged in")
	}
	if err := a.orch.Start(ctx, batchID); err != nil {
		fmt.Fprintf(a.out, "Cannot start: %s\n", err)
		return err
	}
	fmt.Fprintf(a.out, "Batch %s started\n", batchID)
	return nil
}

// Pause suppresses the next scheduled action. Anything already on the wire
// finishes.
func (a *App) Pause() error {
	if err := a.orch.Pause(); err != nil {
		fmt.Fprintf(a.out, "Cannot pause: %s\n", err)
		return err
	}
	fmt.Fprintln(a.out, "Pausing after the current action")
	return nil
}

// Resume continues a paused batch, re-checking the lockdown first.
func (a *App) Resume(ctx context.Context) error {
	if err := a.orch.Resume(ctx); err != nil {
		fmt.Fprintf(a.out, "Cannot resume: %s\n", err)
		return err
	}
	fmt.Fprintln(a.out, "Resumed")
	return nil
}

// Reset is the panic button: it stops the run and wipes session, guard, and
// machine-id state after an explicit confirmation.
func (a *App) Reset(ctx context.Context) error {
	answer, err := GetSimpleText(a.reader,
		"This wipes the session, lockdown state, and rate history. Type RESET to confirm", a.out)
	if err != nil {
		return err
	}
	if answer != "RESET" {
		fmt.Fprintln(a.out, "Aborted")
		return nil
	}

	if err := a.orch.Reset(ctx); err != nil {
		return err
	}
	if err := a.auth.EmergencyReset(ctx); err != nil {
		fmt.Fprintf(a.out, "Reset failed: %s\n", err)
		return err
	}

	a.userName = ""
	fmt.Fprintln(a.out, "All account state wiped; log in again to continue")
	return nil
}

// Status prints the current phase, remaining countdown, progress, and any
// active lockdown in plain language.
func (a *App) Status(ctx context.Context) error {
	phase := a.orch.CurrentPhase()
	fmt.Fprintf(a.out, "Phase: %s\n", phase)
	if remaining := phase.Remaining(time.Now()); remaining > 0 {
		fmt.Fprintf(a.out, "  %s remaining\n", remaining.Round(time.Second))
	}

	if counts, err := a.orch.Progress(ctx); err == nil {
		fmt.Fprintf(a.out, "Items: %d done, %d pending, %d failed (of %d)\n",
			counts.Completed, counts.Pending, counts.Errored, counts.Total())
	}

	if reason, until, locked := a.orch.LockInfo(); locked {
		fmt.Fprintf(a.out, "Locked: %s (clears in %s)\n",
			reason, time.Until(until).Round(time.Second))
	}
	return nil
}
