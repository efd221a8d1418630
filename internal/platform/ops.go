package platform

import (
	"context"
	"errors"

	"github.com/aretw0/introspection"

	"github.com/aretw0/notesync/pkg/adapters/supabase"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/syncer"
)

// Login signs in with email and password and persists the identity. The
// password is not stored.
func (a *App) Login(ctx context.Context, email, password string) error {
	sess, err := a.Backend.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	a.Settings.Auth.Email = email
	a.Settings.Auth.UserID = sess.UserID
	a.Settings.Auth.RefreshToken = sess.RefreshToken
	a.Remote.SetIdentity(supabase.Identity{UserID: sess.UserID, LegacyID: a.Settings.Auth.LegacyID})
	if err := a.Settings.Save(); err != nil {
		return err
	}
	a.Logger.Info("signed in", "email", email)
	return nil
}

// Logout ends the session and forgets the identity.
func (a *App) Logout(ctx context.Context) error {
	if err := a.Syncer.StopRealtime(); err != nil {
		a.Logger.Warn("failed to stop realtime mirroring", "error", err)
	}
	if err := a.Backend.SignOut(ctx); err != nil {
		a.Logger.Warn("remote sign out failed", "error", err)
	}
	a.Settings.ClearAuth()
	a.Remote.SetIdentity(supabase.Identity{})
	return a.Settings.Save()
}

// EnsureSession refreshes the stored session so remote calls carry a valid
// token.
func (a *App) EnsureSession(ctx context.Context) error {
	if !a.Settings.SignedIn() {
		return core.ErrNotSignedIn
	}
	token := a.Settings.Auth.RefreshToken
	if token == "" {
		return nil
	}
	sess, err := a.Backend.Refresh(ctx, token)
	if err != nil {
		return &core.UserError{Msg: "session expired, please sign in again", Err: err}
	}
	if sess.RefreshToken != "" && sess.RefreshToken != token {
		a.Settings.Auth.RefreshToken = sess.RefreshToken
		if err := a.Settings.Save(); err != nil {
			a.Logger.Warn("failed to persist refreshed session", "error", err)
		}
	}
	return nil
}

// Sync refreshes the session and runs one sync pass.
func (a *App) Sync(ctx context.Context) syncer.Result {
	if err := a.EnsureSession(ctx); err != nil {
		return syncer.Result{Err: err}
	}
	return a.Syncer.Sync(ctx)
}

// NewNote creates an empty remote note and pulls it into the vault.
func (a *App) NewNote(ctx context.Context) (core.Note, error) {
	if err := a.EnsureSession(ctx); err != nil {
		return core.Note{}, err
	}
	n, err := a.Remote.CreateEmptyNote(ctx)
	if err != nil {
		return core.Note{}, err
	}
	if err := a.Local.UpsertNotes(ctx, []core.Note{n}, false); err != nil {
		return n, err
	}
	return n, nil
}

// Component is a part of the app that reports its state.
type Component interface {
	introspection.Introspectable
	introspection.Component
}

// Components lists the introspectable parts of the app.
func (a *App) Components() []Component {
	return []Component{a.Local, a.Remote, a.Syncer}
}

// Close stops realtime mirroring.
func (a *App) Close() error {
	return errors.Join(a.Syncer.StopRealtime(), a.Local.OffNoteChange())
}
