// Package users persists identity records. Email and display name are kept
// unique through lookup projections claimed with conditional puts, so a
// creation race has at most one winner per key.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chatdb/pkg/errs"
	"chatdb/pkg/ident"
	"chatdb/pkg/keys"
	"chatdb/pkg/logger"
	"chatdb/pkg/models"
	"chatdb/pkg/store"
	"chatdb/pkg/validation"
)

type Repo struct {
	st    *store.Store
	ids   ident.Generator
	clock ident.Clock
	rules validation.Rules
}

func New(st *store.Store, ids ident.Generator, clock ident.Clock, rules validation.Rules) *Repo {
	return &Repo{st: st, ids: ids, clock: clock, rules: rules}
}

// Create registers a new user. The email projection is claimed first with a
// conditional put, then the name projection; when the name is already taken
// the email claim is released again so the address stays usable. New users
// start online with last-active set to the creation time.
func (r *Repo) Create(ctx context.Context, email, name, passwordHash string, kind models.UserKind) (*models.User, error) {
	if err := r.rules.Email(email); err != nil {
		return nil, err
	}
	if err := r.rules.DisplayName(name); err != nil {
		return nil, err
	}
	if err := validation.UserKind(kind); err != nil {
		return nil, err
	}

	id := r.ids.NewID(ident.PrefixUser)
	now := r.clock.Now()

	if err := r.st.PutIfAbsent(keys.UserEmail(email), []byte(id)); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return nil, fmt.Errorf("email exists: %w", errs.ErrConflict)
		}
		return nil, err
	}
	if err := r.st.PutIfAbsent(keys.UserName(name), []byte(id)); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			// release our email claim; losing it would block the address forever
			if derr := r.st.Delete(keys.UserEmail(email)); derr != nil {
				logger.Warn("email_claim_release_failed", "email", email, "error", derr)
			}
			return nil, fmt.Errorf("name exists: %w", errs.ErrConflict)
		}
		return nil, err
	}

	u := models.User{
		ID:           id,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		Kind:         kind,
		Status:       models.StatusOnline,
		LastActiveTS: now,
		CreatedTS:    now,
	}
	b, err := json.Marshal(u)
	if err != nil {
		return nil, errs.Unavailable("marshal_user", err)
	}
	if err := r.st.Put(keys.User(id), b); err != nil {
		return nil, err
	}
	logger.Info("user_created", "user", id, "kind", string(kind))
	return &u, nil
}

// CreatePersona registers a bot/persona account with no credential but with
// role and bio metadata.
func (r *Repo) CreatePersona(ctx context.Context, email, name, role, bio string) (*models.User, error) {
	u, err := r.Create(ctx, email, name, "", models.UserBot)
	if err != nil {
		return nil, err
	}
	u.Role = role
	u.Bio = bio
	b, err := json.Marshal(u)
	if err != nil {
		return nil, errs.Unavailable("marshal_user", err)
	}
	if err := r.st.Put(keys.User(u.ID), b); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID returns the user or (nil, nil) when absent.
func (r *Repo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.load(keys.User(id))
}

// GetByEmail resolves the email projection and loads the record;
// (nil, nil) when no user has the address.
func (r *Repo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	id, err := r.st.Get(keys.UserEmail(email))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.load(keys.User(string(id)))
}

// GetByName resolves the display-name projection; (nil, nil) when absent.
func (r *Repo) GetByName(ctx context.Context, name string) (*models.User, error) {
	id, err := r.st.Get(keys.UserName(name))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.load(keys.User(string(id)))
}

// Exists reports whether a user record exists.
func (r *Repo) Exists(ctx context.Context, id string) (bool, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return u != nil, nil
}

// UpdateStatus overwrites presence status and last-active unconditionally.
// Status flapping across concurrent requests is last-write-wins; only
// content edits get version gating.
func (r *Repo) UpdateStatus(ctx context.Context, userID string, status models.Status) error {
	if err := validation.Status(status); err != nil {
		return err
	}
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("user %s: %w", userID, errs.ErrNotFound)
	}
	u.Status = status
	u.LastActiveTS = r.clock.Now()
	b, err := json.Marshal(u)
	if err != nil {
		return errs.Unavailable("marshal_user", err)
	}
	return r.st.Put(keys.User(userID), b)
}

// BatchGet loads the given users, chunked to the store's batch limit.
// Unknown ids are dropped from the result without error.
func (r *Repo) BatchGet(ctx context.Context, userIDs []string) ([]models.User, error) {
	ks := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		ks = append(ks, keys.User(id))
	}
	vals, err := r.st.BatchGet(ks)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(vals))
	// preserve request order for the ids that resolved
	for _, k := range ks {
		v, ok := vals[k]
		if !ok {
			continue
		}
		var u models.User
		if err := json.Unmarshal(v, &u); err != nil {
			logger.Warn("user_record_corrupt", "key", k, "error", err)
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *Repo) load(key string) (*models.User, error) {
	v, err := r.st.Get(key)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(v, &u); err != nil {
		return nil, errs.Unavailable("unmarshal_user", err)
	}
	return &u, nil
}
