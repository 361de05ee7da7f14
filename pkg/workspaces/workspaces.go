// Package workspaces groups channels. The workspace record holds no channel
// list; its channels are discovered through the wschan projection written
// at channel creation.
package workspaces

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

// Create makes a workspace with a unique name.
func (r *Repo) Create(ctx context.Context, name string) (*models.Workspace, error) {
	if err := r.rules.ChannelName(name); err != nil {
		return nil, err
	}
	id := r.ids.NewID(ident.PrefixWorkspace)
	if err := r.st.PutIfAbsent(keys.WorkspaceName(name), []byte(id)); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return nil, fmt.Errorf("name exists: %w", errs.ErrConflict)
		}
		return nil, err
	}
	ws := models.Workspace{ID: id, Name: name, CreatedTS: r.clock.Now()}
	b, err := json.Marshal(ws)
	if err != nil {
		return nil, errs.Unavailable("marshal_workspace", err)
	}
	if err := r.st.Put(keys.Workspace(id), b); err != nil {
		return nil, err
	}
	logger.Info("workspace_created", "workspace", id, "name", name)
	return &ws, nil
}

// Get returns the workspace or (nil, nil) when absent.
func (r *Repo) Get(ctx context.Context, id string) (*models.Workspace, error) {
	v, err := r.st.Get(keys.Workspace(id))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ws models.Workspace
	if err := json.Unmarshal(v, &ws); err != nil {
		return nil, errs.Unavailable("unmarshal_workspace", err)
	}
	return &ws, nil
}

// GetByName resolves the name projection; (nil, nil) when absent.
func (r *Repo) GetByName(ctx context.Context, name string) (*models.Workspace, error) {
	id, err := r.st.Get(keys.WorkspaceName(name))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.Get(ctx, string(id))
}

// List returns every workspace record.
func (r *Repo) List(ctx context.Context) ([]models.Workspace, error) {
	kvs, err := r.st.QueryPrefix(keys.WorkspacePrefix(), store.QueryOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]models.Workspace, 0, len(kvs))
	for _, kv := range kvs {
		var ws models.Workspace
		if err := json.Unmarshal(kv.Value, &ws); err != nil {
			logger.Warn("workspace_record_corrupt", "key", kv.Key, "error", err)
			continue
		}
		out = append(out, ws)
	}
	return out, nil
}

// Channels returns the channels grouped under the workspace, discovered via
// the wschan projection.
func (r *Repo) Channels(ctx context.Context, workspaceID string) ([]models.Channel, error) {
	kvs, err := r.st.QueryPrefix(keys.WorkspaceChannelPrefix(workspaceID), store.QueryOptions{})
	if err != nil {
		return nil, err
	}
	var out []models.Channel
	for _, kv := range kvs {
		v, err := r.st.Get(keys.Channel(string(kv.Value)))
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				logger.Warn("workspace_channel_orphaned", "workspace", workspaceID, "channel", string(kv.Value))
				continue
			}
			return nil, err
		}
		var ch models.Channel
		if err := json.Unmarshal(v, &ch); err != nil {
			logger.Warn("channel_record_corrupt", "key", string(kv.Value), "error", err)
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}
