// Package channels persists channel records, membership edges and the
// per-member read watermark. Name uniqueness and duplicate-membership
// protection both ride on conditional puts against projection keys; unread
// counts are derived from the message index on every read, never stored.
package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chatdb/pkg/errs"
	"chatdb/pkg/ident"
	"chatdb/pkg/index"
	"chatdb/pkg/keys"
	"chatdb/pkg/logger"
	"chatdb/pkg/models"
	"chatdb/pkg/store"
	"chatdb/pkg/users"
	"chatdb/pkg/validation"
)

// SystemUser is the creator recorded on channels the system itself makes,
// such as the default channel.
const SystemUser = "system"

type Repo struct {
	st    *store.Store
	users *users.Repo
	ids   ident.Generator
	clock ident.Clock
	rules validation.Rules

	defaultName string
}

func New(st *store.Store, ur *users.Repo, ids ident.Generator, clock ident.Clock, rules validation.Rules, defaultName string) *Repo {
	if defaultName == "" {
		defaultName = "general"
	}
	return &Repo{st: st, users: ur, ids: ids, clock: clock, rules: rules, defaultName: defaultName}
}

// DefaultName returns the name of the implicit always-member channel.
func (r *Repo) DefaultName() string { return r.defaultName }

// IsDefault reports whether ch is the default channel. Removal policy for
// it lives above the repository; this is the flag that layer branches on.
func (r *Repo) IsDefault(ch *models.Channel) bool {
	return ch != nil && ch.Kind == models.ChannelPublic && ch.Name == r.defaultName
}

// Create makes a channel. Direct-message channels get a canonical name
// derived from the sorted user pair and are created idempotently: a second
// create for the same pair returns the existing channel. Non-DM channels
// conflict on an existing name of the same kind. The creator (and for DMs
// the other user) is added as a member best-effort after the record write;
// the two writes are not atomic.
func (r *Repo) Create(ctx context.Context, name string, kind models.ChannelKind, creatorID, otherUserID, workspaceID string) (*models.Channel, error) {
	if err := validation.ChannelKind(kind); err != nil {
		return nil, err
	}
	if err := keys.ValidID(creatorID); err != nil {
		return nil, err
	}
	if ok, err := r.users.Exists(ctx, creatorID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("creator %s: %w", creatorID, errs.ErrNotFound)
	}
	if workspaceID == "" {
		workspaceID = models.WorkspaceNone
	}

	if kind == models.ChannelDirect {
		return r.createDM(ctx, creatorID, otherUserID, workspaceID)
	}

	if err := r.rules.ChannelName(name); err != nil {
		return nil, err
	}
	id := r.ids.NewID(ident.PrefixChannel)
	if err := r.st.PutIfAbsent(keys.ChannelName(string(kind), name), []byte(id)); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return nil, fmt.Errorf("name exists: %w", errs.ErrConflict)
		}
		return nil, err
	}
	ch := models.Channel{
		ID:        id,
		Name:      name,
		Kind:      kind,
		CreatedBy: creatorID,
		Workspace: workspaceID,
		CreatedTS: r.clock.Now(),
	}
	if err := r.putChannel(&ch); err != nil {
		return nil, err
	}
	if workspaceID != models.WorkspaceNone {
		index.Apply(r.st, index.NewPlan("channel").Put(keys.WorkspaceChannel(workspaceID, id), []byte(id)))
	}
	logger.Info("channel_created", "channel", id, "name", name, "kind", string(kind))
	if err := r.AddMember(ctx, id, creatorID); err != nil {
		// record exists either way; membership is best-effort (no rollback)
		logger.Warn("creator_membership_failed", "channel", id, "user", creatorID, "error", err)
	}
	return &ch, nil
}

func (r *Repo) createDM(ctx context.Context, creatorID, otherUserID, workspaceID string) (*models.Channel, error) {
	if otherUserID == "" {
		return nil, errs.Invalid("other_user", "required for dm channels")
	}
	if err := keys.ValidID(otherUserID); err != nil {
		return nil, err
	}
	if ok, err := r.users.Exists(ctx, otherUserID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("user %s: %w", otherUserID, errs.ErrNotFound)
	}

	name := keys.DMName(creatorID, otherUserID)
	nameKey := keys.ChannelName(string(models.ChannelDirect), name)

	// lookup-then-create; not atomic against a concurrent identical request
	if existing, err := r.byNameKey(nameKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	id := r.ids.NewID(ident.PrefixChannel)
	if err := r.st.PutIfAbsent(nameKey, []byte(id)); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			// lost the creation race; converge on the winner's channel
			return r.byNameKey(nameKey)
		}
		return nil, err
	}
	ch := models.Channel{
		ID:        id,
		Name:      name,
		Kind:      models.ChannelDirect,
		CreatedBy: creatorID,
		Workspace: workspaceID,
		CreatedTS: r.clock.Now(),
	}
	if err := r.putChannel(&ch); err != nil {
		return nil, err
	}
	if workspaceID != models.WorkspaceNone {
		index.Apply(r.st, index.NewPlan("channel").Put(keys.WorkspaceChannel(workspaceID, id), []byte(id)))
	}
	logger.Info("dm_channel_created", "channel", id, "name", name)
	for _, uid := range []string{creatorID, otherUserID} {
		if err := r.AddMember(ctx, id, uid); err != nil {
			logger.Warn("dm_membership_failed", "channel", id, "user", uid, "error", err)
		}
	}
	return &ch, nil
}

// EnsureDefault creates the default channel once; subsequent calls return
// the existing one. The record is attributed to the system user and skips
// the creator-existence check.
func (r *Repo) EnsureDefault(ctx context.Context) (*models.Channel, error) {
	nameKey := keys.ChannelName(string(models.ChannelPublic), r.defaultName)
	if existing, err := r.byNameKey(nameKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}
	id := r.ids.NewID(ident.PrefixChannel)
	if err := r.st.PutIfAbsent(nameKey, []byte(id)); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return r.byNameKey(nameKey)
		}
		return nil, err
	}
	ch := models.Channel{
		ID:        id,
		Name:      r.defaultName,
		Kind:      models.ChannelPublic,
		CreatedBy: SystemUser,
		Workspace: models.WorkspaceNone,
		CreatedTS: r.clock.Now(),
	}
	if err := r.putChannel(&ch); err != nil {
		return nil, err
	}
	logger.Info("default_channel_created", "channel", id, "name", r.defaultName)
	return &ch, nil
}

// Get returns the channel or (nil, nil) when absent.
func (r *Repo) Get(ctx context.Context, id string) (*models.Channel, error) {
	v, err := r.st.Get(keys.Channel(id))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ch models.Channel
	if err := json.Unmarshal(v, &ch); err != nil {
		return nil, errs.Unavailable("unmarshal_channel", err)
	}
	return &ch, nil
}

// FindDM returns the direct-message channel for the pair, in either
// argument order, or (nil, nil) when none exists.
func (r *Repo) FindDM(ctx context.Context, userA, userB string) (*models.Channel, error) {
	name := keys.DMName(userA, userB)
	return r.byNameKey(keys.ChannelName(string(models.ChannelDirect), name))
}

// AddMember writes the membership record with the watermark initialized to
// the join time. Duplicate membership is a conflict; a missing channel or
// user is not found.
func (r *Repo) AddMember(ctx context.Context, channelID, userID string) error {
	if err := keys.ValidID(channelID); err != nil {
		return err
	}
	if err := keys.ValidID(userID); err != nil {
		return err
	}
	ch, err := r.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return fmt.Errorf("channel %s: %w", channelID, errs.ErrNotFound)
	}
	if userID != SystemUser {
		if ok, err := r.users.Exists(ctx, userID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("user %s: %w", userID, errs.ErrNotFound)
		}
	}

	now := r.clock.Now()
	m := models.Membership{ChannelID: channelID, UserID: userID, JoinedTS: now, LastReadTS: now}
	b, err := json.Marshal(m)
	if err != nil {
		return errs.Unavailable("marshal_membership", err)
	}
	if err := r.st.PutIfAbsent(keys.Member(channelID, userID), b); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return fmt.Errorf("already a member: %w", errs.ErrConflict)
		}
		return err
	}
	plan := index.NewPlan("membership").Put(keys.MemberOf(userID, channelID), []byte(channelID))
	index.Apply(r.st, plan)
	logger.Info("member_added", "channel", channelID, "user", userID)
	return nil
}

// RemoveMember deletes the membership edge; absent membership is not
// found. Whether removal from the default channel is allowed is policy the
// caller decides with IsDefault; the repository does not hardcode it.
func (r *Repo) RemoveMember(ctx context.Context, channelID, userID string) error {
	if _, err := r.st.Get(keys.Member(channelID, userID)); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("membership %s/%s: %w", channelID, userID, errs.ErrNotFound)
		}
		return err
	}
	if err := r.st.Delete(keys.Member(channelID, userID)); err != nil {
		return err
	}
	plan := index.NewPlan("membership").Delete(keys.MemberOf(userID, channelID))
	index.Apply(r.st, plan)
	logger.Info("member_removed", "channel", channelID, "user", userID)
	return nil
}

// Membership loads one membership record or (nil, nil) when absent.
func (r *Repo) Membership(ctx context.Context, channelID, userID string) (*models.Membership, error) {
	v, err := r.st.Get(keys.Member(channelID, userID))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var m models.Membership
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, errs.Unavailable("unmarshal_membership", err)
	}
	return &m, nil
}

// IsMember reports membership. Every user is implicitly a member of the
// default channel.
func (r *Repo) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	m, err := r.Membership(ctx, channelID, userID)
	if err != nil {
		return false, err
	}
	if m != nil {
		return true, nil
	}
	ch, err := r.Get(ctx, channelID)
	if err != nil {
		return false, err
	}
	return r.IsDefault(ch), nil
}

// Members returns all membership records of a channel in join order of the
// member scan (keyed by user id).
func (r *Repo) Members(ctx context.Context, channelID string) ([]models.Membership, error) {
	kvs, err := r.st.QueryPrefix(keys.MemberPrefix(channelID), store.QueryOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]models.Membership, 0, len(kvs))
	for _, kv := range kvs {
		var m models.Membership
		if err := json.Unmarshal(kv.Value, &m); err != nil {
			logger.Warn("membership_record_corrupt", "key", kv.Key, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// MarkRead overwrites the member's watermark to now. An implicit member of
// the default channel gets the membership materialized on first mark so the
// watermark has a record to live on. Messages created concurrently with the
// mark keep racing the watermark; the window is accepted, not closed.
func (r *Repo) MarkRead(ctx context.Context, channelID, userID string) error {
	m, err := r.Membership(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		ch, err := r.Get(ctx, channelID)
		if err != nil {
			return err
		}
		if !r.IsDefault(ch) {
			return fmt.Errorf("membership %s/%s: %w", channelID, userID, errs.ErrNotFound)
		}
		m = &models.Membership{ChannelID: channelID, UserID: userID, JoinedTS: r.clock.Now()}
		index.Apply(r.st, index.NewPlan("membership").Put(keys.MemberOf(userID, channelID), []byte(channelID)))
	}
	m.LastReadTS = r.clock.Now()
	b, err := json.Marshal(m)
	if err != nil {
		return errs.Unavailable("marshal_membership", err)
	}
	return r.st.Put(keys.Member(channelID, userID), b)
}

// UnreadCount counts channel messages strictly newer than the member's
// watermark with a bounded range scan on the channel-message index. A user
// without a membership record sees the whole default channel as unread and
// gets not found anywhere else.
func (r *Repo) UnreadCount(ctx context.Context, channelID, userID string) (int, error) {
	watermark := int64(0)
	m, err := r.Membership(ctx, channelID, userID)
	if err != nil {
		return 0, err
	}
	if m == nil {
		ch, err := r.Get(ctx, channelID)
		if err != nil {
			return 0, err
		}
		if !r.IsDefault(ch) {
			return 0, fmt.Errorf("membership %s/%s: %w", channelID, userID, errs.ErrNotFound)
		}
	} else {
		watermark = m.LastReadTS
	}
	prefix := keys.ChannelMessagePrefix(channelID)
	after := ""
	if watermark > 0 {
		after = keys.ChannelMessageAfter(channelID, watermark)
	}
	return r.st.CountPrefix(prefix, after)
}

// ListForUser returns the union of the default channel and every channel
// the user has a membership edge for, each enriched with its member list
// and the caller's unread count.
func (r *Repo) ListForUser(ctx context.Context, userID string) ([]models.ChannelView, error) {
	ids := []string{}
	seen := map[string]bool{}

	if def, err := r.byNameKey(keys.ChannelName(string(models.ChannelPublic), r.defaultName)); err != nil {
		return nil, err
	} else if def != nil {
		ids = append(ids, def.ID)
		seen[def.ID] = true
	}

	kvs, err := r.st.QueryPrefix(keys.MemberOfPrefix(userID), store.QueryOptions{})
	if err != nil {
		return nil, err
	}
	for _, kv := range kvs {
		id := string(kv.Value)
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}

	out := make([]models.ChannelView, 0, len(ids))
	for _, id := range ids {
		ch, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ch == nil {
			// projection pointing at a record that never landed; skip it
			logger.Warn("membership_orphaned", "channel", id, "user", userID)
			continue
		}
		members, err := r.Members(ctx, id)
		if err != nil {
			return nil, err
		}
		memberIDs := make([]string, 0, len(members))
		for _, m := range members {
			memberIDs = append(memberIDs, m.UserID)
		}
		unread, err := r.UnreadCount(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.ChannelView{Channel: *ch, Members: memberIDs, UnreadCount: unread})
	}
	return out, nil
}

// ListAvailable returns all public channels the user has not joined. Two
// index scans and an in-memory set difference: O(public channels), a
// correctness-over-performance choice at chat scale.
func (r *Repo) ListAvailable(ctx context.Context, userID string) ([]models.Channel, error) {
	joined := map[string]bool{}
	kvs, err := r.st.QueryPrefix(keys.MemberOfPrefix(userID), store.QueryOptions{})
	if err != nil {
		return nil, err
	}
	for _, kv := range kvs {
		joined[string(kv.Value)] = true
	}

	pubs, err := r.st.QueryPrefix("channelname:"+string(models.ChannelPublic)+":", store.QueryOptions{})
	if err != nil {
		return nil, err
	}
	var out []models.Channel
	for _, kv := range pubs {
		id := string(kv.Value)
		if joined[id] {
			continue
		}
		ch, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ch != nil {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (r *Repo) putChannel(ch *models.Channel) error {
	b, err := json.Marshal(ch)
	if err != nil {
		return errs.Unavailable("marshal_channel", err)
	}
	return r.st.Put(keys.Channel(ch.ID), b)
}

func (r *Repo) byNameKey(nameKey string) (*models.Channel, error) {
	id, err := r.st.Get(nameKey)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	v, err := r.st.Get(keys.Channel(string(id)))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ch models.Channel
	if err := json.Unmarshal(v, &ch); err != nil {
		return nil, errs.Unavailable("unmarshal_channel", err)
	}
	return &ch, nil
}
