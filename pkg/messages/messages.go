// Package messages persists message records, thread linkage, reactions and
// the token index entries that feed search. A message create is one
// logical operation spanning several keys (record, listing projection,
// token entries) applied item-by-item; content edits are the only writes
// gated by the version counter.
package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chatdb/pkg/channels"
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

type Repo struct {
	st       *store.Store
	users    *users.Repo
	channels *channels.Repo
	ids      ident.Generator
	clock    ident.Clock
	rules    validation.Rules
}

func New(st *store.Store, ur *users.Repo, cr *channels.Repo, ids ident.Generator, clock ident.Clock, rules validation.Rules) *Repo {
	return &Repo{st: st, users: ur, channels: cr, ids: ids, clock: clock, rules: rules}
}

// Tokenize lowercases content and splits it on whitespace, returning the
// distinct tokens in first-seen order. No stemming, no stopwords.
func Tokenize(content string) []string {
	fields := strings.Fields(strings.ToLower(content))
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Create validates channel and author, writes the message record with
// version 1 and then its projections: the channel listing entry for a
// top-level message or the thread entry for a reply, plus one token index
// entry per distinct content token. Projection writes are best-effort; a
// partial failure leaves the record authoritative and is logged, not
// rolled back.
func (r *Repo) Create(ctx context.Context, channelID, authorID, content, parentID string, attachments []string) (*models.Message, error) {
	if err := keys.ValidID(channelID); err != nil {
		return nil, err
	}
	if err := keys.ValidID(authorID); err != nil {
		return nil, err
	}
	if parentID != "" {
		if err := keys.ValidID(parentID); err != nil {
			return nil, err
		}
	}
	if err := r.rules.Content(content); err != nil {
		return nil, err
	}
	ch, err := r.channels.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("channel %s: %w", channelID, errs.ErrNotFound)
	}
	if ok, err := r.users.Exists(ctx, authorID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("author %s: %w", authorID, errs.ErrNotFound)
	}
	if parentID != "" {
		parent, err := r.Get(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, fmt.Errorf("thread parent %s: %w", parentID, errs.ErrNotFound)
		}
		if parent.Channel != channelID {
			return nil, errs.Invalid("parent", "thread parent belongs to another channel")
		}
	}

	m := models.Message{
		ID:          r.ids.NewID(ident.PrefixMessage),
		Channel:     channelID,
		Author:      authorID,
		Content:     content,
		TS:          r.clock.Now(),
		Parent:      parentID,
		Attachments: attachments,
		Version:     1,
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errs.Unavailable("marshal_message", err)
	}
	if err := r.st.Put(keys.Message(m.ID), b); err != nil {
		return nil, err
	}

	plan := index.NewPlan("message")
	if parentID == "" {
		plan.Put(keys.ChannelMessage(channelID, m.TS, m.ID), []byte(m.ID))
	} else {
		plan.Put(keys.ThreadMessage(parentID, m.TS, m.ID), []byte(m.ID))
	}
	for _, tok := range Tokenize(content) {
		entry := models.WordIndexEntry{Token: tok, MessageID: m.ID, ChannelID: channelID, TS: m.TS}
		eb, err := json.Marshal(entry)
		if err != nil {
			logger.Warn("word_entry_marshal_failed", "token", tok, "msg", m.ID, "error", err)
			continue
		}
		plan.Put(keys.Word(tok, m.TS, m.ID), eb)
	}
	if failed := index.Apply(r.st, plan); failed > 0 {
		logger.Warn("message_projections_partial", "msg", m.ID, "failed", failed)
	}
	logger.Info("message_created", "msg", m.ID, "channel", channelID, "thread", parentID != "")
	return &m, nil
}

// Get returns the message or (nil, nil) when absent.
func (r *Repo) Get(ctx context.Context, id string) (*models.Message, error) {
	v, err := r.st.Get(keys.Message(id))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var m models.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, errs.Unavailable("unmarshal_message", err)
	}
	return &m, nil
}

// ListChannel returns the channel's top-level messages in chronological
// ascending order. Replies never appear here; they only have thread index
// entries. before, when positive, is an exclusive upper bound on the
// creation timestamp; limit, when positive, caps the result count.
func (r *Repo) ListChannel(ctx context.Context, channelID string, before int64, limit int) ([]models.Message, error) {
	prefix := keys.ChannelMessagePrefix(channelID)
	kvs, err := r.st.QueryPrefix(prefix, store.QueryOptions{})
	if err != nil {
		return nil, err
	}
	var ids []string
	bound := ""
	if before > 0 {
		bound = prefix + keys.PadTS(before)
	}
	for _, kv := range kvs {
		if bound != "" && kv.Key >= bound {
			break
		}
		ids = append(ids, keys.TailID(kv.Key))
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return r.resolve(ids)
}

// ListThread returns a thread's replies in chronological ascending order.
// The parent message itself is not part of its own reply listing.
func (r *Repo) ListThread(ctx context.Context, parentID string) ([]models.Message, error) {
	kvs, err := r.st.QueryPrefix(keys.ThreadMessagePrefix(parentID), store.QueryOptions{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		ids = append(ids, keys.TailID(kv.Key))
	}
	return r.resolve(ids)
}

// Update replaces message content if and only if the stored version still
// equals expectedVersion. On success the prior content is appended to the
// edit history, edited-at is set and the version increments by exactly 1.
// A stale expectedVersion returns conflict and writes nothing; there is no
// retry here, the caller must re-fetch and resubmit. Authorship is the
// caller's check, not the repository's.
func (r *Repo) Update(ctx context.Context, id, newContent string, expectedVersion int64) (*models.Message, error) {
	if err := r.rules.Content(newContent); err != nil {
		return nil, err
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("message %s: %w", id, errs.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return nil, fmt.Errorf("stale version: %w", errs.ErrConflict)
	}

	now := r.clock.Now()
	next := *cur
	next.Edits = append(append([]models.Edit(nil), cur.Edits...), models.Edit{Content: cur.Content, TS: now})
	next.Content = newContent
	next.EditedTS = now
	next.Version = expectedVersion + 1

	b, err := json.Marshal(next)
	if err != nil {
		return nil, errs.Unavailable("marshal_message", err)
	}
	err = r.st.CompareAndSwap(keys.Message(id), expectedVersion, b, versionOf)
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return nil, fmt.Errorf("stale version: %w", errs.ErrConflict)
		}
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("message %s: %w", id, errs.ErrNotFound)
		}
		return nil, err
	}
	logger.Info("message_edited", "msg", id, "version", next.Version)
	// token entries for the original content are left in place on purpose:
	// edited messages stay findable by their original tokens
	return &next, nil
}

// AddReaction adds userID under token on the message's reaction map.
// Adding an already-present pair is a no-op. The read-modify-write is not
// version-gated: concurrent reaction toggles are last-writer-wins.
func (r *Repo) AddReaction(ctx context.Context, messageID, userID, token string) (*models.Reaction, error) {
	if err := r.rules.ReactionToken(token); err != nil {
		return nil, err
	}
	m, err := r.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("message %s: %w", messageID, errs.ErrNotFound)
	}
	if m.Reactions == nil {
		m.Reactions = map[string][]string{}
	}
	present := false
	for _, u := range m.Reactions[token] {
		if u == userID {
			present = true
			break
		}
	}
	if !present {
		m.Reactions[token] = append(m.Reactions[token], userID)
		if err := r.putMessage(m); err != nil {
			return nil, err
		}
	}
	return &models.Reaction{MessageID: messageID, Token: token, Users: append([]string(nil), m.Reactions[token]...)}, nil
}

// RemoveReaction removes userID from token's user set. Removing an absent
// pair is a no-op, not an error; an emptied set drops the token key.
func (r *Repo) RemoveReaction(ctx context.Context, messageID, userID, token string) (*models.Reaction, error) {
	m, err := r.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("message %s: %w", messageID, errs.ErrNotFound)
	}
	usersFor := m.Reactions[token]
	kept := usersFor[:0:0]
	for _, u := range usersFor {
		if u != userID {
			kept = append(kept, u)
		}
	}
	if len(kept) != len(usersFor) {
		if len(kept) == 0 {
			delete(m.Reactions, token)
		} else {
			m.Reactions[token] = kept
		}
		if err := r.putMessage(m); err != nil {
			return nil, err
		}
	}
	return &models.Reaction{MessageID: messageID, Token: token, Users: append([]string(nil), m.Reactions[token]...)}, nil
}

// BatchGet loads the given messages, dropping unknown ids. Search resolves
// its candidate ids through this so hits on stale tokens still return the
// current message content.
func (r *Repo) BatchGet(ctx context.Context, ids []string) ([]models.Message, error) {
	return r.resolve(ids)
}

func (r *Repo) putMessage(m *models.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return errs.Unavailable("marshal_message", err)
	}
	return r.st.Put(keys.Message(m.ID), b)
}

// resolve batch-loads message records for the given ids, dropping any the
// batch get cannot find (an index entry may race a record write).
func (r *Repo) resolve(ids []string) ([]models.Message, error) {
	ks := make([]string, 0, len(ids))
	for _, id := range ids {
		ks = append(ks, keys.Message(id))
	}
	vals, err := r.st.BatchGet(ks)
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(ids))
	for _, k := range ks {
		v, ok := vals[k]
		if !ok {
			continue
		}
		var m models.Message
		if err := json.Unmarshal(v, &m); err != nil {
			logger.Warn("message_record_corrupt", "key", k, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// versionOf extracts just the version counter from a stored message value;
// the CAS primitive uses it to evaluate its predicate.
func versionOf(b []byte) (int64, error) {
	var probe struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return 0, err
	}
	return probe.Version, nil
}
