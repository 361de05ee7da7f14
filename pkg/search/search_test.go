package search_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"chatdb/pkg/channels"
	"chatdb/pkg/errs"
	"chatdb/pkg/ident"
	"chatdb/pkg/messages"
	"chatdb/pkg/models"
	"chatdb/pkg/search"
	"chatdb/pkg/store"
	"chatdb/pkg/users"
	"chatdb/pkg/validation"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID(prefix string) string {
	g.n++
	return fmt.Sprintf("%s-%03d", prefix, g.n)
}

type fixture struct {
	channels *channels.Repo
	messages *messages.Repo
	search   *search.Index

	alice *models.User
	bob   *models.User
}

func setup(t *testing.T, resultCap int) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "db"), 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ids := &seqIDs{}
	tick := int64(0)
	clock := ident.ClockFunc(func() int64 { tick += 1000; return tick })
	rules := validation.Rules{}

	ur := users.New(st, ids, clock, rules)
	cr := channels.New(st, ur, ids, clock, rules, "general")
	mr := messages.New(st, ur, cr, ids, clock, rules)
	sx := search.New(st, mr, cr, resultCap, 0)

	ctx := context.Background()
	f := &fixture{channels: cr, messages: mr, search: sx}
	f.alice, err = ur.Create(ctx, "alice@example.com", "alice", "", models.UserMember)
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	f.bob, err = ur.Create(ctx, "bob@example.com", "bob", "", models.UserMember)
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	return f
}

func TestByTokenFiltersByMembership(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	private, err := f.channels.Create(ctx, "secret", models.ChannelPrivate, f.alice.ID, "", "")
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	if _, err := f.messages.Create(ctx, private.ID, f.alice.ID, "Hello world", "", nil); err != nil {
		t.Fatalf("create message: %v", err)
	}

	// alice is a member and finds the message, case-insensitively
	hits, err := f.search.ByToken(ctx, f.alice.ID, "HELLO")
	if err != nil || len(hits) != 1 || hits[0].Content != "Hello world" {
		t.Fatalf("member search: %+v %v", hits, err)
	}

	// bob is not a member and sees nothing
	hits, err = f.search.ByToken(ctx, f.bob.ID, "hello")
	if err != nil || len(hits) != 0 {
		t.Fatalf("non-member search must be empty: %+v %v", hits, err)
	}
}

func TestByTokenChronologicalAndCapped(t *testing.T) {
	f := setup(t, 2)
	ctx := context.Background()
	ch, _ := f.channels.Create(ctx, "random", models.ChannelPublic, f.alice.ID, "", "")
	var made []*models.Message
	for i := 0; i < 3; i++ {
		m, err := f.messages.Create(ctx, ch.ID, f.alice.ID, fmt.Sprintf("needle number %d", i), "", nil)
		if err != nil {
			t.Fatalf("create message: %v", err)
		}
		made = append(made, m)
	}
	hits, err := f.search.ByToken(ctx, f.alice.ID, "needle")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != made[0].ID || hits[1].ID != made[1].ID {
		t.Fatalf("cap/order violated: %+v", hits)
	}
}

func TestByTokenFindsRepliesAndEditedOriginals(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()
	ch, _ := f.channels.Create(ctx, "random", models.ChannelPublic, f.alice.ID, "", "")
	root, _ := f.messages.Create(ctx, ch.ID, f.alice.ID, "root post", "", nil)
	reply, err := f.messages.Create(ctx, ch.ID, f.alice.ID, "buried needle", root.ID, nil)
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}

	hits, err := f.search.ByToken(ctx, f.alice.ID, "needle")
	if err != nil || len(hits) != 1 || hits[0].ID != reply.ID {
		t.Fatalf("replies must be searchable: %+v %v", hits, err)
	}

	// editing away the token still finds the message under the old token,
	// with the current content
	if _, err := f.messages.Update(ctx, reply.ID, "replaced entirely", 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	hits, err = f.search.ByToken(ctx, f.alice.ID, "needle")
	if err != nil || len(hits) != 1 || hits[0].Content != "replaced entirely" {
		t.Fatalf("stale token hit must resolve to current content: %+v %v", hits, err)
	}
}

func TestByTokenColonTokensDoNotCollide(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()
	ch, _ := f.channels.Create(ctx, "random", models.ChannelPublic, f.alice.ID, "", "")
	if _, err := f.messages.Create(ctx, ch.ID, f.alice.ID, "deploy:prod finished", "", nil); err != nil {
		t.Fatalf("create message: %v", err)
	}

	// "deploy" shares the key-space prefix of "deploy:prod" but is not a
	// token of the message
	hits, err := f.search.ByToken(ctx, f.alice.ID, "deploy")
	if err != nil || len(hits) != 0 {
		t.Fatalf("prefix of a longer token must not match: %+v %v", hits, err)
	}

	hits, err = f.search.ByToken(ctx, f.alice.ID, "deploy:prod")
	if err != nil || len(hits) != 1 || hits[0].Content != "deploy:prod finished" {
		t.Fatalf("exact colon-bearing token: %+v %v", hits, err)
	}
	hits, err = f.search.ByToken(ctx, f.alice.ID, "finished")
	if err != nil || len(hits) != 1 {
		t.Fatalf("plain token of the same message: %+v %v", hits, err)
	}
}

func TestByTokenInput(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()
	if _, err := f.search.ByToken(ctx, f.alice.ID, ""); !errs.IsValidation(err) {
		t.Fatalf("empty token: expected validation error, got %v", err)
	}
	if _, err := f.search.ByToken(ctx, f.alice.ID, "two words"); !errs.IsValidation(err) {
		t.Fatalf("multi-word query: expected validation error, got %v", err)
	}
	hits, err := f.search.ByToken(ctx, f.alice.ID, "absent")
	if err != nil || len(hits) != 0 {
		t.Fatalf("no-hit search: %+v %v", hits, err)
	}
}
