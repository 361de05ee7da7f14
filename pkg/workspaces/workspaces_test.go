package workspaces_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"chatdb/pkg/channels"
	"chatdb/pkg/errs"
	"chatdb/pkg/ident"
	"chatdb/pkg/models"
	"chatdb/pkg/store"
	"chatdb/pkg/users"
	"chatdb/pkg/validation"
	"chatdb/pkg/workspaces"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID(prefix string) string {
	g.n++
	return fmt.Sprintf("%s-%03d", prefix, g.n)
}

type fixture struct {
	users      *users.Repo
	channels   *channels.Repo
	workspaces *workspaces.Repo

	alice *models.User
}

func setup(t *testing.T) *fixture {
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

	f := &fixture{}
	f.users = users.New(st, ids, clock, rules)
	f.channels = channels.New(st, f.users, ids, clock, rules, "general")
	f.workspaces = workspaces.New(st, ids, clock, rules)

	f.alice, err = f.users.Create(context.Background(), "alice@example.com", "alice", "", models.UserMember)
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	return f
}

func TestCreateAndLookup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ws, err := f.workspaces.Create(ctx, "acme")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := f.workspaces.Get(ctx, ws.ID)
	if err != nil || got == nil || got.Name != "acme" {
		t.Fatalf("get: %+v %v", got, err)
	}
	byName, err := f.workspaces.GetByName(ctx, "acme")
	if err != nil || byName == nil || byName.ID != ws.ID {
		t.Fatalf("get by name: %+v %v", byName, err)
	}
	missing, err := f.workspaces.Get(ctx, "w-nope")
	if err != nil || missing != nil {
		t.Fatalf("missing workspace: expected (nil, nil), got %+v %v", missing, err)
	}
}

func TestCreateNameConflict(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	if _, err := f.workspaces.Create(ctx, "acme"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := f.workspaces.Create(ctx, "acme"); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for _, n := range []string{"acme", "beta"} {
		if _, err := f.workspaces.Create(ctx, n); err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
	}
	all, err := f.workspaces.List(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("list: %d %v", len(all), err)
	}
}

func TestChannelsGroupedByWorkspace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ws, _ := f.workspaces.Create(ctx, "acme")

	inside, err := f.channels.Create(ctx, "eng", models.ChannelPublic, f.alice.ID, "", ws.ID)
	if err != nil {
		t.Fatalf("create channel in workspace: %v", err)
	}
	if _, err := f.channels.Create(ctx, "loose", models.ChannelPublic, f.alice.ID, "", ""); err != nil {
		t.Fatalf("create channel outside workspace: %v", err)
	}

	chs, err := f.workspaces.Channels(ctx, ws.ID)
	if err != nil {
		t.Fatalf("channels: %v", err)
	}
	if len(chs) != 1 || chs[0].ID != inside.ID {
		t.Fatalf("workspace channel listing: %+v", chs)
	}
	if chs[0].Workspace != ws.ID {
		t.Fatalf("channel record must carry the workspace id: %+v", chs[0])
	}

	empty, err := f.workspaces.Channels(ctx, "w-other")
	if err != nil || len(empty) != 0 {
		t.Fatalf("unknown workspace must list nothing: %+v %v", empty, err)
	}
}
