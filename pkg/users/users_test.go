package users_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"chatdb/pkg/errs"
	"chatdb/pkg/ident"
	"chatdb/pkg/models"
	"chatdb/pkg/store"
	"chatdb/pkg/users"
	"chatdb/pkg/validation"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID(prefix string) string {
	g.n++
	return fmt.Sprintf("%s-%03d", prefix, g.n)
}

func newRepo(t *testing.T) *users.Repo {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "db"), 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	tick := int64(0)
	clock := ident.ClockFunc(func() int64 { tick += 1000; return tick })
	return users.New(st, &seqIDs{}, clock, validation.Rules{})
}

func TestCreateAndLookup(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	u, err := r.Create(ctx, "alice@example.com", "alice", "hash", models.UserMember)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Status != models.StatusOnline {
		t.Fatalf("new user must start online, got %s", u.Status)
	}
	if u.LastActiveTS == 0 || u.CreatedTS != u.LastActiveTS {
		t.Fatalf("timestamps not set on create: %+v", u)
	}

	byID, err := r.GetByID(ctx, u.ID)
	if err != nil || byID == nil || byID.Email != "alice@example.com" {
		t.Fatalf("get by id: %+v %v", byID, err)
	}
	byEmail, err := r.GetByEmail(ctx, "alice@example.com")
	if err != nil || byEmail == nil || byEmail.ID != u.ID {
		t.Fatalf("get by email: %+v %v", byEmail, err)
	}
	byName, err := r.GetByName(ctx, "alice")
	if err != nil || byName == nil || byName.ID != u.ID {
		t.Fatalf("get by name: %+v %v", byName, err)
	}
}

func TestLookupMissingIsNil(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	for name, got := range map[string]func() (*models.User, error){
		"id":    func() (*models.User, error) { return r.GetByID(ctx, "u-nope") },
		"email": func() (*models.User, error) { return r.GetByEmail(ctx, "nope@example.com") },
		"name":  func() (*models.User, error) { return r.GetByName(ctx, "nope") },
	} {
		u, err := got()
		if err != nil || u != nil {
			t.Fatalf("%s lookup: expected (nil, nil), got %+v %v", name, u, err)
		}
	}
}

func TestDuplicateEmailConflicts(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	if _, err := r.Create(ctx, "a@example.com", "a", "", models.UserMember); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := r.Create(ctx, "a@example.com", "other", "", models.UserMember)
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate email, got %v", err)
	}
}

func TestDuplicateNameReleasesEmailClaim(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	if _, err := r.Create(ctx, "a@example.com", "taken", "", models.UserMember); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := r.Create(ctx, "b@example.com", "taken", "", models.UserMember); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate name, got %v", err)
	}
	// the losing create must not leave b@example.com claimed
	if _, err := r.Create(ctx, "b@example.com", "fresh", "", models.UserMember); err != nil {
		t.Fatalf("email should be reusable after name conflict: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	cases := []struct{ email, name string }{
		{"", "a"},
		{"noat.example.com", "a"},
		{"@example.com", "a"},
		{"a@", "a"},
		{"a@b@c", "a"},
		{"ok@example.com", ""},
		{"ok@example.com", "   "},
		{"ok@example.com", "has:colon"},
	}
	for _, c := range cases {
		if _, err := r.Create(ctx, c.email, c.name, "", models.UserMember); !errs.IsValidation(err) {
			t.Fatalf("email=%q name=%q: expected validation error, got %v", c.email, c.name, err)
		}
	}
	if _, err := r.Create(ctx, "ok@example.com", "ok", "", models.UserKind("alien")); !errs.IsValidation(err) {
		t.Fatalf("expected validation error on unknown kind, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	u, err := r.Create(ctx, "a@example.com", "a", "", models.UserMember)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.UpdateStatus(ctx, u.ID, models.StatusAway); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := r.GetByID(ctx, u.ID)
	if got.Status != models.StatusAway {
		t.Fatalf("status not persisted: %s", got.Status)
	}
	if got.LastActiveTS <= u.LastActiveTS {
		t.Fatalf("last-active must advance: %d -> %d", u.LastActiveTS, got.LastActiveTS)
	}
	if err := r.UpdateStatus(ctx, "u-nope", models.StatusAway); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.UpdateStatus(ctx, u.ID, models.Status("sleeping")); !errs.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreatePersona(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	p, err := r.CreatePersona(ctx, "bot@example.com", "helper", "support", "answers questions")
	if err != nil {
		t.Fatalf("create persona: %v", err)
	}
	got, _ := r.GetByID(ctx, p.ID)
	if got.Kind != models.UserBot || got.Role != "support" || got.Bio != "answers questions" {
		t.Fatalf("persona fields not persisted: %+v", got)
	}
	if got.PasswordHash != "" {
		t.Fatalf("persona must carry no credential")
	}
}

func TestBatchGetPreservesOrderDropsUnknown(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	a, _ := r.Create(ctx, "a@example.com", "a", "", models.UserMember)
	b, _ := r.Create(ctx, "b@example.com", "b", "", models.UserMember)
	c, _ := r.Create(ctx, "c@example.com", "c", "", models.UserMember)

	got, err := r.BatchGet(ctx, []string{c.ID, "u-nope", a.ID, b.ID})
	if err != nil {
		t.Fatalf("batch get: %v", err)
	}
	if len(got) != 3 || got[0].ID != c.ID || got[1].ID != a.ID || got[2].ID != b.ID {
		t.Fatalf("wrong order or count: %+v", got)
	}
}
