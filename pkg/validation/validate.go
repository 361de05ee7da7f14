// Package validation checks repository inputs before any store call.
// Violations return *errs.ValidationError so callers can distinguish bad
// input from storage failures.
package validation

import (
	"strings"

	"chatdb/pkg/errs"
	"chatdb/pkg/models"
)

// Rules carries the configured length ceilings. Zero values fall back to
// permissive defaults so a zero Rules is usable in tests.
type Rules struct {
	MaxContentLen int
	MaxNameLen    int
}

func (r Rules) maxContent() int {
	if r.MaxContentLen <= 0 {
		return 4000
	}
	return r.MaxContentLen
}

func (r Rules) maxName() int {
	if r.MaxNameLen <= 0 {
		return 80
	}
	return r.MaxNameLen
}

// Email checks the minimal shape local@domain. Full RFC validation is the
// excluded auth layer's problem; this only keeps junk out of the email
// projection key.
func (r Rules) Email(email string) error {
	if email == "" {
		return errs.Invalid("email", "empty")
	}
	if len(email) > r.maxName() {
		return errs.Invalid("email", "too long")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return errs.Invalid("email", "malformed")
	}
	if strings.ContainsAny(email, ": \t\n") {
		return errs.Invalid("email", "contains reserved characters")
	}
	return nil
}

// DisplayName checks a user display name.
func (r Rules) DisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errs.Invalid("name", "empty")
	}
	if len(name) > r.maxName() {
		return errs.Invalid("name", "too long")
	}
	if strings.ContainsAny(name, ":\t\n") {
		return errs.Invalid("name", "contains reserved characters")
	}
	return nil
}

// ChannelName checks a channel name. DM channels use derived names that
// include ':' and bypass this check.
func (r Rules) ChannelName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errs.Invalid("name", "empty")
	}
	if len(name) > r.maxName() {
		return errs.Invalid("name", "too long")
	}
	if strings.ContainsAny(name, ": \t\n") {
		return errs.Invalid("name", "contains reserved characters")
	}
	return nil
}

// Content checks message content.
func (r Rules) Content(content string) error {
	if content == "" {
		return errs.Invalid("content", "empty")
	}
	if len(content) > r.maxContent() {
		return errs.Invalid("content", "too long")
	}
	return nil
}

// ReactionToken checks a reaction token.
func (r Rules) ReactionToken(token string) error {
	if token == "" {
		return errs.Invalid("reaction", "empty")
	}
	if len(token) > 64 {
		return errs.Invalid("reaction", "too long")
	}
	return nil
}

// UserKind checks the user kind enum.
func UserKind(k models.UserKind) error {
	switch k {
	case models.UserMember, models.UserBot:
		return nil
	}
	return errs.Invalid("kind", "unknown user kind")
}

// Status checks the presence status enum.
func Status(s models.Status) error {
	switch s {
	case models.StatusOnline, models.StatusAway, models.StatusBusy, models.StatusOffline:
		return nil
	}
	return errs.Invalid("status", "unknown status")
}

// ChannelKind checks the channel kind enum.
func ChannelKind(k models.ChannelKind) error {
	switch k {
	case models.ChannelPublic, models.ChannelPrivate, models.ChannelDirect, models.ChannelBot:
		return nil
	}
	return errs.Invalid("kind", "unknown channel kind")
}
