package validation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"chatdb/pkg/errs"
	"chatdb/pkg/models"
	"chatdb/pkg/validation"
)

func TestEmail(t *testing.T) {
	r := validation.Rules{}
	assert.NoError(t, r.Email("a@b.c"))
	for _, bad := range []string{"", "plain", "@x", "x@", "a@b@c", "a b@c", "a:b@c"} {
		err := r.Email(bad)
		assert.True(t, errs.IsValidation(err), "email %q must fail", bad)
	}
	long := strings.Repeat("a", 90) + "@x"
	assert.Error(t, r.Email(long))
}

func TestNames(t *testing.T) {
	r := validation.Rules{MaxNameLen: 10}
	assert.NoError(t, r.DisplayName("bob"))
	assert.Error(t, r.DisplayName(""))
	assert.Error(t, r.DisplayName("   "))
	assert.Error(t, r.DisplayName("a:b"))
	assert.Error(t, r.DisplayName("morethantenchars"))
	// display names may contain spaces, channel names may not
	assert.NoError(t, r.DisplayName("bob jones"))
	assert.Error(t, r.ChannelName("bob jones"))
	assert.NoError(t, r.ChannelName("general"))
}

func TestContent(t *testing.T) {
	r := validation.Rules{MaxContentLen: 8}
	assert.NoError(t, r.Content("short"))
	assert.Error(t, r.Content(""))
	assert.Error(t, r.Content("way too long here"))
	// zero rules fall back to permissive defaults
	assert.NoError(t, validation.Rules{}.Content(strings.Repeat("x", 4000)))
	assert.Error(t, validation.Rules{}.Content(strings.Repeat("x", 4001)))
}

func TestEnums(t *testing.T) {
	assert.NoError(t, validation.UserKind(models.UserMember))
	assert.NoError(t, validation.UserKind(models.UserBot))
	assert.Error(t, validation.UserKind(models.UserKind("alien")))

	for _, s := range []models.Status{models.StatusOnline, models.StatusAway, models.StatusBusy, models.StatusOffline} {
		assert.NoError(t, validation.Status(s))
	}
	assert.Error(t, validation.Status(models.Status("sleeping")))

	for _, k := range []models.ChannelKind{models.ChannelPublic, models.ChannelPrivate, models.ChannelDirect, models.ChannelBot} {
		assert.NoError(t, validation.ChannelKind(k))
	}
	assert.Error(t, validation.ChannelKind(models.ChannelKind("party")))
}
