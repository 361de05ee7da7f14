package keys_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chatdb/pkg/keys"
)

func TestPadTSOrdering(t *testing.T) {
	cases := []struct{ a, b int64 }{
		{0, 1},
		{999, 1000},
		{1_000_000_000, 1_000_000_001},
		{1, 1 << 60},
	}
	for _, c := range cases {
		require.Less(t, keys.PadTS(c.a), keys.PadTS(c.b), "PadTS(%d) must sort before PadTS(%d)", c.a, c.b)
	}
	require.Len(t, keys.PadTS(0), 20)
	require.Len(t, keys.PadTS(1<<62), 20)
}

func TestPadTSNegativeClampsToZero(t *testing.T) {
	require.Equal(t, keys.PadTS(0), keys.PadTS(-5))
}

func TestValidID(t *testing.T) {
	require.NoError(t, keys.ValidID("u-123"))
	require.Error(t, keys.ValidID(""))
	require.Error(t, keys.ValidID("a:b"))
	require.Error(t, keys.ValidID("a b"))
	require.Error(t, keys.ValidID("a\nb"))
}

func TestDMNameSymmetric(t *testing.T) {
	require.Equal(t, keys.DMName("u-1", "u-2"), keys.DMName("u-2", "u-1"))
	require.Equal(t, "dm:u-1:u-2", keys.DMName("u-2", "u-1"))
}

func TestChannelMessageAfterExcludesWatermark(t *testing.T) {
	ts := int64(5000)
	at := keys.ChannelMessage("c-1", ts, "m-1")
	later := keys.ChannelMessage("c-1", ts+1, "m-2")
	bound := keys.ChannelMessageAfter("c-1", ts)
	// a message at exactly the watermark sorts before the bound, a later
	// one sorts after: strictly-greater-than semantics
	require.Less(t, at, bound)
	require.Greater(t, later, bound)
}

func TestTailID(t *testing.T) {
	require.Equal(t, "m-9", keys.TailID(keys.ChannelMessage("c-1", 42, "m-9")))
	require.Equal(t, "", keys.TailID("no-separator"))
	require.Equal(t, "", keys.TailID("trailing:"))
}

func TestUserEmailLowercased(t *testing.T) {
	require.Equal(t, keys.UserEmail("Bob@Example.COM"), keys.UserEmail("bob@example.com"))
}
