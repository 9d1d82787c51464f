package presence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackerIdempotent(t *testing.T) {
	tr := NewTracker()

	tr.SetOnline("alice")
	tr.SetOnline("alice")
	require.True(t, tr.Online("alice"))
	require.ElementsMatch(t, []string{"alice"}, tr.Snapshot())

	// Removing an absent user is a no-op.
	tr.SetOffline("bob")
	require.False(t, tr.Online("bob"))

	tr.SetOffline("alice")
	tr.SetOffline("alice")
	require.False(t, tr.Online("alice"))
	require.Empty(t, tr.Snapshot())
}

func TestTrackerSeedReplaces(t *testing.T) {
	tr := NewTracker()
	tr.SetOnline("stale")

	tr.Seed([]string{"alice", "bob"})
	require.False(t, tr.Online("stale"))
	require.True(t, tr.Online("alice"))
	require.True(t, tr.Online("bob"))
	require.ElementsMatch(t, []string{"alice", "bob"}, tr.Snapshot())
}
