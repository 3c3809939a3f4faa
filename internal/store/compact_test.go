package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanwatch/chanwatch/internal/event"
)

func TestCompact_DropsTombstonesAndRebuilds(t *testing.T) {
	s, clock := newTestStore(t)

	require.NoError(t, s.Submit(join(1, 10, 100)))
	require.NoError(t, s.Submit(comment(1, 10, 100, 5000, "going away")))
	clock.Advance(2 * time.Minute)
	require.NoError(t, s.Submit(comment(1, 10, 100, 5001, "staying")))
	require.NoError(t, s.Submit(join(1, 10, 101)))
	s.DeleteComment(5000)

	caches := func() string {
		snap := s.makeSnapshot()
		snap.Events = nil // compare everything but the log itself
		data, err := json.Marshal(snap)
		require.NoError(t, err)
		return string(data)
	}

	wantLen := len(s.events) - 1
	before := caches()

	s.Compact()

	assert.Len(t, s.events, wantLen)
	for i, ev := range s.events {
		assert.NotNil(t, ev, "slot %d", i)
	}

	// The message index is remapped through the replay; everything else about
	// the caches must be unchanged except the cursor.
	assert.Equal(t, 1, s.messageToEvent[5001])
	assert.Equal(t, len(s.events), s.cacheCursor)

	var beforeSnap, afterSnap map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(before), &beforeSnap))
	require.NoError(t, json.Unmarshal([]byte(caches()), &afterSnap))
	for _, field := range []string{"active_users", "available_channels", "user_last_comment_time", "user_states"} {
		assert.JSONEq(t, string(beforeSnap[field]), string(afterSnap[field]), field)
	}
}

func TestCompact_EmptyLog(t *testing.T) {
	s, _ := newTestStore(t)
	s.Compact()
	assert.Empty(t, s.events)
	assert.Equal(t, 0, s.cacheCursor)
}

func TestCompact_ReplayMatchesIncrementalFold(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Submit(event.Event{Type: event.TypeCreate, Guild: 1, Channel: 10}))
	require.NoError(t, s.Submit(userState(1, 10, 100, event.FlagDeafenGuild)))
	require.NoError(t, s.Submit(join(1, 10, 100)))
	require.NoError(t, s.Submit(leave(1, 10, 100)))
	require.NoError(t, s.Submit(event.Event{Type: event.TypeDelete, Guild: 1, Channel: 10}))

	incremental, err := json.Marshal(s.makeSnapshot())
	require.NoError(t, err)

	s.Compact() // no tombstones: pure full replay

	replayed, err := json.Marshal(s.makeSnapshot())
	require.NoError(t, err)
	assert.JSONEq(t, string(incremental), string(replayed))
}
