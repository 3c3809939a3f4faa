package store

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanwatch/chanwatch/internal/event"
	"github.com/chanwatch/chanwatch/internal/testutil"
)

func populated(t *testing.T, s *Store, clock *testutil.Clock) {
	t.Helper()
	require.NoError(t, s.Submit(event.Event{Type: event.TypeCreate, Guild: 1, Channel: 10}))
	require.NoError(t, s.Submit(userState(1, 10, 100, event.FlagDeafenGuild)))
	require.NoError(t, s.Submit(join(1, 10, 100)))
	clock.Advance(time.Second)
	require.NoError(t, s.Submit(comment(1, 10, 100, 5000, "hello")))
	clock.Advance(time.Second)
	require.NoError(t, s.Submit(comment(1, 10, 101, 5001, "kept")))
	s.DeleteComment(5000)
	s.SetUserName(100, "alice#1234")
	s.SetChannelName(10, "standup")
	s.SetChannelGuild(10, 1)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	s, clock := newTestStore(t)
	populated(t, s, clock)

	require.NoError(t, s.Save())
	assert.False(t, s.Dirty())

	fresh := New(s.path, time.Minute, nil, WithClock(clock.Now))
	require.NoError(t, fresh.Load())

	// Identical log, tombstones included, and identical derived caches.
	wantLog, err := json.Marshal(s.events)
	require.NoError(t, err)
	gotLog, err := json.Marshal(fresh.events)
	require.NoError(t, err)
	assert.JSONEq(t, string(wantLog), string(gotLog))
	assert.Nil(t, fresh.events[3], "tombstone survives the round trip")

	want, err := json.Marshal(s.makeSnapshot())
	require.NoError(t, err)
	got, err := json.Marshal(fresh.makeSnapshot())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
	assert.Equal(t, s.cacheCursor, fresh.cacheCursor)
	assert.False(t, fresh.Dirty())
}

func TestLoad_MissingFileIsEmptyStore(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Load())
	assert.Empty(t, s.events)
	assert.Equal(t, 0, s.cacheCursor)
}

func TestLoad_MalformedFileFails(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(s.path, []byte("{ not json"), 0o644))
	assert.Error(t, s.Load())
}

func TestSave_KeepsOldBackup(t *testing.T) {
	s, clock := newTestStore(t)
	require.NoError(t, s.Submit(join(1, 10, 100)))
	require.NoError(t, s.Save())

	first, err := os.ReadFile(s.path)
	require.NoError(t, err)

	clock.Advance(time.Second)
	require.NoError(t, s.Submit(leave(1, 10, 100)))
	require.NoError(t, s.Save())

	backup, err := os.ReadFile(s.path + ".old")
	require.NoError(t, err)
	assert.Equal(t, first, backup, ".old holds the previous snapshot")

	current, err := os.ReadFile(s.path)
	require.NoError(t, err)
	assert.NotEqual(t, first, current)
}

func TestSave_FlushesPendingEdit(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Submit(comment(1, 10, 100, 5000, "draft")))
	require.NoError(t, s.Save())

	s.EditComment(5000, "final")
	assert.True(t, s.Dirty(), "in-place edit marks the store dirty")
	require.NoError(t, s.Save())

	fresh := New(s.path, time.Minute, nil)
	require.NoError(t, fresh.Load())
	assert.Equal(t, "final", fresh.events[0].Content)
}

func TestDump_IsReadOnly(t *testing.T) {
	s, clock := newTestStore(t)
	populated(t, s, clock)

	before, err := json.Marshal(s.makeSnapshot())
	require.NoError(t, err)

	dump, err := s.Dump()
	require.NoError(t, err)
	assert.Contains(t, string(dump), `"events"`)
	assert.Contains(t, string(dump), `"cache_eventc"`)

	after, err := json.Marshal(s.makeSnapshot())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Dump never touches the file.
	_, statErr := os.Stat(s.path)
	assert.True(t, os.IsNotExist(statErr))
}
