// Package store owns the append-only activity log, the caches derived from
// it, the dedup/throttle write policies, and crash-safe persistence.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chanwatch/chanwatch/internal/event"
)

// ErrThrottled is returned by Submit when a comment arrives before the
// author's cooldown has elapsed. It is an expected outcome, not a fault;
// callers branch on it with errors.Is to surface a "try again later" signal.
var ErrThrottled = errors.New("comment throttled")

// Store is the single-writer event store. One instance is created per
// process, loaded at startup, and passed by handle to every collaborator.
//
// A single mutex guards the log, the derived caches, and every read used for
// an ingestion decision. Compound operations that must observe caches and
// submit corrective events atomically go through Reconcile. The meeting
// reconstructor deliberately bypasses the lock via Events (see there).
type Store struct {
	mu       sync.Mutex
	log      *zap.Logger
	now      func() time.Time
	path     string
	cooldown time.Duration

	// The log. A nil slot is a tombstone for a logically-deleted event;
	// tombstones keep every other event's positional index valid.
	events []*event.Event

	// Derived caches, rebuildable from the log, never independently
	// authoritative. cacheCursor is the index of the first log entry not yet
	// folded into them.
	activeUsers       map[int64]map[int64]event.IDSet
	availableChannels map[int64]event.IDSet
	messageToEvent    map[int64]int
	lastCommentTime   map[int64]time.Time
	userStates        map[int64]event.FlagSet
	cacheCursor       int

	// Display-name side tables, serviced by attribute scans. Informational
	// only: used for audit lines and report headers, covered by no invariant.
	// Guarded by nameMu alone so report generation resolving names never
	// waits behind mu. Lock ordering where both are held: mu, then nameMu.
	nameMu        sync.Mutex
	channelNames  map[int64]string
	userNames     map[int64]string
	channelGuilds map[int64]int64
	namesDirty    bool

	dirty bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock used to stamp events. For tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store persisting to path, rejecting comments that
// arrive within cooldown of the same author's previous one.
func New(path string, cooldown time.Duration, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		log:      logger,
		now:      time.Now,
		path:     path,
		cooldown: cooldown,
	}
	s.resetCaches()
	s.channelNames = map[int64]string{}
	s.userNames = map[int64]string{}
	s.channelGuilds = map[int64]int64{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) resetCaches() {
	s.activeUsers = map[int64]map[int64]event.IDSet{}
	s.availableChannels = map[int64]event.IDSet{}
	s.messageToEvent = map[int64]int{}
	s.lastCommentTime = map[int64]time.Time{}
	s.userStates = map[int64]event.FlagSet{}
	s.cacheCursor = 0
}

// Submit stamps ev with the current time and appends it to the log, folding
// it into the derived caches.
//
// Two write policies apply first:
//   - a user_state whose value equals the cached state for that user is
//     discarded silently (nil error, nothing appended);
//   - a comment inside the author's cooldown fails with ErrThrottled and
//     nothing is appended.
//
// Submitting an event whose type is not storable is a caller bug and panics.
func (s *Store) Submit(ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submit(ev)
}

func (s *Store) submit(ev event.Event) error {
	if !ev.Type.Storable() {
		panic(fmt.Sprintf("store: cannot submit event of type %q", ev.Type))
	}
	ev.Time = s.now()

	switch ev.Type {
	case event.TypeUserState:
		if prev, ok := s.userStates[ev.User]; ok && prev.Equal(ev.Value) {
			return nil
		}
	case event.TypeComment:
		if last, ok := s.lastCommentTime[ev.User]; ok && ev.Time.Sub(last) < s.cooldown {
			return ErrThrottled
		}
	}

	s.events = append(s.events, &ev)
	s.updateCache()
	s.audit(&ev)
	return nil
}

// DeleteComment tombstones the comment event behind messageID and drops its
// index mapping. Unknown ids are a silent no-op: duplicate delete
// notifications are expected from the source.
func (s *Store) DeleteComment(messageID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.messageToEvent[messageID]
	if !ok {
		return
	}
	ev := s.events[index]
	s.events[index] = nil
	delete(s.messageToEvent, messageID)
	s.dirty = true

	audit := *ev
	audit.Type = event.TypeDeleteComment
	s.audit(&audit)
}

// EditComment mutates the stored comment's content in place, the only
// in-place log mutation besides tombstoning. Unknown ids are a silent no-op.
func (s *Store) EditComment(messageID int64, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.messageToEvent[messageID]
	if !ok {
		return
	}
	s.events[index].Content = content
	s.dirty = true

	audit := *s.events[index]
	audit.Type = event.TypeEditComment
	s.audit(&audit)
}

// Compact rewrites the log without tombstones and rebuilds every derived
// cache by replaying the compacted log from scratch. Index remapping happens
// through the replay itself. Safe against concurrent callers: the whole
// remap runs under the store lock.
func (s *Store) Compact() {
	s.mu.Lock()
	defer s.mu.Unlock()

	compacted := make([]*event.Event, 0, len(s.events))
	for _, ev := range s.events {
		if ev != nil {
			compacted = append(compacted, ev)
		}
	}
	dropped := len(s.events) - len(compacted)
	s.events = compacted
	if dropped > 0 {
		s.dirty = true
	}

	s.resetCaches()
	s.updateCache()
	s.log.Info("compacted event log",
		zap.Int("events", len(s.events)),
		zap.Int("tombstones_dropped", dropped))
}

// Events returns the live log slice WITHOUT taking the store lock.
//
// This is a deliberate relaxed-consistency read: the meeting reconstructor
// runs concurrently with ingestion and tolerates observing a log that grows
// mid-scan. The returned slice header is a length-bounded, append-safe view;
// entries already present are never reordered. Do not add locking here —
// report generation must not block behind ingestion.
func (s *Store) Events() []*event.Event {
	return s.events
}

// Len reports the current log length, tombstones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Dirty reports whether the store has unsaved changes, a name-table update
// included.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	return s.dirty || s.namesDirty
}

// View is the window a Reconcile callback gets into the locked store.
type View struct {
	s *Store
}

// ActiveUsers returns a deep copy of the active-user cache.
func (v View) ActiveUsers() map[int64]map[int64]event.IDSet {
	out := make(map[int64]map[int64]event.IDSet, len(v.s.activeUsers))
	for guild, channels := range v.s.activeUsers {
		out[guild] = make(map[int64]event.IDSet, len(channels))
		for channel, users := range channels {
			out[guild][channel] = users.Clone()
		}
	}
	return out
}

// AvailableChannels returns a deep copy of the known-channel cache.
func (v View) AvailableChannels() map[int64]event.IDSet {
	out := make(map[int64]event.IDSet, len(v.s.availableChannels))
	for guild, channels := range v.s.availableChannels {
		out[guild] = channels.Clone()
	}
	return out
}

// Submit ingests an event while the Reconcile lock is already held.
func (v View) Submit(ev event.Event) error {
	return v.s.submit(ev)
}

// Reconcile runs fn under a single acquisition of the store lock. It exists
// for compound operations, the reconciliation scans foremost, that must read
// the caches and submit corrective events with no ingestion interleaved
// between the two.
func (s *Store) Reconcile(fn func(View) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(View{s})
}
