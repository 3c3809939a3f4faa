package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/chanwatch/chanwatch/internal/event"
)

// updateCache folds every not-yet-folded log entry into the derived caches,
// in log order, advancing the cursor past each one exactly once. Calling it
// again without intervening appends is a no-op; ingestion and compaction
// share it so incremental folding and full rebuilds cannot drift apart.
//
// Assumes events are appended in non-decreasing time order.
func (s *Store) updateCache() {
	for ; s.cacheCursor < len(s.events); s.cacheCursor++ {
		if ev := s.events[s.cacheCursor]; ev != nil {
			s.fold(ev, s.cacheCursor)
		}
	}
	s.dirty = true
}

// fold applies a single event to the caches. index is the event's position
// in the log.
func (s *Store) fold(ev *event.Event, index int) {
	switch ev.Type {
	case event.TypeJoin:
		channels, ok := s.activeUsers[ev.Guild]
		if !ok {
			channels = map[int64]event.IDSet{}
			s.activeUsers[ev.Guild] = channels
		}
		users, ok := channels[ev.Channel]
		if !ok {
			users = event.IDSet{}
			channels[ev.Channel] = users
		}
		users.Add(ev.User)

	case event.TypeLeave:
		users := s.activeUsers[ev.Guild][ev.Channel]
		if !users.Has(ev.User) {
			// Bulk synchronization can emit a channel's delete before its
			// last leaves. Flag the anomaly, never reorder.
			s.log.Warn("leave for user not in active set",
				zap.Int64("guild", ev.Guild),
				zap.Int64("channel", ev.Channel),
				zap.Int64("user", ev.User),
				zap.String("cause", ev.Cause))
			return
		}
		users.Remove(ev.User)

	case event.TypeCreate:
		channels, ok := s.availableChannels[ev.Guild]
		if !ok {
			channels = event.IDSet{}
			s.availableChannels[ev.Guild] = channels
		}
		channels.Add(ev.Channel)

	case event.TypeDelete:
		channels := s.availableChannels[ev.Guild]
		if !channels.Has(ev.Channel) {
			s.log.Warn("delete of unknown channel",
				zap.Int64("guild", ev.Guild),
				zap.Int64("channel", ev.Channel),
				zap.String("cause", ev.Cause))
			return
		}
		channels.Remove(ev.Channel)

	case event.TypeUserState:
		s.userStates[ev.User] = ev.Value.Clone()

	case event.TypeComment:
		s.messageToEvent[ev.Message] = index
		s.lastCommentTime[ev.User] = ev.Time

	default:
		panic(fmt.Sprintf("store: unknown event type %q in log", ev.Type))
	}
}
