package store

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/chanwatch/chanwatch/internal/event"
)

// DisplayName resolves a user id to its last scanned display name, falling
// back to the decimal id. Takes only nameMu: report generation resolves a
// name per participant and must not wait behind ingestion or a running save.
func (s *Store) DisplayName(user int64) string {
	return s.userName(user)
}

// ChannelName resolves a channel id to its last scanned name, falling back
// to the decimal id.
func (s *Store) ChannelName(channel int64) string {
	return s.channelName(channel)
}

// ChannelGuild returns the guild a channel was last seen in, or 0.
func (s *Store) ChannelGuild(channel int64) int64 {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	return s.channelGuilds[channel]
}

// SetUserName records a user's display name.
func (s *Store) SetUserName(user int64, name string) {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	s.userNames[user] = name
	s.namesDirty = true
}

// SetChannelName records a channel's display name.
func (s *Store) SetChannelName(channel int64, name string) {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	s.channelNames[channel] = name
	s.namesDirty = true
}

// SetChannelGuild records which guild a channel belongs to.
func (s *Store) SetChannelGuild(channel, guild int64) {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	s.channelGuilds[channel] = guild
	s.namesDirty = true
}

func (s *Store) userName(user int64) string {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	if name, ok := s.userNames[user]; ok {
		return name
	}
	return strconv.FormatInt(user, 10)
}

func (s *Store) channelName(channel int64) string {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	if name, ok := s.channelNames[channel]; ok {
		return name
	}
	return strconv.FormatInt(channel, 10)
}

// audit emits the informational record describing an accepted event, with
// display names resolved where known. Called with mu held; name resolution
// takes nameMu inside it.
func (s *Store) audit(ev *event.Event) {
	cause := zap.String("cause", ev.Cause)

	switch ev.Type {
	case event.TypeJoin:
		s.log.Info("user joined voice channel",
			zap.String("user", s.userName(ev.User)),
			zap.String("channel", s.channelName(ev.Channel)),
			zap.Int64("guild", ev.Guild), cause)
	case event.TypeLeave:
		s.log.Info("user left voice channel",
			zap.String("user", s.userName(ev.User)),
			zap.String("channel", s.channelName(ev.Channel)),
			zap.Int64("guild", ev.Guild), cause)
	case event.TypeCreate:
		s.log.Info("channel created",
			zap.String("channel", s.channelName(ev.Channel)),
			zap.Int64("guild", ev.Guild), cause)
	case event.TypeDelete:
		s.log.Info("channel deleted",
			zap.String("channel", s.channelName(ev.Channel)),
			zap.Int64("guild", ev.Guild), cause)
	case event.TypeUserState:
		flags := make([]string, 0, len(ev.Value))
		for flag := range ev.Value {
			flags = append(flags, flag)
		}
		s.log.Info("user state changed",
			zap.String("user", s.userName(ev.User)),
			zap.String("channel", s.channelName(ev.Channel)),
			zap.Int64("guild", ev.Guild),
			zap.Strings("flags", flags), cause)
	case event.TypeComment:
		s.log.Info("user added comment",
			zap.String("user", s.userName(ev.User)),
			zap.Int64("message", ev.Message),
			zap.String("channel", s.channelName(ev.Channel)),
			zap.Int64("guild", ev.Guild))
	case event.TypeDeleteComment:
		s.log.Info("comment deleted",
			zap.Int64("message", ev.Message),
			zap.String("user", s.userName(ev.User)),
			zap.String("channel", s.channelName(ev.Channel)),
			zap.Int64("guild", ev.Guild))
	case event.TypeEditComment:
		s.log.Info("user edited comment",
			zap.Int64("message", ev.Message),
			zap.String("user", s.userName(ev.User)),
			zap.String("channel", s.channelName(ev.Channel)),
			zap.Int64("guild", ev.Guild))
	default:
		panic(fmt.Sprintf("store: unknown event type %q", ev.Type))
	}
}
