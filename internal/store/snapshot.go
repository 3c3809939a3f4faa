package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/chanwatch/chanwatch/internal/event"
)

// snapshot is the persisted wire form: the entire log (nulls for tombstones)
// plus every derived-cache field and the display-name side tables, in one
// JSON document. Sets carry the "__set__" sentinel; integer map keys travel
// as strings and are coerced back on load.
type snapshot struct {
	Events            []*event.Event                  `json:"events"`
	ActiveUsers       map[int64]map[int64]event.IDSet `json:"active_users"`
	AvailableChannels map[int64]event.IDSet           `json:"available_channels"`
	MessagesToEvents  map[int64]int                   `json:"messages_to_events"`
	LastCommentTimes  map[int64]time.Time             `json:"user_last_comment_time"`
	UserStates        map[int64]event.FlagSet         `json:"user_states"`
	CacheEventc       int                             `json:"cache_eventc"`
	ChannelNames      map[int64]string                `json:"channel_names"`
	UserNames         map[int64]string                `json:"user_names"`
	ChannelGuilds     map[int64]int64                 `json:"channel_guilds"`
}

// makeSnapshot is called with mu held. The name tables live under nameMu and
// keep mutating while the snapshot is encoded, so they are copied out here
// rather than referenced.
func (s *Store) makeSnapshot() snapshot {
	s.nameMu.Lock()
	channelNames := make(map[int64]string, len(s.channelNames))
	for id, name := range s.channelNames {
		channelNames[id] = name
	}
	userNames := make(map[int64]string, len(s.userNames))
	for id, name := range s.userNames {
		userNames[id] = name
	}
	channelGuilds := make(map[int64]int64, len(s.channelGuilds))
	for id, guild := range s.channelGuilds {
		channelGuilds[id] = guild
	}
	s.nameMu.Unlock()

	return snapshot{
		Events:            s.events,
		ActiveUsers:       s.activeUsers,
		AvailableChannels: s.availableChannels,
		MessagesToEvents:  s.messageToEvent,
		LastCommentTimes:  s.lastCommentTime,
		UserStates:        s.userStates,
		CacheEventc:       s.cacheCursor,
		ChannelNames:      channelNames,
		UserNames:         userNames,
		ChannelGuilds:     channelGuilds,
	}
}

// Load reads the persisted snapshot, if present. A missing file leaves an
// empty store and is not an error; malformed contents are, with no partial
// recovery.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("loading database", zap.String("path", s.path))

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("corrupt snapshot %s: %w", s.path, err)
	}

	s.events = snap.Events
	s.activeUsers = snap.ActiveUsers
	s.availableChannels = snap.AvailableChannels
	s.messageToEvent = snap.MessagesToEvents
	s.lastCommentTime = snap.LastCommentTimes
	s.userStates = snap.UserStates
	s.cacheCursor = snap.CacheEventc
	s.nameMu.Lock()
	s.channelNames = snap.ChannelNames
	s.userNames = snap.UserNames
	s.channelGuilds = snap.ChannelGuilds
	s.namesDirty = false
	s.nameMu.Unlock()
	s.fillNilMaps()
	s.dirty = false
	return nil
}

// Older snapshots may omit fields entirely; restore them to empty.
func (s *Store) fillNilMaps() {
	if s.activeUsers == nil {
		s.activeUsers = map[int64]map[int64]event.IDSet{}
	}
	if s.availableChannels == nil {
		s.availableChannels = map[int64]event.IDSet{}
	}
	if s.messageToEvent == nil {
		s.messageToEvent = map[int64]int{}
	}
	if s.lastCommentTime == nil {
		s.lastCommentTime = map[int64]time.Time{}
	}
	if s.userStates == nil {
		s.userStates = map[int64]event.FlagSet{}
	}
	s.nameMu.Lock()
	if s.channelNames == nil {
		s.channelNames = map[int64]string{}
	}
	if s.userNames == nil {
		s.userNames = map[int64]string{}
	}
	if s.channelGuilds == nil {
		s.channelGuilds = map[int64]int64{}
	}
	s.nameMu.Unlock()
}

// Save writes a fresh full snapshot and clears the dirty flag.
//
// Crash safety: any existing snapshot is first renamed to a ".old" backup,
// then the new file is created fresh (O_EXCL, never overwritten in place).
// An interruption leaves either the backup with no current file, or a fully
// written current file — never a half-written one that load would trust.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

func (s *Store) save() error {
	s.log.Info("saving database", zap.String("path", s.path))

	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, s.path+".old"); err != nil {
			return fmt.Errorf("save snapshot: backup: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(s.makeSnapshot()); err != nil {
		f.Close()
		return fmt.Errorf("save snapshot: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("save snapshot: close: %w", err)
	}

	s.dirty = false
	s.nameMu.Lock()
	s.namesDirty = false
	s.nameMu.Unlock()
	return nil
}

// Dump serializes the current snapshot, indented, for inspection through the
// control surface. Read-only.
func (s *Store) Dump() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.makeSnapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("dump snapshot: %w", err)
	}
	return data, nil
}
