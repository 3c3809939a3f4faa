// Package gateway translates realtime transport notifications into typed
// store submissions, and reconciles the store's caches against directory
// snapshots of the transport's actual state. The transport client itself is
// external; this package only assumes the shapes below.
package gateway

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/chanwatch/chanwatch/internal/event"
	"github.com/chanwatch/chanwatch/internal/store"
)

// VoiceFlags mirrors a transport voice state.
type VoiceFlags struct {
	AFK        bool
	SelfMute   bool
	Mute       bool
	SelfDeaf   bool
	Deaf       bool
	SelfStream bool
	SelfVideo  bool
}

// FlagSet converts the voice state to its stored flag tags.
func (f VoiceFlags) FlagSet() event.FlagSet {
	s := event.FlagSet{}
	add := func(on bool, flag string) {
		if on {
			s[flag] = struct{}{}
		}
	}
	add(f.AFK, event.FlagAFK)
	add(f.SelfMute, event.FlagMuteUser)
	add(f.Mute, event.FlagMuteGuild)
	add(f.SelfDeaf, event.FlagDeafenUser)
	add(f.Deaf, event.FlagDeafenGuild)
	add(f.SelfStream, event.FlagStream)
	add(f.SelfVideo, event.FlagVideo)
	return s
}

// ChannelRef locates a voice channel within its guild.
type ChannelRef struct {
	Guild   int64
	Channel int64
}

// Member is a user currently present in a scanned channel.
type Member struct {
	ID    int64
	Name  string
	Flags VoiceFlags
}

// Channel is one voice channel in a directory snapshot.
type Channel struct {
	ID      int64
	Name    string
	Members []Member
}

// Guild is one guild in a directory snapshot.
type Guild struct {
	ID       int64
	Channels []Channel
}

// Directory is the gateway's view of the transport's current state, used by
// the reconciliation scans.
type Directory interface {
	Guilds() ([]Guild, error)
}

// Translator maps notifications onto the store's single ingestion entry
// point.
type Translator struct {
	store *store.Store
	log   *zap.Logger
}

// NewTranslator creates a translator submitting into st.
func NewTranslator(st *store.Store, logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{store: st, log: logger}
}

// VoiceStateUpdate handles a presence change for user. before/after are the
// channels the user was/is connected to, nil when disconnected on that side.
// A channel move emits leave, user_state, join in that order so the join
// starts from the fresh state.
func (t *Translator) VoiceStateUpdate(user int64, name string, before, after *ChannelRef, flags VoiceFlags) error {
	t.store.SetUserName(user, name)

	if after == nil {
		if before == nil {
			return nil
		}
		return t.store.Submit(event.Event{
			Type: event.TypeLeave, Guild: before.Guild, Channel: before.Channel,
			User: user, Cause: "event",
		})
	}

	stateEvent := event.Event{
		Type: event.TypeUserState, Guild: after.Guild, Channel: after.Channel,
		User: user, Value: flags.FlagSet(), Cause: "event",
	}

	if before == nil || *before != *after {
		if before != nil {
			if err := t.store.Submit(event.Event{
				Type: event.TypeLeave, Guild: before.Guild, Channel: before.Channel,
				User: user, Cause: "event",
			}); err != nil {
				return err
			}
		}
		if err := t.store.Submit(stateEvent); err != nil {
			return err
		}
		return t.store.Submit(event.Event{
			Type: event.TypeJoin, Guild: after.Guild, Channel: after.Channel,
			User: user, Cause: "event",
		})
	}
	return t.store.Submit(stateEvent)
}

// ChannelCreate handles a channel-created notification.
func (t *Translator) ChannelCreate(guild, channel int64, name string) error {
	if err := t.store.Submit(event.Event{
		Type: event.TypeCreate, Guild: guild, Channel: channel, Cause: "event",
	}); err != nil {
		return err
	}
	t.store.SetChannelGuild(channel, guild)
	t.store.SetChannelName(channel, name)
	return nil
}

// ChannelDelete handles a channel-deleted notification. The transport gives
// no notice of which leaves the deletion caused, so those arrive separately.
func (t *Translator) ChannelDelete(guild, channel int64) error {
	return t.store.Submit(event.Event{
		Type: event.TypeDelete, Guild: guild, Channel: channel, Cause: "event",
	})
}

// ChannelUpdate refreshes a renamed channel's display name.
func (t *Translator) ChannelUpdate(channel int64, name string) {
	t.store.SetChannelName(channel, name)
}

// CommentPosted submits a comment. Content is normalized to NFC before
// storage. A store.ErrThrottled result is the caller's cue to reject the
// message upstream.
func (t *Translator) CommentPosted(guild, channel, user, messageChannel, message int64, content string) error {
	return t.store.Submit(event.Event{
		Type: event.TypeComment, Guild: guild, Channel: channel, User: user,
		Message: message, MessageChannel: messageChannel,
		Content: norm.NFC.String(content),
	})
}

// CommentEdited handles a message-edit notification.
func (t *Translator) CommentEdited(message int64, content string) {
	t.store.EditComment(message, norm.NFC.String(content))
}

// CommentDeleted handles a message-delete notification.
func (t *Translator) CommentDeleted(message int64) {
	t.store.DeleteComment(message)
}

// CommentsBulkDeleted handles a bulk message-delete notification.
func (t *Translator) CommentsBulkDeleted(messages []int64) {
	for _, message := range messages {
		t.store.DeleteComment(message)
	}
}

// ScanActiveUsers reconciles the active-user cache against a directory
// snapshot, emitting corrective leave/join/user_state events with cause
// "scan.<reason>". The diff and the corrections happen under one lock
// acquisition so no realtime notification can interleave.
func (t *Translator) ScanActiveUsers(dir Directory, reason string) error {
	t.log.Info("scanning active users", zap.String("reason", reason))
	guilds, err := dir.Guilds()
	if err != nil {
		return fmt.Errorf("scan active users: %w", err)
	}
	return t.store.Reconcile(func(v store.View) error {
		return t.scanActiveUsers(v, guilds, "scan."+reason)
	})
}

func (t *Translator) scanActiveUsers(v store.View, guilds []Guild, cause string) error {
	active := v.ActiveUsers()

	// Present members produce a state refresh, plus a join when the cache
	// missed them. Joins are submitted after the leaves below so a meeting
	// never appears to briefly gain everybody twice.
	var joins []event.Event
	for _, guild := range guilds {
		for _, channel := range guild.Channels {
			for _, member := range channel.Members {
				joins = append(joins, event.Event{
					Type: event.TypeUserState, Guild: guild.ID, Channel: channel.ID,
					User: member.ID, Value: member.Flags.FlagSet(), Cause: cause,
				})
				if active[guild.ID][channel.ID].Has(member.ID) {
					active[guild.ID][channel.ID].Remove(member.ID)
				} else {
					joins = append(joins, event.Event{
						Type: event.TypeJoin, Guild: guild.ID, Channel: channel.ID,
						User: member.ID, Cause: cause,
					})
				}
			}
		}
	}

	// Whatever remains in the copied cache was not seen in the directory:
	// those users left while we were not listening.
	for guildID, channels := range active {
		for channelID, users := range channels {
			for userID := range users {
				if err := v.Submit(event.Event{
					Type: event.TypeLeave, Guild: guildID, Channel: channelID,
					User: userID, Cause: cause,
				}); err != nil {
					return err
				}
			}
		}
	}

	for _, ev := range joins {
		if err := v.Submit(ev); err != nil {
			return err
		}
	}
	return nil
}

// ScanAvailableChannels reconciles the known-channel cache against a
// directory snapshot, emitting corrective create/delete events.
func (t *Translator) ScanAvailableChannels(dir Directory, reason string) error {
	t.log.Info("scanning available channels", zap.String("reason", reason))
	guilds, err := dir.Guilds()
	if err != nil {
		return fmt.Errorf("scan available channels: %w", err)
	}
	return t.store.Reconcile(func(v store.View) error {
		return t.scanAvailableChannels(v, guilds, "scan."+reason)
	})
}

func (t *Translator) scanAvailableChannels(v store.View, guilds []Guild, cause string) error {
	available := v.AvailableChannels()

	for _, guild := range guilds {
		for _, channel := range guild.Channels {
			if available[guild.ID].Has(channel.ID) {
				available[guild.ID].Remove(channel.ID)
			} else {
				if err := v.Submit(event.Event{
					Type: event.TypeCreate, Guild: guild.ID, Channel: channel.ID, Cause: cause,
				}); err != nil {
					return err
				}
			}
		}
	}

	for guildID, channels := range available {
		for channelID := range channels {
			if err := v.Submit(event.Event{
				Type: event.TypeDelete, Guild: guildID, Channel: channelID, Cause: cause,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// ScanAttributes refreshes the display-name side tables. Purely
// informational, so it runs outside any reconcile.
func (t *Translator) ScanAttributes(dir Directory) error {
	t.log.Info("scanning channel and user attributes")
	guilds, err := dir.Guilds()
	if err != nil {
		return fmt.Errorf("scan attributes: %w", err)
	}
	t.applyAttributes(guilds)
	return nil
}

func (t *Translator) applyAttributes(guilds []Guild) {
	for _, guild := range guilds {
		for _, channel := range guild.Channels {
			t.store.SetChannelGuild(channel.ID, guild.ID)
			t.store.SetChannelName(channel.ID, channel.Name)
			for _, member := range channel.Members {
				t.store.SetUserName(member.ID, member.Name)
			}
		}
	}
}

// Scan runs the channel scan, the user scan, and the attribute refresh from
// one directory snapshot. The two reconciling scans share a single lock
// acquisition; channels are scanned first, which can put a channel's delete
// ahead of its members' leaves. That ordering anomaly is accepted and gets
// flagged by the store's fold rather than reordered here.
func (t *Translator) Scan(dir Directory, reason string) error {
	t.log.Info("scanning", zap.String("reason", reason))
	guilds, err := dir.Guilds()
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	cause := "scan." + reason
	if err := t.store.Reconcile(func(v store.View) error {
		if err := t.scanAvailableChannels(v, guilds, cause); err != nil {
			return err
		}
		return t.scanActiveUsers(v, guilds, cause)
	}); err != nil {
		return err
	}
	t.applyAttributes(guilds)
	return nil
}
