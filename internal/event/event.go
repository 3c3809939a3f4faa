// Package event defines the typed presence/lifecycle records that make up the
// append-only activity log, and the JSON codec for the snapshot wire format.
package event

import "time"

// Type identifies the kind of fact an Event records.
type Type string

const (
	TypeJoin      Type = "join"
	TypeLeave     Type = "leave"
	TypeCreate    Type = "create"
	TypeDelete    Type = "delete"
	TypeUserState Type = "user_state"
	TypeComment   Type = "comment"

	// Audit-only types. Emitted to the log writer when a comment is deleted
	// or edited, never stored in the event log.
	TypeDeleteComment Type = "_delete_comment"
	TypeEditComment   Type = "_edit_comment"
)

// Storable reports whether t may be appended to the event log.
func (t Type) Storable() bool {
	switch t {
	case TypeJoin, TypeLeave, TypeCreate, TypeDelete, TypeUserState, TypeComment:
		return true
	}
	return false
}

// Flag tags carried by user_state events. Mutually independent.
const (
	FlagAFK         = "afk"
	FlagMuteUser    = "mute.user"
	FlagMuteGuild   = "mute.guild"
	FlagDeafenUser  = "deafen.user"
	FlagDeafenGuild = "deafen.guild"
	FlagStream      = "stream"
	FlagVideo       = "video"
)

// Event is one immutable record in the activity log. The store stamps Time at
// ingestion; callers never set it. Which other fields are populated depends
// on Type:
//
//	join, leave   Guild, Channel, User
//	create,delete Guild, Channel
//	user_state    Guild, Channel, User, Value
//	comment       Guild, Channel, User, Message, MessageChannel, Content
//
// Cause is free-form provenance ("event", "scan.<reason>") and is never used
// by any invariant.
type Event struct {
	Time           time.Time `json:"time"`
	Type           Type      `json:"type"`
	Guild          int64     `json:"guild,omitempty"`
	Channel        int64     `json:"channel,omitempty"`
	User           int64     `json:"user,omitempty"`
	Value          FlagSet   `json:"value,omitempty"`
	Message        int64     `json:"message,omitempty"`
	MessageChannel int64     `json:"message_channel,omitempty"`
	Content        string    `json:"content,omitempty"`
	Cause          string    `json:"cause,omitempty"`
}
