// Package report reconstructs human-readable meetings from the activity log
// and renders them as an HTML timeline.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/chanwatch/chanwatch/internal/event"
	"github.com/chanwatch/chanwatch/internal/store"
)

// DisplayState is the rendered snapshot of a user's flags: the four
// categories the timeline distinguishes.
type DisplayState struct {
	Mute   bool
	Deafen bool
	Stream bool
	Video  bool
}

// StateOf collapses a raw flag set into its display categories.
func StateOf(value event.FlagSet) DisplayState {
	return DisplayState{
		Mute:   value.Has(event.FlagMuteUser) || value.Has(event.FlagMuteGuild),
		Deafen: value.Has(event.FlagDeafenUser) || value.Has(event.FlagDeafenGuild),
		Stream: value.Has(event.FlagStream),
		Video:  value.Has(event.FlagVideo),
	}
}

// Away reports whether the state renders as "away": deafened without
// streaming and without video.
func (d DisplayState) Away() bool {
	return d.Deafen && !d.Stream && !d.Video
}

// Sub is a contiguous span of one Bar with a constant display state.
// End stays zero while the span is still open.
type Sub struct {
	Begin time.Time
	End   time.Time
	State DisplayState
}

// Comment is a text comment attached to an open Bar.
type Comment struct {
	Time    time.Time
	URL     string
	Content string
}

// Bar is one maximal contiguous presence interval (join to leave) of a user.
type Bar struct {
	Open     bool
	Subs     []Sub
	Comments []Comment
}

// Begin is the start of the Bar's first Sub.
func (b *Bar) Begin() time.Time { return b.Subs[0].Begin }

// End is the end of the Bar's last Sub.
func (b *Bar) End() time.Time { return b.Subs[len(b.Subs)-1].End }

// Column is one meeting participant with all their Bars.
type Column struct {
	User int64
	Name string
	Bars []*Bar
}

// Meeting is a time-bounded group of overlapping or adjacent Bars across at
// least the configured number of participants.
type Meeting struct {
	Begin   time.Time
	End     time.Time
	Channel int64
	Columns []*Column
}

// Reconstructor replays the log into Meetings. It holds no state across
// calls; each Meetings call recomputes the full view.
type Reconstructor struct {
	store    *store.Store
	interval time.Duration
	minUsers int
	now      func() time.Time
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithClock overrides the clock used to close still-open bars. For tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconstructor) { r.now = now }
}

// NewReconstructor creates a reconstructor over st. Two relevant events
// further apart than interval, with no bar open, start a new meeting;
// meetings with fewer than minUsers distinct participants are dropped.
func NewReconstructor(st *store.Store, interval time.Duration, minUsers int, opts ...Option) *Reconstructor {
	r := &Reconstructor{
		store:    st,
		interval: interval,
		minUsers: minUsers,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Meetings replays the log, filtered to channel, into an ordered sequence of
// meetings.
//
// The scan intentionally reads the log without the store lock: a report
// generated during ingestion observes a best-effort consistent, append-safe
// view of the log, which is an accepted trade-off for read availability.
func (r *Reconstructor) Meetings(channel int64) []*Meeting {
	var result []*Meeting

	columns := map[int64]*Column{}
	var order []int64 // first-seen participant order, the stable sort tiebreak
	var beginTime, endTime time.Time
	openBars := 0

	flush := func() {
		if len(columns) >= r.minUsers {
			cols := make([]*Column, 0, len(order))
			for _, user := range order {
				cols = append(cols, columns[user])
			}

			end := endTime
			if openBars > 0 {
				end = r.now()
			}
			for _, col := range cols {
				last := col.Bars[len(col.Bars)-1]
				if last.Subs[len(last.Subs)-1].End.IsZero() {
					last.Subs[len(last.Subs)-1].End = end
				}
			}

			sort.SliceStable(cols, func(i, j int) bool {
				return presence(cols[i]) > presence(cols[j])
			})

			result = append(result, &Meeting{Begin: beginTime, End: end, Channel: channel, Columns: cols})
		}
		columns = map[int64]*Column{}
		order = nil
		openBars = 0
	}

	states := map[int64]DisplayState{}
	for _, ev := range r.store.Events() {
		if ev == nil {
			continue
		}

		if ev.Type == event.TypeUserState {
			// Same dedup rule as ingestion, but over display categories: a
			// repeated identical snapshot never opens a new sub-interval.
			// Applied before the channel filter so a user's running state is
			// correct the moment they join.
			next := StateOf(ev.Value)
			if prev, ok := states[ev.User]; ok && prev == next {
				continue
			}
			states[ev.User] = next
		}

		if ev.Channel != channel || !relevant(ev.Type) {
			continue
		}

		t := ev.Time
		if len(columns) == 0 || (openBars == 0 && t.After(endTime.Add(r.interval))) {
			flush()
			beginTime = t
			endTime = t
		}

		switch ev.Type {
		case event.TypeJoin:
			col, ok := columns[ev.User]
			if !ok {
				col = &Column{User: ev.User, Name: r.store.DisplayName(ev.User)}
				columns[ev.User] = col
				order = append(order, ev.User)
			}
			col.Bars = append(col.Bars, &Bar{
				Open: true,
				Subs: []Sub{{Begin: t, State: states[ev.User]}},
			})
			openBars++

		case event.TypeLeave:
			// A leave without an open bar (log starting mid-session) is a
			// no-op, not a fault.
			if bar := openBar(columns, ev.User); bar != nil {
				bar.Open = false
				bar.Subs[len(bar.Subs)-1].End = t
				openBars--
			}

		case event.TypeComment:
			// Unattributable without an open bar; dropped.
			if bar := openBar(columns, ev.User); bar != nil {
				bar.Comments = append(bar.Comments, Comment{
					Time:    t,
					URL:     messageURL(ev),
					Content: ev.Content,
				})
			}

		case event.TypeUserState:
			if bar := openBar(columns, ev.User); bar != nil {
				bar.Subs[len(bar.Subs)-1].End = t
				bar.Subs = append(bar.Subs, Sub{Begin: t, State: states[ev.User]})
			}
		}
		endTime = t
	}
	flush()

	return result
}

func relevant(t event.Type) bool {
	switch t {
	case event.TypeJoin, event.TypeLeave, event.TypeComment, event.TypeUserState:
		return true
	}
	return false
}

// openBar returns the user's currently open bar, or nil.
func openBar(columns map[int64]*Column, user int64) *Bar {
	col, ok := columns[user]
	if !ok || len(col.Bars) == 0 {
		return nil
	}
	bar := col.Bars[len(col.Bars)-1]
	if !bar.Open {
		return nil
	}
	return bar
}

// presence is a column's total on-channel time across all its bars.
func presence(col *Column) time.Duration {
	var total time.Duration
	for _, bar := range col.Bars {
		for _, sub := range bar.Subs {
			total += sub.End.Sub(sub.Begin)
		}
	}
	return total
}

func messageURL(ev *event.Event) string {
	return fmt.Sprintf("https://discord.com/channels/%d/%d/%d", ev.Guild, ev.MessageChannel, ev.Message)
}
