package report

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/chanwatch/chanwatch/internal/store"
)

//go:embed assets/report.css
var reportCSS string

//go:embed assets/report.js
var reportJS string

// Renderer produces the self-contained HTML timeline document for a channel.
type Renderer struct {
	store *store.Store
	rec   *Reconstructor
}

// NewRenderer creates a renderer over st using rec for reconstruction.
func NewRenderer(st *store.Store, rec *Reconstructor) *Renderer {
	return &Renderer{store: st, rec: rec}
}

// Render reconstructs the channel's meetings and renders the full report.
// Like the reconstruction itself, this is a best-effort consistent read.
func (r *Renderer) Render(channel int64) []byte {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n")
	b.WriteString("<html>\n")
	b.WriteString("<head>\n")
	b.WriteString("<meta charset=\"UTF-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<style>\n")
	b.WriteString(reportCSS)
	b.WriteString("</style>\n")
	b.WriteString("<script>\n")
	b.WriteString(reportJS)
	b.WriteString("</script>\n")
	b.WriteString("</head>\n")
	b.WriteString("<body>\n")

	url := ""
	if guild := r.store.ChannelGuild(channel); guild != 0 {
		url = fmt.Sprintf("https://discord.com/channels/%d/%d", guild, channel)
	}
	name := r.store.ChannelName(channel)
	if name != strconv.FormatInt(channel, 10) {
		name = "<q>" + html.EscapeString(name) + "</q>"
	}
	b.WriteString("<header>\n")
	fmt.Fprintf(&b, "<h1>Activity report for voice channel <a href=%q target=\"_blank\" rel=\"noopener noreferrer\">%s</a></h1>\n", url, name)
	b.WriteString("</header>\n")

	b.WriteString("<main id=\"timeline\">\n")
	b.WriteString("<div id=\"indicator\"></div>\n")

	meetings := r.rec.Meetings(channel)
	var prevMeetingEnd time.Time
	for _, meeting := range meetings {
		headingBegin := meeting.Begin
		if !prevMeetingEnd.IsZero() {
			headingBegin = prevMeetingEnd
		}
		fmt.Fprintf(&b, "<div class=\"meeting-heading\" data-begin=\"%s\" data-end=\"%s\">", stamp(headingBegin), stamp(meeting.Begin))
		fmt.Fprintf(&b, "<h2>Meeting on <time datetime=%q data-timestamp=%q>%s</time></h2>", iso(meeting.Begin), stamp(meeting.Begin), iso(meeting.Begin))
		b.WriteString("</div>\n")
		prevMeetingEnd = meeting.End

		fmt.Fprintf(&b, "<div class=\"meeting\" data-begin=\"%s\" data-end=\"%s\">\n", stamp(meeting.Begin), stamp(meeting.End))
		for i, column := range meeting.Columns {
			hue := i * 360 / len(meeting.Columns)
			fmt.Fprintf(&b, "<div class=\"column\" style=\"--hue: %d;\" title=%q>\n", hue, column.Name)
			r.renderColumn(&b, meeting, column)
			b.WriteString("</div>\n")
		}
		b.WriteString("</div>\n")
	}
	b.WriteString("</main>\n")

	b.WriteString("<footer>\n")
	b.WriteString("<h2>Raw events</h2>\n")
	b.WriteString("<pre id=\"raw-events\">\n")
	for _, ev := range r.store.Events() {
		if ev == nil || ev.Channel != channel {
			continue
		}
		line, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		b.WriteString(html.EscapeString(string(line)))
		b.WriteString("\n")
	}
	b.WriteString("</pre>\n")
	b.WriteString("</footer>\n")

	b.WriteString("</body>\n")
	b.WriteString("</html>\n")
	return []byte(b.String())
}

func (r *Renderer) renderColumn(b *strings.Builder, meeting *Meeting, column *Column) {
	prevBarEnd := meeting.Begin
	for _, bar := range column.Bars {
		fmt.Fprintf(b, "<div class=\"bar\" style=\"margin-top: %spx;\">", seconds(bar.Begin().Sub(prevBarEnd)))
		prevBarEnd = bar.End()

		for _, comment := range bar.Comments {
			fmt.Fprintf(b, "<div class=\"comment\" style=\"margin-top: %spx;\" data-timestamp=\"%s\" title=\"Commented on %s\">", seconds(comment.Time.Sub(bar.Begin())), stamp(comment.Time), iso(comment.Time))
			fmt.Fprintf(b, "<a href=%q target=\"_blank\" rel=\"noopener noreferrer\">%s</a>", comment.URL, html.EscapeString(comment.Content))
			b.WriteString("</div>")
		}

		class := "subs"
		if bar.Open {
			class = "subs open"
		}
		fmt.Fprintf(b, "<div class=%q>", class)

		prevClass := "-"
		for _, sub := range bar.Subs {
			class := ""
			if sub.State.Away() {
				class = "afk"
			}
			if class == prevClass {
				prevClass = class
				class += " repeated"
			} else {
				prevClass = class
			}
			height := sub.End.Sub(sub.Begin)
			fmt.Fprintf(b, "<div class=%q style=\"height: %spx;\">", strings.TrimSpace(class), seconds(height))

			if height >= 24*time.Second { // tied to --icon-size
				if sub.State.Mute {
					b.WriteString("<span class=\"icon\" title=\"Muted\">M</span>")
				}
				if sub.State.Deafen {
					b.WriteString("<span class=\"icon\" title=\"Deafened\">D</span>")
				}
				if sub.State.Video {
					b.WriteString("<span class=\"icon\" title=\"Video\">V</span>")
				}
				if sub.State.Stream {
					b.WriteString("<span class=\"icon\" title=\"Streaming\">S</span>")
				}
			}
			b.WriteString("</div>")
		}
		b.WriteString("</div>\n")

		b.WriteString("</div>\n")
	}
}

func stamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func iso(t time.Time) string {
	return t.Format(time.RFC3339)
}

// seconds renders a duration as a bare decimal second count for pixel sizes.
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
