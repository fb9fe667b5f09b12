// Package render draws session snapshots to a terminal and keeps the
// newest transcript entry in view.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/kalambet/docchat/internal/conversation"
	"github.com/kalambet/docchat/internal/notify"
	"github.com/kalambet/docchat/internal/session"
)

type palette struct {
	user      *color.Color
	assistant *color.Color
	thinking  *color.Color
	success   *color.Color
	failure   *color.Color
	busy      *color.Color
}

func newPalette(colored bool) palette {
	p := palette{
		user:      color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgMagenta, color.Bold),
		thinking:  color.New(color.Faint, color.Italic),
		success:   color.New(color.FgGreen),
		failure:   color.New(color.FgRed),
		busy:      color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{p.user, p.assistant, p.thinking, p.success, p.failure, p.busy} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Driver appends whatever changed since the last snapshot it drew. A
// terminal only grows downward, so appending is what keeps the newest entry
// visible. Snapshots with a revision it has already passed are ignored.
type Driver struct {
	mu       sync.Mutex
	out      io.Writer
	md       Renderer
	colors   palette
	lastRev  uint64
	shown    int
	thinking bool
	busy     bool
	note     *notify.Notification
}

// NewDriver creates a Driver writing to out. A nil md shows answers as
// plain text.
func NewDriver(out io.Writer, md Renderer, colored bool) *Driver {
	if md == nil {
		md = Plain{}
	}
	return &Driver{out: out, md: md, colors: newPalette(colored)}
}

// SessionChanged implements session.Observer.
func (d *Driver) SessionChanged(s session.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s.Revision <= d.lastRev {
		return
	}
	d.lastRev = s.Revision

	if s.UploadInFlight && !d.busy {
		d.line(d.colors.busy.Sprintf("↑ Uploading %s...", s.Document.Name))
	}
	d.busy = s.UploadInFlight

	for _, m := range s.Transcript[min(d.shown, len(s.Transcript)):] {
		d.message(m)
	}
	d.shown = max(d.shown, len(s.Transcript))

	if s.RespondInFlight && !d.thinking {
		d.line(d.colors.assistant.Sprint("assistant › ") + d.colors.thinking.Sprint(conversation.ThinkingText))
	}
	d.thinking = s.RespondInFlight

	if s.Notification != nil && (d.note == nil || d.note.Seq != s.Notification.Seq) {
		d.notification(*s.Notification)
	}
	d.note = s.Notification
}

func (d *Driver) message(m conversation.Message) {
	switch m.Role {
	case conversation.RoleUser:
		d.line(d.colors.user.Sprint("you › ") + m.Content)
	default:
		text, err := d.md.Render(m.Content)
		if err != nil {
			text = m.Content
		}
		d.line(d.colors.assistant.Sprint("assistant ›"))
		d.line(strings.TrimRight(text, "\n"))
	}
}

func (d *Driver) notification(n notify.Notification) {
	switch n.Kind {
	case notify.KindSuccess:
		d.line(d.colors.success.Sprint("✓ " + n.Text))
	default:
		d.line(d.colors.failure.Sprint("✗ " + n.Text))
	}
}

func (d *Driver) line(s string) {
	fmt.Fprintln(d.out, s)
}
