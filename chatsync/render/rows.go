// Package render turns a timeline snapshot into display rows.
package render

import (
	"time"

	"github.com/eoncord/chatsync-go/chatsync"
	"github.com/eoncord/chatsync-go/chatsync/reactions"
	"github.com/eoncord/chatsync-go/chatsync/timeline"
)

// GroupWindow is the largest gap between two messages of one author that
// still renders them as a group.
const GroupWindow = 7 * time.Minute

// ReactionSource supplies the reactions of a message. *reactions.Store
// satisfies it.
type ReactionSource interface {
	For(messageID string) []reactions.Aggregate
}

// Row is one display row.
type Row struct {
	Entry chatsync.Entry

	// DaySeparator is set on the first row of each calendar day.
	DaySeparator string

	// Continued is set when the row belongs to the group of the row above
	// and the author header is omitted.
	Continued bool

	Edited    bool
	Reactions []reactions.Aggregate
}

// Rows builds display rows for snap as seen at now in loc. A nil loc selects
// time.Local and a nil rs renders no reactions.
func Rows(snap timeline.Snapshot, rs ReactionSource, now time.Time, loc *time.Location) []Row {
	if loc == nil {
		loc = time.Local
	}
	rows := make([]Row, 0, len(snap.Entries))
	var prev chatsync.Entry
	for _, e := range snap.Entries {
		r := Row{Entry: e}
		newDay := prev == nil || !sameDay(prev.Created(), e.Created(), loc)
		if newDay {
			r.DaySeparator = DayLabel(e.Created(), now, loc)
		}
		r.Continued = !newDay && groups(prev, e)

		if c, ok := e.(chatsync.Confirmed); ok {
			r.Edited = c.Message.EditedAt != nil
			if rs != nil {
				r.Reactions = rs.For(c.Message.ID)
			}
		}
		rows = append(rows, r)
		prev = e
	}
	return rows
}

// DayLabel returns "Today", "Yesterday" or the long date of t.
func DayLabel(t, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t, now = t.In(loc), now.In(loc)
	switch {
	case sameDay(t, now, loc):
		return "Today"
	case sameDay(t, now.AddDate(0, 0, -1), loc):
		return "Yesterday"
	default:
		return t.Format("January 2, 2006")
	}
}

func groups(prev, cur chatsync.Entry) bool {
	if prev == nil || prev.AuthorID() != cur.AuthorID() {
		return false
	}
	return cur.Created().Sub(prev.Created()) < GroupWindow
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
