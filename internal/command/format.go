package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/eoncord/chatsync-go/chatsync"
	"github.com/eoncord/chatsync-go/chatsync/reactions"
	"github.com/eoncord/chatsync-go/chatsync/render"
	"github.com/eoncord/chatsync-go/chatsync/typing"
)

func relTime(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

func authorName(a chatsync.Author) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.ID
}

func entryAuthor(e chatsync.Entry) chatsync.Author {
	switch v := e.(type) {
	case chatsync.Pending:
		return v.Author
	case chatsync.Confirmed:
		return v.Message.Author
	}
	return chatsync.Author{}
}

// FormatMessage renders one history message on a single line.
func FormatMessage(m chatsync.Message, now time.Time) string {
	return formatLine(chatsync.Confirmed{Message: m}, false, m.EditedAt != nil, nil, now)
}

// FormatRow renders a display row, preceded by its day separator if any.
func FormatRow(r render.Row, now time.Time) string {
	line := formatLine(r.Entry, r.Continued, r.Edited, r.Reactions, now)
	if r.DaySeparator == "" {
		return line
	}
	return "-- " + r.DaySeparator + " --\n" + line
}

func formatLine(e chatsync.Entry, continued, edited bool, aggs []reactions.Aggregate, now time.Time) string {
	var b strings.Builder
	if continued {
		b.WriteString("    ")
	} else {
		fmt.Fprintf(&b, "[%s] %s: ", relTime(e.Created(), now), authorName(entryAuthor(e)))
	}
	b.WriteString(e.Body())
	if edited {
		b.WriteString(" (edited)")
	}
	switch v := e.(type) {
	case chatsync.Pending:
		fmt.Fprintf(&b, " (%s)", v.State)
	case chatsync.Confirmed:
		for _, a := range v.Message.Attachments {
			fmt.Fprintf(&b, " <%s>", a.URL)
		}
		fmt.Fprintf(&b, "  #%s", v.Message.ID)
	}
	if len(aggs) > 0 {
		parts := make([]string, 0, len(aggs))
		for _, a := range aggs {
			mark := ""
			if a.ReactedByMe {
				mark = "*"
			}
			parts = append(parts, fmt.Sprintf("%s%s %d", mark, a.Emoji, a.Count))
		}
		b.WriteString("  [" + strings.Join(parts, " ") + "]")
	}
	return b.String()
}

// TypingLine describes who is typing, or returns "" when nobody is.
func TypingLine(entries []typing.Entry) string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.DisplayName
		if name == "" {
			name = e.UserID
		}
		names = append(names, name)
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	case 2:
		return names[0] + " and " + names[1] + " are typing..."
	case 3:
		return names[0] + ", " + names[1] + " and " + names[2] + " are typing..."
	default:
		return "several people are typing..."
	}
}
