package store

import (
	"fmt"
	"strings"
	"time"

	"chat-harvest-job/internal/merge"
	"chat-harvest-job/internal/schedule"
)

// TimestampLayout is how schedule stamps are written (DD.MM.YYYY HH:mm:ss).
const TimestampLayout = "02.01.2006 15:04:05"

// Column names of the two tables.
const (
	ColProfileName = "ProfileName"
	ColLastDate    = "Last date"
	ColNextDate    = "Next date"

	ColName  = "Name"
	ColPhone = "Phone"
	ColDate  = "Date"
	ColChat  = "Chat"
)

// Default sheet names.
const (
	ProfileSheet      = "Sheet1"
	ConversationSheet = "Chats"
)

var (
	ProfileColumns      = []string{ColProfileName, ColLastDate, ColNextDate}
	ConversationColumns = []string{ColName, ColPhone, ColDate, ColChat}
)

// Issue is a cell that could not be decoded. The value is treated as absent.
type Issue struct {
	Row    int // 1-based data row
	Name   string
	Column string
	Value  string
}

func (i Issue) String() string {
	return fmt.Sprintf("row %d (%s): %s=%q", i.Row, i.Name, i.Column, i.Value)
}

// DecodeProfiles reads the profile table. Rows with an empty name are
// skipped. Unparseable timestamps decode as nil and are reported.
func DecodeProfiles(t *Table, loc *time.Location) ([]schedule.Profile, []Issue) {
	if loc == nil {
		loc = time.Local
	}
	var (
		out    []schedule.Profile
		issues []Issue
	)
	for i, r := range t.Rows {
		name := strings.TrimSpace(r[ColProfileName])
		if name == "" {
			continue
		}
		p := schedule.Profile{Name: name}
		for _, c := range []struct {
			col string
			dst **time.Time
		}{{ColLastDate, &p.LastRunAt}, {ColNextDate, &p.NextRunAt}} {
			v := strings.TrimSpace(r[c.col])
			if v == "" {
				continue
			}
			ts, err := time.ParseInLocation(TimestampLayout, v, loc)
			if err != nil {
				issues = append(issues, Issue{Row: i + 1, Name: name, Column: c.col, Value: v})
				continue
			}
			*c.dst = &ts
		}
		out = append(out, p)
	}
	return out, issues
}

// FormatTimestamp renders a stamp cell; nil renders empty.
func FormatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(TimestampLayout)
}

// StampProfile writes p's schedule into the first row named p.Name. Other
// columns of the row are left alone. It reports whether the row was found.
func StampProfile(t *Table, p schedule.Profile) bool {
	t.EnsureColumns(ProfileColumns...)
	for _, r := range t.Rows {
		if strings.TrimSpace(r[ColProfileName]) != p.Name {
			continue
		}
		r[ColLastDate] = FormatTimestamp(p.LastRunAt)
		r[ColNextDate] = FormatTimestamp(p.NextRunAt)
		return true
	}
	return false
}

// DecodeConversations reads the conversation table in row order.
func DecodeConversations(t *Table) []merge.Conversation {
	out := make([]merge.Conversation, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, merge.Conversation{
			Name:  r[ColName],
			Phone: r[ColPhone],
			Date:  r[ColDate],
			Chat:  r[ColChat],
		})
	}
	return out
}

// EncodeConversations renders records as a conversation table.
func EncodeConversations(records []merge.Conversation) *Table {
	t := NewTable(ConversationColumns...)
	for _, c := range records {
		t.Append(c.Name, c.Phone, c.Date, c.Chat)
	}
	return t
}
