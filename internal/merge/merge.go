// Package merge reconciles freshly observed conversations against the
// persisted conversation set.
//
// A conversation is keyed by its display name alone. Two contacts sharing a
// display name collapse into one record; the audit command reports duplicate
// names found in a table but nothing here tries to tell them apart.
package merge

import (
	"time"
	"unicode/utf8"

	"chat-harvest-job/internal/reldate"
)

// Conversation is one persisted conversation row.
type Conversation struct {
	Name  string
	Phone string // "" = unknown, retried next harvest
	Date  string // reldate.Layout, or the raw label when it was not recognised
	Chat  string
}

// Observation is what the chat list and message pane showed this run.
type Observation struct {
	Name      string
	DateLabel string
	Chat      string
}

type Action int

const (
	Skip Action = iota
	Create
	Update
)

func (a Action) String() string {
	switch a {
	case Create:
		return "create"
	case Update:
		return "update"
	default:
		return "skip"
	}
}

// Outcome is the reconciliation decision. Record is nil for Skip.
type Outcome struct {
	Action    Action
	Record    *Conversation
	Truncated bool
}

// DefaultTranscriptLimit matches the cell-size limit of the spreadsheet table.
const DefaultTranscriptLimit = 32767

type Options struct {
	// TranscriptLimit caps stored transcripts, in characters. 0 disables the cap.
	TranscriptLimit int
	Dates           *reldate.Normalizer
}

// Reconcile decides what to do with obs given the existing record (nil when
// the conversation was never seen). fetchPhone is called at most once, and
// only when the stored phone is missing.
//
// existing is never mutated; an Update returns a modified copy.
func Reconcile(existing *Conversation, obs Observation, now time.Time, fetchPhone func() string, opts Options) Outcome {
	date := obs.DateLabel
	if opts.Dates != nil {
		date = opts.Dates.Normalize(obs.DateLabel, now)
	}
	shouldFetchPhone := existing == nil || existing.Phone == ""
	dateChanged := existing != nil && existing.Date != date

	if existing == nil {
		chat, cut := Truncate(obs.Chat, opts.TranscriptLimit)
		return Outcome{
			Action: Create,
			Record: &Conversation{
				Name:  obs.Name,
				Phone: fetchPhone(),
				Date:  date,
				Chat:  chat,
			},
			Truncated: cut,
		}
	}

	if !shouldFetchPhone && !dateChanged {
		return Outcome{Action: Skip}
	}

	rec := *existing
	chat, cut := Truncate(obs.Chat, opts.TranscriptLimit)
	rec.Chat = chat
	if shouldFetchPhone {
		rec.Phone = fetchPhone()
	}
	if dateChanged {
		rec.Date = date
	}
	return Outcome{Action: Update, Record: &rec, Truncated: cut}
}

// Truncate cuts s to at most limit characters.
func Truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}
