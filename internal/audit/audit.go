// Package audit checks the profile and conversation tables for rows that
// break the harvest's invariants, and optionally repairs the safe cases.
//
// Safe repairs never lose information: over-limit transcripts are cut to the
// limit and a drifted "Next date" is re-derived from "Last date". Phones are
// never cleared and duplicate names are reported, not merged.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-harvest-job/internal/merge"
	"chat-harvest-job/internal/reldate"
	"chat-harvest-job/internal/schedule"
	"chat-harvest-job/internal/store"
)

type Check string

const (
	CheckScheduleDrift    Check = "schedule_drift"
	CheckHalfStamp        Check = "half_stamp"
	CheckBadStamp         Check = "unparseable_stamp"
	CheckOverLimit        Check = "transcript_over_limit"
	CheckDuplicateName    Check = "duplicate_name"
	CheckPhonePending     Check = "phone_pending"
	CheckRelativeDate     Check = "date_not_absolute"
	CheckDuplicateProfile Check = "duplicate_profile"
)

// Apply modes.
const (
	ApplyNone = "none"
	ApplySafe = "safe"
)

// Finding is one suspicious cell or row.
type Finding struct {
	RunID     string
	Table     string // profiles | conversations
	Check     Check
	Row       int // 1-based data row
	Subject   string
	Detail    string
	Suggested string
	Applied   bool
}

type Options struct {
	Cooldown        time.Duration
	TranscriptLimit int
	Apply           string
	Location        *time.Location
}

type Report struct {
	RunID         string
	Profiles      int
	Conversations int
	Findings      []Finding
}

func (r Report) Applied() int {
	n := 0
	for _, f := range r.Findings {
		if f.Applied {
			n++
		}
	}
	return n
}

// Count returns the number of findings of check c.
func (r Report) Count(c Check) int {
	n := 0
	for _, f := range r.Findings {
		if f.Check == c {
			n++
		}
	}
	return n
}

func (r Report) String() string {
	return fmt.Sprintf("run_id=%s profiles=%d conversations=%d findings=%d applied=%d",
		r.RunID, r.Profiles, r.Conversations, len(r.Findings), r.Applied())
}

type Auditor struct {
	profiles      store.Store
	conversations store.Store
	opts          Options
	log           zerolog.Logger
}

func New(profiles, conversations store.Store, opts Options, log zerolog.Logger) *Auditor {
	if opts.Cooldown <= 0 {
		opts.Cooldown = schedule.DefaultCooldown
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Apply == "" {
		opts.Apply = ApplyNone
	}
	return &Auditor{
		profiles:      profiles,
		conversations: conversations,
		opts:          opts,
		log:           log.With().Str("component", "audit").Logger(),
	}
}

// Run audits both tables. An absent table is skipped with a warning.
func (a *Auditor) Run(ctx context.Context) (Report, error) {
	if a.opts.Apply != ApplyNone && a.opts.Apply != ApplySafe {
		return Report{}, fmt.Errorf("invalid apply mode %q (must be none or safe)", a.opts.Apply)
	}
	rep := Report{RunID: uuid.NewString()}

	if a.profiles != nil {
		if err := a.auditProfiles(ctx, &rep); err != nil {
			return rep, err
		}
	}
	if a.conversations != nil {
		if err := a.auditConversations(ctx, &rep); err != nil {
			return rep, err
		}
	}
	for i := range rep.Findings {
		rep.Findings[i].RunID = rep.RunID
	}
	a.log.Info().Str("run_id", rep.RunID).Int("findings", len(rep.Findings)).Int("applied", rep.Applied()).Msg("audit complete")
	return rep, nil
}

func (a *Auditor) load(ctx context.Context, s store.Store) (*store.Table, bool, error) {
	t, err := s.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		a.log.Warn().Str("table", s.Location()).Msg("table not found; skipped")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (a *Auditor) auditProfiles(ctx context.Context, rep *Report) error {
	t, ok, err := a.load(ctx, a.profiles)
	if err != nil || !ok {
		return err
	}
	changed := false
	seen := make(map[string]int)
	for i, row := range t.Rows {
		name := strings.TrimSpace(row[store.ColProfileName])
		if name == "" {
			continue
		}
		rep.Profiles++
		n := i + 1
		add := func(c Check, detail, suggested string) *Finding {
			rep.Findings = append(rep.Findings, Finding{Table: "profiles", Check: c, Row: n, Subject: name, Detail: detail, Suggested: suggested})
			return &rep.Findings[len(rep.Findings)-1]
		}
		if first, dup := seen[name]; dup {
			add(CheckDuplicateProfile, fmt.Sprintf("same name as row %d; only the first row is stamped", first), "")
		} else {
			seen[name] = n
		}

		last, lastOK := a.parseStamp(row[store.ColLastDate])
		next, nextOK := a.parseStamp(row[store.ColNextDate])
		if !lastOK {
			add(CheckBadStamp, fmt.Sprintf("%s=%q", store.ColLastDate, row[store.ColLastDate]), "")
		}
		if !nextOK {
			f := add(CheckBadStamp, fmt.Sprintf("%s=%q", store.ColNextDate, row[store.ColNextDate]), "")
			if last != nil {
				f.Suggested = last.Add(a.opts.Cooldown).Format(store.TimestampLayout)
				changed = a.applyNext(row, f) || changed
			}
			continue
		}
		if !lastOK {
			continue
		}
		switch {
		case last == nil && next == nil:
		case last == nil:
			add(CheckHalfStamp, store.ColLastDate+" empty", "")
		case next == nil:
			f := add(CheckHalfStamp, store.ColNextDate+" empty", last.Add(a.opts.Cooldown).Format(store.TimestampLayout))
			changed = a.applyNext(row, f) || changed
		default:
			if want := last.Add(a.opts.Cooldown); !next.Equal(want) {
				f := add(CheckScheduleDrift,
					fmt.Sprintf("next-last=%s, cooldown=%s", next.Sub(*last), a.opts.Cooldown),
					want.Format(store.TimestampLayout))
				changed = a.applyNext(row, f) || changed
			}
		}
	}
	if changed {
		if err := a.profiles.Save(ctx, t); err != nil {
			return fmt.Errorf("save profiles: %w", err)
		}
	}
	return nil
}

// parseStamp returns (nil, true) for an empty cell and (nil, false) for an
// unparseable one.
func (a *Auditor) parseStamp(s string) (*time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	t, err := time.ParseInLocation(store.TimestampLayout, s, a.opts.Location)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func (a *Auditor) applyNext(row map[string]string, f *Finding) bool {
	if a.opts.Apply != ApplySafe || f.Suggested == "" {
		return false
	}
	row[store.ColNextDate] = f.Suggested
	f.Applied = true
	return true
}

func (a *Auditor) auditConversations(ctx context.Context, rep *Report) error {
	t, ok, err := a.load(ctx, a.conversations)
	if err != nil || !ok {
		return err
	}
	changed := false
	seen := make(map[string]int)
	for i, row := range t.Rows {
		rep.Conversations++
		n := i + 1
		name := row[store.ColName]
		add := func(c Check, detail, suggested string) *Finding {
			rep.Findings = append(rep.Findings, Finding{Table: "conversations", Check: c, Row: n, Subject: name, Detail: detail, Suggested: suggested})
			return &rep.Findings[len(rep.Findings)-1]
		}

		if first, dup := seen[name]; dup {
			add(CheckDuplicateName, fmt.Sprintf("same display name as row %d; later rows are never updated", first), "")
		} else {
			seen[name] = n
		}
		if strings.TrimSpace(row[store.ColPhone]) == "" {
			add(CheckPhonePending, "phone unknown; looked up on next harvest", "")
		}
		if d := strings.TrimSpace(row[store.ColDate]); d != "" {
			if _, err := time.Parse(reldate.Layout, d); err != nil {
				add(CheckRelativeDate, fmt.Sprintf("%s=%q", store.ColDate, d), "")
			}
		}
		if lim := a.opts.TranscriptLimit; lim > 0 {
			if chars := utf8.RuneCountInString(row[store.ColChat]); chars > lim {
				f := add(CheckOverLimit, fmt.Sprintf("%d characters, limit %d", chars, lim), "truncate")
				if a.opts.Apply == ApplySafe {
					row[store.ColChat], _ = merge.Truncate(row[store.ColChat], lim)
					f.Applied = true
					changed = true
				}
			}
		}
	}
	if changed {
		if err := a.conversations.Save(ctx, t); err != nil {
			return fmt.Errorf("save conversations: %w", err)
		}
	}
	return nil
}
