package harvest

import (
	"errors"
	"fmt"
	"time"
)

// Error classes. Wrapped errors are tested with errors.Is.
var (
	// ErrMissingInput: a table or a required list attribute is absent.
	ErrMissingInput = errors.New("missing input")
	// ErrTransientUI: one row could not be read or clicked.
	ErrTransientUI = errors.New("transient ui failure")
	// ErrProfile: a profile could not be opened, navigated or saved.
	ErrProfile = errors.New("profile failure")
)

type RowStatus int

const (
	RowCreated RowStatus = iota
	RowUpdated
	RowSkipped
	RowInvisible
	RowFailed
)

func (s RowStatus) String() string {
	switch s {
	case RowCreated:
		return "created"
	case RowUpdated:
		return "updated"
	case RowSkipped:
		return "skipped"
	case RowInvisible:
		return "invisible"
	default:
		return "failed"
	}
}

// RowResult is the outcome of one chat-list row.
type RowResult struct {
	Index     int
	Name      string
	Status    RowStatus
	Truncated bool
	Err       error
}

// Counts aggregates row results.
type Counts struct {
	Created   int
	Updated   int
	Skipped   int
	Invisible int
	Failed    int
}

func (c *Counts) Add(s RowStatus) {
	switch s {
	case RowCreated:
		c.Created++
	case RowUpdated:
		c.Updated++
	case RowSkipped:
		c.Skipped++
	case RowInvisible:
		c.Invisible++
	default:
		c.Failed++
	}
}

func (c *Counts) Merge(o Counts) {
	c.Created += o.Created
	c.Updated += o.Updated
	c.Skipped += o.Skipped
	c.Invisible += o.Invisible
	c.Failed += o.Failed
}

type ProfileStatus int

const (
	// ProfileDone: rows processed and the working set saved.
	ProfileDone ProfileStatus = iota
	// ProfileSkipped: nothing to harvest (no list geometry). Not stamped.
	ProfileSkipped
	// ProfileFailed: open, navigation or save failed. Not stamped.
	ProfileFailed
)

func (s ProfileStatus) String() string {
	switch s {
	case ProfileDone:
		return "done"
	case ProfileSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// ProfileResult is the outcome of one profile harvest.
type ProfileResult struct {
	Profile  string
	Status   ProfileStatus
	Rows     int // rows the list reported
	Counts   Counts
	Stamped  bool
	Err      error
	Duration time.Duration
}

// PassSummary is the outcome of one pass over the eligible profiles.
type PassSummary struct {
	RunID    string
	Profiles int // rows in the profile table
	Eligible []string
	Results  []ProfileResult
	Counts   Counts
	Duration time.Duration
}

func (s PassSummary) count(st ProfileStatus) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == st {
			n++
		}
	}
	return n
}

func (s PassSummary) Done() int    { return s.count(ProfileDone) }
func (s PassSummary) Skipped() int { return s.count(ProfileSkipped) }
func (s PassSummary) Failed() int  { return s.count(ProfileFailed) }

// String renders the one-line key=value summary printed at the end of a pass.
func (s PassSummary) String() string {
	return fmt.Sprintf("run_id=%s profiles=%d eligible=%d done=%d skipped=%d failed=%d new=%d updated=%d unchanged=%d invisible=%d row_errors=%d duration=%s",
		s.RunID, s.Profiles, len(s.Eligible), s.Done(), s.Skipped(), s.Failed(),
		s.Counts.Created, s.Counts.Updated, s.Counts.Skipped, s.Counts.Invisible, s.Counts.Failed,
		s.Duration.Truncate(time.Millisecond))
}
