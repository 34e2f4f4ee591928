// Package adapters contains the messaging-client connectors.
//
// All client-specific knowledge (selectors, row geometry, panel layout) lives
// behind ChatClient. The harvest only sees rows, labels, a message pane
// region, a load-more affordance and a contact-panel snapshot. The default
// build ships a web connector over a browser.Driver and an offline mock.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chat-harvest-job/internal/scroll"
)

// ErrNoGeometry means the chat list did not expose its height or row count.
var ErrNoGeometry = errors.New("chat list geometry unavailable")

// Row addresses one virtualized chat-list row.
type Row struct {
	Index  int
	Offset float64 // pixel offset inside the list
}

// Label is the two-line text of a chat-list row.
type Label struct {
	Name string
	Date string // relative or absolute date label, as displayed
}

// ParseLabel splits row text into name and date lines.
func ParseLabel(text string) Label {
	lines := strings.Split(text, "\n")
	l := Label{Name: lines[0]}
	if len(lines) > 1 {
		l.Date = lines[1]
	}
	return l
}

// ChatClient is one opened messaging-client session for one profile.
type ChatClient interface {
	// Open navigates to the client and waits for the chat list.
	Open(ctx context.Context) error
	// Rows enumerates the currently addressable chat-list rows.
	Rows(ctx context.Context) ([]Row, error)
	RowVisible(ctx context.Context, r Row) (bool, error)
	RowLabel(ctx context.Context, r Row) (Label, error)
	OpenRow(ctx context.Context, r Row) error

	MessagePane() scroll.Region
	LoadMore() scroll.Affordance
	MessageCount(ctx context.Context) (int, error)
	Transcript(ctx context.Context) (string, error)

	// ContactPanel opens the contact-info panel of the open chat and returns an
	// HTML snapshot. ok is false when the panel cannot be opened.
	ContactPanel(ctx context.Context) (html string, ok bool, err error)

	Close() error
}

// Factory opens a ChatClient bound to a profile's browser identity.
type Factory interface {
	Name() string
	Open(ctx context.Context, profile string) (ChatClient, error)
}

// Geometry is the virtualized list layout: every row has the same height.
type Geometry struct {
	TotalHeight float64
	RowCount    int
}

// ParseGeometry reads the list's inline style (e.g. "height: 4320px;") and
// its aria-rowcount attribute. Non-digits are stripped from the style.
func ParseGeometry(style, rowCount string) (Geometry, error) {
	h, err := strconv.Atoi(digitOnly(style))
	if err != nil {
		return Geometry{}, fmt.Errorf("%w: height %q", ErrNoGeometry, style)
	}
	n, err := strconv.Atoi(strings.TrimSpace(rowCount))
	if err != nil || n <= 0 {
		return Geometry{}, fmt.Errorf("%w: row count %q", ErrNoGeometry, rowCount)
	}
	return Geometry{TotalHeight: float64(h), RowCount: n}, nil
}

func (g Geometry) RowHeight() float64 {
	if g.RowCount == 0 {
		return 0
	}
	return g.TotalHeight / float64(g.RowCount)
}

func (g Geometry) Rows() []Row {
	rh := g.RowHeight()
	out := make([]Row, g.RowCount)
	for i := range out {
		out[i] = Row{Index: i, Offset: rh * float64(i)}
	}
	return out
}

func digitOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
