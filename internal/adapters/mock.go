package adapters

import (
	"context"
	"fmt"
	"html"
	"math/rand"
	"strings"

	"chat-harvest-job/internal/scroll"
)

// ─────────────────────────────────────────────────────────────────────────────
// Mock connector (offline-safe)
// ─────────────────────────────────────────────────────────────────────────────

// MockFactory produces synthetic chat lists for demos and tests. A profile
// always gets the same chats, so a second run over the same table converges
// to skips. No browser is started.
type MockFactory struct {
	chats     int
	seed      int64
	lineStep  float64
	batchSize int
}

type MockOptions struct {
	Chats int   // chats per profile; 0 = 12
	Seed  int64 // mixed into the per-profile seed
}

func NewMockFactory(opts MockOptions) *MockFactory {
	n := opts.Chats
	if n <= 0 {
		n = 12
	}
	return &MockFactory{chats: n, seed: opts.Seed, lineStep: 120, batchSize: 20}
}

func (f *MockFactory) Name() string { return "mock" }

func (f *MockFactory) Open(ctx context.Context, profile string) (ChatClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := rand.New(rand.NewSource(int64(fnv64(profile)) ^ f.seed))
	return &MockClient{chats: synthChats(r, profile, f.chats, f.batchSize), lineStep: f.lineStep, batch: f.batchSize}, nil
}

var mockLabels = []string{"сегодня", "вчера", "понедельник", "пятница", "11.04.2024", "03.02.2024"}

type mockChat struct {
	name     string
	label    string
	lines    []string
	phone    string
	official bool
	hidden   bool
	lazy     int // batches that arrive by scrolling
	older    int // batches behind the load-more affordance
}

func synthChats(r *rand.Rand, profile string, n, batch int) []*mockChat {
	out := make([]*mockChat, n)
	for i := range out {
		c := &mockChat{
			name:   fmt.Sprintf("%s contact %02d", profile, i+1),
			label:  mockLabels[r.Intn(len(mockLabels))],
			lazy:   r.Intn(3),
			older:  r.Intn(2),
			hidden: i%7 == 6,
		}
		switch {
		case i%5 == 4:
			c.official = true
		case i%3 != 2:
			c.phone = fmt.Sprintf("+7 9%02d %03d-%02d-%02d", r.Intn(100), r.Intn(1000), r.Intn(100), r.Intn(100))
		}
		total := batch * (1 + c.lazy + c.older)
		for j := 0; j < total; j++ {
			c.lines = append(c.lines, fmt.Sprintf("[%02d:%02d] message %d", j/60%24, j%60, j+1))
		}
		out[i] = c
	}
	return out
}

// MockClient implements ChatClient over synthetic chats.
type MockClient struct {
	chats    []*mockChat
	lineStep float64
	batch    int

	open   *mockChat
	pane   *mockPane
	closed bool
}

func (m *MockClient) Open(ctx context.Context) error { return ctx.Err() }

func (m *MockClient) Rows(ctx context.Context) ([]Row, error) {
	g := Geometry{TotalHeight: 72 * float64(len(m.chats)), RowCount: len(m.chats)}
	return g.Rows(), nil
}

func (m *MockClient) chat(r Row) (*mockChat, error) {
	if r.Index < 0 || r.Index >= len(m.chats) {
		return nil, fmt.Errorf("row %d out of range", r.Index)
	}
	return m.chats[r.Index], nil
}

func (m *MockClient) RowVisible(ctx context.Context, r Row) (bool, error) {
	c, err := m.chat(r)
	if err != nil {
		return false, err
	}
	return !c.hidden, nil
}

func (m *MockClient) RowLabel(ctx context.Context, r Row) (Label, error) {
	c, err := m.chat(r)
	if err != nil {
		return Label{}, err
	}
	return ParseLabel(c.name + "\n" + c.label + "\n" + c.lines[len(c.lines)-1]), nil
}

func (m *MockClient) OpenRow(ctx context.Context, r Row) error {
	c, err := m.chat(r)
	if err != nil {
		return err
	}
	m.open = c
	loaded := m.batch
	m.pane = &mockPane{
		loaded:  loaded,
		lazy:    c.lazy,
		older:   c.older,
		batch:   m.batch,
		step:    m.lineStep,
		offset:  float64(loaded) * m.lineStep,
		maxLine: len(c.lines),
	}
	return nil
}

func (m *MockClient) MessagePane() scroll.Region { return m.pane }

func (m *MockClient) LoadMore() scroll.Affordance { return m.pane }

func (m *MockClient) MessageCount(ctx context.Context) (int, error) {
	if m.pane == nil {
		return 0, nil
	}
	return m.pane.loaded, nil
}

func (m *MockClient) Transcript(ctx context.Context) (string, error) {
	if m.open == nil {
		return "", fmt.Errorf("no chat open")
	}
	lines := m.open.lines[len(m.open.lines)-m.pane.loaded:]
	return strings.Join(lines, "\n"), nil
}

func (m *MockClient) ContactPanel(ctx context.Context) (string, bool, error) {
	if m.open == nil {
		return "", false, nil
	}
	c := m.open
	var b strings.Builder
	b.WriteString(`<html><body><div id="main"><header>`)
	if c.official {
		b.WriteString(`<span data-icon="wa-chat-psa"></span>`)
	}
	b.WriteString(html.EscapeString(c.name))
	b.WriteString(`</header></div><div id="drawer"><div class="copyable-area"><span>`)
	b.WriteString(html.EscapeString(c.name))
	b.WriteString(`</span></div>`)
	if c.phone != "" {
		b.WriteString(`<div><span>` + html.EscapeString(c.phone) + `</span></div>`)
	}
	b.WriteString(`</div></body></html>`)
	return b.String(), true, nil
}

func (m *MockClient) Close() error {
	m.closed = true
	return nil
}

// mockPane simulates a message pane that loads one batch whenever it is
// scrolled to the top, then exposes the remaining batches behind a load-more
// affordance.
type mockPane struct {
	offset  float64
	loaded  int
	lazy    int
	older   int
	batch   int
	step    float64
	maxLine int
}

func (p *mockPane) ScrollOffset(ctx context.Context) (float64, error) {
	return p.offset, ctx.Err()
}

func (p *mockPane) ScrollBy(ctx context.Context, delta float64) error {
	p.offset += delta
	if p.offset > 0 {
		return nil
	}
	p.offset = 0
	if p.lazy > 0 {
		p.lazy--
		p.grow()
	}
	return nil
}

func (p *mockPane) Present(ctx context.Context) (bool, error) {
	return p.lazy == 0 && p.older > 0, nil
}

func (p *mockPane) Activate(ctx context.Context) error {
	if p.older == 0 {
		return fmt.Errorf("load-more not present")
	}
	p.older--
	p.grow()
	return nil
}

func (p *mockPane) grow() {
	n := p.batch
	if p.loaded+n > p.maxLine {
		n = p.maxLine - p.loaded
	}
	p.loaded += n
	p.offset += float64(n) * p.step
}

// fnv64 returns a simple 64-bit hash for deterministic mock data.
func fnv64(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	var h uint64 = offset64
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
