package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-harvest-job/internal/browser"
	"chat-harvest-job/internal/contact"
	"chat-harvest-job/internal/scroll"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestParseGeometry(t *testing.T) {
	g, err := ParseGeometry("height: 4320px;", "60")
	require.NoError(t, err)
	assert.Equal(t, 72.0, g.RowHeight())

	rows := g.Rows()
	require.Len(t, rows, 60)
	assert.Equal(t, Row{Index: 0, Offset: 0}, rows[0])
	assert.Equal(t, Row{Index: 1, Offset: 72}, rows[1])
	assert.Equal(t, Row{Index: 59, Offset: 4248}, rows[59])
}

func TestParseGeometry_Missing(t *testing.T) {
	for _, tc := range []struct{ style, count string }{
		{"", "60"},
		{"height: auto;", "60"},
		{"height: 4320px;", ""},
		{"height: 4320px;", "0"},
	} {
		_, err := ParseGeometry(tc.style, tc.count)
		assert.ErrorIs(t, err, ErrNoGeometry, "style=%q count=%q", tc.style, tc.count)
	}
}

func TestParseLabel(t *testing.T) {
	assert.Equal(t, Label{Name: "Alice", Date: "вчера"}, ParseLabel("Alice\nвчера\nsee you"))
	assert.Equal(t, Label{Name: "Bob"}, ParseLabel("Bob"))
}

// fakeDriver answers by selector from maps and records clicks.
type fakeDriver struct {
	attrs   map[string]map[string]string
	visible map[string]bool
	text    map[string]string
	html    map[string]string
	count   map[string]int
	clicks  []string
	waited  []string
	nav     string
	closed  bool
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error { d.nav = url; return nil }

func (d *fakeDriver) WaitFor(ctx context.Context, sel string, timeout time.Duration) error {
	d.waited = append(d.waited, sel)
	return nil
}

func (d *fakeDriver) Visible(ctx context.Context, sel string) (bool, error) {
	return d.visible[sel], nil
}

func (d *fakeDriver) Attribute(ctx context.Context, sel, name string) (string, bool, error) {
	a, ok := d.attrs[sel]
	if !ok {
		return "", false, browser.ErrNotFound
	}
	v, has := a[name]
	return v, has, nil
}

func (d *fakeDriver) Text(ctx context.Context, sel string) (string, error) {
	v, ok := d.text[sel]
	if !ok {
		return "", browser.ErrNotFound
	}
	return v, nil
}

func (d *fakeDriver) OuterHTML(ctx context.Context, sel string) (string, error) {
	return d.html[sel], nil
}

func (d *fakeDriver) Count(ctx context.Context, sel string) (int, error) { return d.count[sel], nil }

func (d *fakeDriver) Click(ctx context.Context, sel string) error {
	d.clicks = append(d.clicks, sel)
	return nil
}

func (d *fakeDriver) ScrollBy(ctx context.Context, sel string, dy float64) error { return nil }

func (d *fakeDriver) ScrollTop(ctx context.Context, sel string) (float64, error) { return 0, nil }

func (d *fakeDriver) Close() error { d.closed = true; return nil }

func TestWebClient_RowsAndLabels(t *testing.T) {
	sel := DefaultSelectors()
	row1 := "//div[@role='grid']//div[contains(@style, 'translateY(72px)')]"
	d := &fakeDriver{
		attrs: map[string]map[string]string{
			sel.ChatList: {"style": "height: 144px;", "aria-rowcount": "2"},
		},
		visible: map[string]bool{row1: true},
		text:    map[string]string{row1: "Carol\nсегодня\nhi"},
	}
	c := NewWebClient(d, WebOptions{TargetURL: "https://web.example"})

	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, "https://web.example", d.nav)
	assert.Equal(t, []string{sel.ChatList}, d.waited)

	rows, err := c.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	vis, err := c.RowVisible(context.Background(), rows[1])
	require.NoError(t, err)
	assert.True(t, vis)
	vis, err = c.RowVisible(context.Background(), rows[0])
	require.NoError(t, err)
	assert.False(t, vis)

	l, err := c.RowLabel(context.Background(), rows[1])
	require.NoError(t, err)
	assert.Equal(t, Label{Name: "Carol", Date: "сегодня"}, l)

	require.NoError(t, c.OpenRow(context.Background(), rows[1]))
	assert.Equal(t, []string{row1}, d.clicks)

	require.NoError(t, c.Close())
	assert.True(t, d.closed)
}

func TestWebClient_RowsWithoutGeometry(t *testing.T) {
	sel := DefaultSelectors()
	d := &fakeDriver{attrs: map[string]map[string]string{sel.ChatList: {"style": "height: 144px;"}}}
	_, err := NewWebClient(d, WebOptions{}).Rows(context.Background())
	assert.ErrorIs(t, err, ErrNoGeometry)
}

func TestWebClient_ContactPanel(t *testing.T) {
	sel := DefaultSelectors()
	d := &fakeDriver{
		visible: map[string]bool{sel.ProfileButton: true},
		html:    map[string]string{sel.PanelRoot: "<body/>"},
	}
	var slept time.Duration
	c := NewWebClient(d, WebOptions{ContactGrace: 2 * time.Second, Sleep: func(_ context.Context, dur time.Duration) error {
		slept += dur
		return nil
	}})

	html, ok, err := c.ContactPanel(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "<body/>", html)
	assert.Equal(t, []string{sel.ProfileButton}, d.clicks)
	assert.Equal(t, 2*time.Second, slept)

	d.visible[sel.ProfileButton] = false
	_, ok, err = c.ContactPanel(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

type fakeLauncher struct {
	drv *fakeDriver
	err error
}

func (l fakeLauncher) Launch(ctx context.Context, profile string) (browser.Driver, error) {
	return l.drv, l.err
}

func TestNewWebFactory(t *testing.T) {
	_, err := NewWebFactory(nil, WebOptions{TargetURL: "x"})
	assert.Error(t, err)
	_, err = NewWebFactory(fakeLauncher{}, WebOptions{})
	assert.Error(t, err)

	f, err := NewWebFactory(fakeLauncher{drv: &fakeDriver{}}, WebOptions{TargetURL: "x"})
	require.NoError(t, err)
	assert.Equal(t, "web", f.Name())
	c, err := f.Open(context.Background(), "alpha")
	require.NoError(t, err)
	assert.NotNil(t, c)

	boom := errors.New("boom")
	f, err = NewWebFactory(fakeLauncher{err: boom}, WebOptions{TargetURL: "x"})
	require.NoError(t, err)
	_, err = f.Open(context.Background(), "alpha")
	assert.ErrorIs(t, err, boom)
}

func TestMock_Deterministic(t *testing.T) {
	f := NewMockFactory(MockOptions{Chats: 8})
	a, err := f.Open(context.Background(), "alpha")
	require.NoError(t, err)
	b, err := f.Open(context.Background(), "alpha")
	require.NoError(t, err)

	rows, err := a.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 8)
	for _, r := range rows {
		la, err := a.RowLabel(context.Background(), r)
		require.NoError(t, err)
		lb, err := b.RowLabel(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, la, lb)
	}

	vis, err := a.RowVisible(context.Background(), rows[6])
	require.NoError(t, err)
	assert.False(t, vis, "every 7th row is hidden")
}

func TestMock_SettleLoadsWholeHistory(t *testing.T) {
	f := NewMockFactory(MockOptions{Chats: 6})
	c, err := f.Open(context.Background(), "beta")
	require.NoError(t, err)
	rows, err := c.Rows(context.Background())
	require.NoError(t, err)

	ex := contact.NewExtractor(contact.Selectors{}, "")
	for _, r := range rows {
		require.NoError(t, c.OpenRow(context.Background(), r))
		mc := c.(*MockClient)
		want := len(mc.open.lines)

		_, err := scroll.Settle(context.Background(), c.MessagePane(), c.LoadMore(), scroll.Params{Sleep: noSleep}, 0)
		require.NoError(t, err)
		n, err := c.MessageCount(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, n)

		html, ok, err := c.ContactPanel(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		got := ex.Extract(html)
		switch {
		case mc.open.official:
			assert.Equal(t, contact.DefaultOfficialSentinel, got)
		default:
			assert.Equal(t, mc.open.phone, got)
		}
	}
}
