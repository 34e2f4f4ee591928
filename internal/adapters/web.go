package adapters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chat-harvest-job/internal/browser"
	"chat-harvest-job/internal/scroll"
)

// Selectors are the XPath selectors of the web client.
type Selectors struct {
	ChatList      string `mapstructure:"chat_list" yaml:"chat_list"`
	ChatArea      string `mapstructure:"chat_area" yaml:"chat_area"`
	ChatContent   string `mapstructure:"chat_content" yaml:"chat_content"`
	ChatRow       string `mapstructure:"chat_row" yaml:"chat_row"`
	LoadMore      string `mapstructure:"load_more" yaml:"load_more"`
	ProfileButton string `mapstructure:"profile_button" yaml:"profile_button"`
	PanelRoot     string `mapstructure:"panel_root" yaml:"panel_root"`
	// RowAtOffset addresses a list row by pixel offset; %s is the offset.
	RowAtOffset string `mapstructure:"row_at_offset" yaml:"row_at_offset"`
}

func DefaultSelectors() Selectors {
	return Selectors{
		ChatList:      "//div[@role='grid']",
		ChatArea:      "//div[@role='application']/parent::*",
		ChatContent:   "//div[@class='xnpuxes copyable-area']",
		ChatRow:       "//div[@role='row']",
		LoadMore:      "//div[contains(text(), 'Нажмите здесь, чтобы получить свои старые сообщения')]",
		ProfileButton: "//div[@id='main']/header",
		PanelRoot:     "//body",
		RowAtOffset:   "//div[@role='grid']//div[contains(@style, 'translateY(%spx)')]",
	}
}

// WebOptions configures the web connector.
type WebOptions struct {
	TargetURL    string
	Selectors    Selectors
	OpenTimeout  time.Duration
	ContactGrace time.Duration
	Sleep        scroll.SleepFunc
}

// WebFactory opens web-client sessions through a browser launcher.
type WebFactory struct {
	launcher browser.Launcher
	opts     WebOptions
}

func NewWebFactory(l browser.Launcher, opts WebOptions) (*WebFactory, error) {
	if l == nil {
		return nil, errors.New("launcher is required")
	}
	if strings.TrimSpace(opts.TargetURL) == "" {
		return nil, errors.New("TargetURL is required")
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	if opts.ContactGrace <= 0 {
		opts.ContactGrace = 2 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = scroll.Sleep
	}
	if opts.Selectors == (Selectors{}) {
		opts.Selectors = DefaultSelectors()
	}
	return &WebFactory{launcher: l, opts: opts}, nil
}

func (f *WebFactory) Name() string { return "web" }

func (f *WebFactory) Open(ctx context.Context, profile string) (ChatClient, error) {
	drv, err := f.launcher.Launch(ctx, profile)
	if err != nil {
		return nil, err
	}
	return NewWebClient(drv, f.opts), nil
}

// WebClient implements ChatClient over a browser.Driver.
type WebClient struct {
	drv  browser.Driver
	opts WebOptions
	sel  Selectors
}

func NewWebClient(drv browser.Driver, opts WebOptions) *WebClient {
	if opts.Selectors == (Selectors{}) {
		opts.Selectors = DefaultSelectors()
	}
	if opts.Sleep == nil {
		opts.Sleep = scroll.Sleep
	}
	return &WebClient{drv: drv, opts: opts, sel: opts.Selectors}
}

func (c *WebClient) Open(ctx context.Context) error {
	if err := c.drv.Navigate(ctx, c.opts.TargetURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return c.drv.WaitFor(ctx, c.sel.ChatList, c.opts.OpenTimeout)
}

func (c *WebClient) Rows(ctx context.Context) ([]Row, error) {
	style, okStyle, err := c.drv.Attribute(ctx, c.sel.ChatList, "style")
	if err != nil {
		return nil, err
	}
	count, okCount, err := c.drv.Attribute(ctx, c.sel.ChatList, "aria-rowcount")
	if err != nil {
		return nil, err
	}
	if !okStyle || !okCount || style == "" || count == "" {
		return nil, ErrNoGeometry
	}
	g, err := ParseGeometry(style, count)
	if err != nil {
		return nil, err
	}
	return g.Rows(), nil
}

func (c *WebClient) rowSelector(r Row) string {
	return fmt.Sprintf(c.sel.RowAtOffset, strconv.FormatFloat(r.Offset, 'f', -1, 64))
}

func (c *WebClient) RowVisible(ctx context.Context, r Row) (bool, error) {
	return c.drv.Visible(ctx, c.rowSelector(r))
}

func (c *WebClient) RowLabel(ctx context.Context, r Row) (Label, error) {
	text, err := c.drv.Text(ctx, c.rowSelector(r))
	if err != nil {
		return Label{}, err
	}
	return ParseLabel(text), nil
}

func (c *WebClient) OpenRow(ctx context.Context, r Row) error {
	return c.drv.Click(ctx, c.rowSelector(r))
}

func (c *WebClient) MessagePane() scroll.Region {
	return paneRegion{drv: c.drv, sel: c.sel.ChatArea}
}

func (c *WebClient) LoadMore() scroll.Affordance {
	return loadMore{drv: c.drv, sel: c.sel.LoadMore}
}

func (c *WebClient) MessageCount(ctx context.Context) (int, error) {
	return c.drv.Count(ctx, c.sel.ChatRow)
}

func (c *WebClient) Transcript(ctx context.Context) (string, error) {
	return c.drv.Text(ctx, c.sel.ChatContent)
}

func (c *WebClient) ContactPanel(ctx context.Context) (string, bool, error) {
	visible, err := c.drv.Visible(ctx, c.sel.ProfileButton)
	if err != nil {
		return "", false, err
	}
	if !visible {
		return "", false, nil
	}
	if err := c.drv.Click(ctx, c.sel.ProfileButton); err != nil {
		return "", false, err
	}
	if err := c.opts.Sleep(ctx, c.opts.ContactGrace); err != nil {
		return "", false, err
	}
	html, err := c.drv.OuterHTML(ctx, c.sel.PanelRoot)
	if err != nil {
		return "", false, err
	}
	return html, true, nil
}

func (c *WebClient) Close() error {
	return c.drv.Close()
}

type paneRegion struct {
	drv browser.Driver
	sel string
}

func (p paneRegion) ScrollOffset(ctx context.Context) (float64, error) {
	return p.drv.ScrollTop(ctx, p.sel)
}

func (p paneRegion) ScrollBy(ctx context.Context, delta float64) error {
	return p.drv.ScrollBy(ctx, p.sel, delta)
}

type loadMore struct {
	drv browser.Driver
	sel string
}

func (l loadMore) Present(ctx context.Context) (bool, error) {
	return l.drv.Visible(ctx, l.sel)
}

func (l loadMore) Activate(ctx context.Context) error {
	return l.drv.Click(ctx, l.sel)
}
