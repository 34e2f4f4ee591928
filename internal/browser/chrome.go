package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeLauncher starts a Chrome instance with a persistent user-data
// directory per profile: <ProfileRoot>/<profile>.
type ChromeLauncher struct {
	ProfileRoot  string
	Headless     bool
	ExecPath     string
	ClickTimeout time.Duration
}

func (l *ChromeLauncher) Launch(ctx context.Context, profile string) (Driver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(filepath.Join(l.ProfileRoot, profile)),
		chromedp.Flag("headless", l.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
	)
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)
	// first Run starts the browser
	if err := chromedp.Run(tab); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("launch chrome for %q: %w", profile, err)
	}

	clickTimeout := l.ClickTimeout
	if clickTimeout <= 0 {
		clickTimeout = 10 * time.Second
	}
	return &chromeDriver{
		tab:          tab,
		clickTimeout: clickTimeout,
		closeFn: func() error {
			err := chromedp.Cancel(tab)
			tabCancel()
			allocCancel()
			return err
		},
	}, nil
}

type chromeDriver struct {
	tab          context.Context
	clickTimeout time.Duration
	closeFn      func() error
}

// run executes actions on the tab, aborting when either ctx or the tab ends.
func (d *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// probe evaluates body with the first node matching sel bound to n. body must
// return a JSON-serialisable value; a missing node yields {"found": false}.
func (d *chromeDriver) probe(ctx context.Context, sel, body string, out any) error {
	q, err := json.Marshal(sel)
	if err != nil {
		return err
	}
	js := fmt.Sprintf(`(() => {
  const n = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  if (!n) return {found: false};
  return Object.assign({found: true}, (() => { %s })());
})()`, q, body)
	return d.run(ctx, chromedp.Evaluate(js, out))
}

type probeResult struct {
	Found   bool    `json:"found"`
	Visible bool    `json:"visible"`
	Has     bool    `json:"has"`
	Str     string  `json:"str"`
	Num     float64 `json:"num"`
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *chromeDriver) WaitFor(ctx context.Context, sel string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := d.run(waitCtx, chromedp.WaitVisible(sel, chromedp.BySearch)); err != nil {
		return fmt.Errorf("wait for %s: %w", sel, err)
	}
	return nil
}

func (d *chromeDriver) Visible(ctx context.Context, sel string) (bool, error) {
	var r probeResult
	err := d.probe(ctx, sel, `
    const s = getComputedStyle(n);
    const box = n.getBoundingClientRect();
    return {visible: s.visibility !== 'hidden' && box.width > 0 && box.height > 0};`, &r)
	if err != nil {
		return false, err
	}
	return r.Found && r.Visible, nil
}

func (d *chromeDriver) Attribute(ctx context.Context, sel, name string) (string, bool, error) {
	q, err := json.Marshal(name)
	if err != nil {
		return "", false, err
	}
	var r probeResult
	err = d.probe(ctx, sel, fmt.Sprintf(`
    const v = n.getAttribute(%s);
    return {has: v !== null, str: v === null ? "" : v};`, q), &r)
	if err != nil {
		return "", false, err
	}
	if !r.Found {
		return "", false, fmt.Errorf("%s: %w", sel, ErrNotFound)
	}
	return r.Str, r.Has, nil
}

func (d *chromeDriver) Text(ctx context.Context, sel string) (string, error) {
	return d.stringProbe(ctx, sel, `return {str: n.innerText || ""};`)
}

func (d *chromeDriver) OuterHTML(ctx context.Context, sel string) (string, error) {
	return d.stringProbe(ctx, sel, `return {str: n.outerHTML};`)
}

func (d *chromeDriver) stringProbe(ctx context.Context, sel, body string) (string, error) {
	var r probeResult
	if err := d.probe(ctx, sel, body, &r); err != nil {
		return "", err
	}
	if !r.Found {
		return "", fmt.Errorf("%s: %w", sel, ErrNotFound)
	}
	return r.Str, nil
}

func (d *chromeDriver) Count(ctx context.Context, sel string) (int, error) {
	q, err := json.Marshal(sel)
	if err != nil {
		return 0, err
	}
	var n int
	js := fmt.Sprintf(`document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null).snapshotLength`, q)
	if err := d.run(ctx, chromedp.Evaluate(js, &n)); err != nil {
		return 0, err
	}
	return n, nil
}

func (d *chromeDriver) Click(ctx context.Context, sel string) error {
	clickCtx, cancel := context.WithTimeout(ctx, d.clickTimeout)
	defer cancel()
	if err := d.run(clickCtx, chromedp.Click(sel, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (d *chromeDriver) ScrollBy(ctx context.Context, sel string, dy float64) error {
	var r probeResult
	if err := d.probe(ctx, sel, fmt.Sprintf(`n.scrollBy(0, %g); return {};`, dy), &r); err != nil {
		return err
	}
	if !r.Found {
		return fmt.Errorf("%s: %w", sel, ErrNotFound)
	}
	return nil
}

func (d *chromeDriver) ScrollTop(ctx context.Context, sel string) (float64, error) {
	var r probeResult
	if err := d.probe(ctx, sel, `return {num: n.scrollTop};`, &r); err != nil {
		return 0, err
	}
	if !r.Found {
		return 0, fmt.Errorf("%s: %w", sel, ErrNotFound)
	}
	return r.Num, nil
}

func (d *chromeDriver) Close() error {
	return d.closeFn()
}
