package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	defaultActionTimeout = 30 * time.Second
	defaultWindowWidth   = 1366
	defaultWindowHeight  = 900
	maxElements          = 60
)

// Element is one interactive node on the page. Selector is stable for the
// lifetime of the snapshot it came from.
type Element struct {
	Selector string `json:"selector"`
	Tag      string `json:"tag"`
	Kind     string `json:"kind,omitempty"`
	Label    string `json:"label"`
}

type Page struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Text     string    `json:"text"`
	Elements []Element `json:"elements"`
}

// Driver is the subset of browser control the agent loop needs.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Back(ctx context.Context) error
	Wait(ctx context.Context, d time.Duration) error
	Snapshot(ctx context.Context, maxText int) (Page, error)
	Close() error
}

type Options struct {
	ProfileDir string
	Headless   bool
	Timeout    time.Duration
	Logger     *zap.Logger
}

type Chrome struct {
	allocCancel   context.CancelFunc
	ctx           context.Context
	cancel        context.CancelFunc
	actionTimeout time.Duration
	logger        *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Open starts a Chrome instance bound to opts.ProfileDir. The browser lives
// until Close, independent of ctx, which only bounds the startup.
func Open(ctx context.Context, opts Options) (*Chrome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(defaultWindowWidth, defaultWindowHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.ProfileDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	c := &Chrome{
		allocCancel:   allocCancel,
		ctx:           browserCtx,
		cancel:        cancel,
		actionTimeout: timeout,
		logger:        logger.With(zap.String("component", "chrome"), zap.String("profile", opts.ProfileDir)),
	}
	if err := c.start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	c.logger.Info("browser started", zap.Bool("headless", opts.Headless))
	return c, nil
}

// startBrowser is the first Run on a browser context. It allocates the
// process and attaches the tab, both bound to the context it is given.
var startBrowser = func(ctx context.Context) error {
	return chromedp.Run(ctx)
}

// start launches the browser on the long-lived browser context. Startup is
// bounded by a watchdog and by ctx, either of which tears the browser down;
// a timeout on the context itself would kill Chrome once start returned.
func (c *Chrome) start(ctx context.Context) error {
	watchdog := time.AfterFunc(c.actionTimeout, c.cancel)
	stop := context.AfterFunc(ctx, c.cancel)
	err := startBrowser(c.ctx)
	stoppedWatchdog := watchdog.Stop()
	stoppedCtx := stop()

	switch {
	case !stoppedCtx:
		return ctx.Err()
	case !stoppedWatchdog:
		return fmt.Errorf("browser did not start within %s", c.actionTimeout)
	case err != nil:
		return err
	}
	return nil
}

// run executes actions on the browser context, bounded by both the caller's
// ctx and the per-action timeout.
func (c *Chrome) run(ctx context.Context, what string, actions ...chromedp.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%s: browser is closed", what)
	}

	runCtx, cancel := context.WithTimeout(c.ctx, c.actionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	c.logger.Debug("navigate", zap.String("url", url))
	if err := c.run(ctx, "navigate", chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	c.logger.Debug("click", zap.String("selector", selector))
	if err := c.run(ctx, "click", chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) Type(ctx context.Context, selector, text string) error {
	c.logger.Debug("type", zap.String("selector", selector), zap.Int("chars", len(text)))
	if err := c.run(ctx, "type",
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) Back(ctx context.Context) error {
	if err := c.run(ctx, "back", chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return nil
}

func (c *Chrome) Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Snapshot tags every visible interactive element with a data attribute and
// returns selectors for them, along with the page text cut to maxText runes.
func (c *Chrome) Snapshot(ctx context.Context, maxText int) (Page, error) {
	var raw json.RawMessage
	script := fmt.Sprintf(snapshotScript, maxElements)
	if err := c.run(ctx, "snapshot", chromedp.Evaluate(script, &raw)); err != nil {
		return Page{}, fmt.Errorf("snapshot page: %w", err)
	}
	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		return Page{}, fmt.Errorf("decode snapshot: %w", err)
	}
	page.Text = trimRunes(strings.TrimSpace(page.Text), maxText)
	return page, nil
}

func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := chromedp.Cancel(c.ctx); err != nil {
		c.logger.Debug("cancel browser", zap.Error(err))
	}
	c.cancel()
	c.allocCancel()
	c.logger.Info("browser closed")
	return nil
}

func trimRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

const snapshotScript = `(() => {
  const limit = %d;
  const nodes = document.querySelectorAll('a[href], button, input, select, textarea, [role="button"], [onclick]');
  const elements = [];
  let n = 0;
  for (const el of nodes) {
    if (elements.length >= limit) break;
    const rect = el.getBoundingClientRect();
    if (rect.width === 0 && rect.height === 0) continue;
    if (el.type === 'hidden') continue;
    n++;
    el.setAttribute('data-ws-id', String(n));
    const label = (el.innerText || el.value || el.getAttribute('aria-label') || el.getAttribute('placeholder') || el.getAttribute('name') || el.getAttribute('href') || '').trim().slice(0, 80);
    elements.push({
      selector: '[data-ws-id="' + n + '"]',
      tag: el.tagName.toLowerCase(),
      kind: el.getAttribute('type') || '',
      label: label,
    });
  }
  return {
    url: location.href,
    title: document.title,
    text: document.body ? document.body.innerText : '',
    elements: elements,
  };
})()`
