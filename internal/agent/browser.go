package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"webswarm/internal/browser"
	"webswarm/internal/llm"
)

var ErrTaskFailed = errors.New("agent reported the task as failed")

const (
	defaultMaxSteps = 50
	pageTextLimit   = 4000
	flashTextLimit  = 1500
	historyWindow   = 12
	maxWait         = 10 * time.Second
)

type Planner interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

type DriverOpener func(ctx context.Context, opts browser.Options) (browser.Driver, error)

// OpenChrome is the default DriverOpener.
func OpenChrome(ctx context.Context, opts browser.Options) (browser.Driver, error) {
	return browser.Open(ctx, opts)
}

// BrowserLauncher opens one browser per session and drives it with Planner.
type BrowserLauncher struct {
	Planner       Planner
	OpenDriver    DriverOpener
	StartURL      string
	ActionTimeout time.Duration
	Logger        *zap.Logger
}

func (l *BrowserLauncher) NewSession(ctx context.Context, opts SessionOptions) (Session, error) {
	if l.Planner == nil {
		return nil, errors.New("browser launcher has no planner")
	}
	open := l.OpenDriver
	if open == nil {
		open = OpenChrome
	}
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("slot", opts.SlotID))

	driver, err := open(ctx, browser.Options{
		ProfileDir: opts.ProfileDir,
		Headless:   opts.Headless,
		Timeout:    l.ActionTimeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open browser for %s: %w", opts.SlotID, err)
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	return &browserSession{
		driver:   driver,
		planner:  l.Planner,
		opts:     opts,
		startURL: l.StartURL,
		logger:   logger,
	}, nil
}

type browserSession struct {
	driver   browser.Driver
	planner  Planner
	opts     SessionOptions
	startURL string
	logger   *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Run loops observe, plan, act until the planner answers done or the step
// budget runs out. The step history is returned with ErrStepLimit.
func (s *browserSession) Run(ctx context.Context, task string) (string, error) {
	if s.startURL != "" {
		if err := s.driver.Navigate(ctx, s.startURL); err != nil {
			return "", fmt.Errorf("open start page: %w", err)
		}
	}

	textLimit, effort := pageTextLimit, ""
	if s.opts.FlashMode {
		textLimit, effort = flashTextLimit, "low"
	}

	var history []string
	for step := 1; step <= s.opts.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return strings.Join(history, "\n"), err
		}
		page, err := s.driver.Snapshot(ctx, textLimit)
		if err != nil {
			return strings.Join(history, "\n"), fmt.Errorf("observe step %d: %w", step, err)
		}
		raw, err := s.planner.Complete(ctx, llm.Request{
			Instructions:    actionInstructions,
			Input:           renderObservation(task, page, history, step, s.opts.MaxSteps),
			ReasoningEffort: effort,
		})
		if err != nil {
			return strings.Join(history, "\n"), fmt.Errorf("plan step %d: %w", step, err)
		}
		act, err := ParseAction(raw)
		if err != nil {
			s.logger.Debug("unparseable action", zap.Int("step", step), zap.Error(err))
			history = append(history, fmt.Sprintf("step %d: invalid action (%v)", step, err))
			continue
		}
		if act.Action == ActionDone {
			result := strings.TrimSpace(act.Result)
			if act.Success != nil && !*act.Success {
				return result, fmt.Errorf("%w: %s", ErrTaskFailed, firstNonEmpty(act.Reason, result))
			}
			s.logger.Info("task finished", zap.Int("steps", step))
			return result, nil
		}

		if err := s.execute(ctx, act); err != nil {
			if ctx.Err() != nil {
				return strings.Join(history, "\n"), ctx.Err()
			}
			history = append(history, fmt.Sprintf("step %d: %s failed: %v", step, act, err))
			continue
		}
		history = append(history, fmt.Sprintf("step %d: %s", step, act))
	}
	return strings.Join(history, "\n"), fmt.Errorf("%w (%d steps)", ErrStepLimit, s.opts.MaxSteps)
}

func (s *browserSession) execute(ctx context.Context, act Action) error {
	switch act.Action {
	case ActionNavigate:
		return s.driver.Navigate(ctx, act.URL)
	case ActionClick:
		return s.driver.Click(ctx, act.Selector)
	case ActionType:
		return s.driver.Type(ctx, act.Selector, act.Text)
	case ActionBack:
		return s.driver.Back(ctx)
	case ActionWait:
		d := time.Duration(act.Seconds * float64(time.Second))
		if d <= 0 {
			d = time.Second
		}
		if d > maxWait {
			d = maxWait
		}
		return s.driver.Wait(ctx, d)
	}
	return fmt.Errorf("unsupported action %q", act.Action)
}

func (s *browserSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.driver.Close()
	})
	return s.closeErr
}

func renderObservation(task string, page browser.Page, history []string, step, maxSteps int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK:\n%s\n\n", strings.TrimSpace(task))
	fmt.Fprintf(&b, "STEP %d of %d\n", step, maxSteps)
	fmt.Fprintf(&b, "URL: %s\nTITLE: %s\n\n", page.URL, page.Title)
	b.WriteString("INTERACTIVE ELEMENTS:\n")
	if len(page.Elements) == 0 {
		b.WriteString("(none)\n")
	}
	for _, el := range page.Elements {
		kind := el.Tag
		if el.Kind != "" {
			kind += ":" + el.Kind
		}
		fmt.Fprintf(&b, "- %s [%s] %s\n", el.Selector, kind, el.Label)
	}
	fmt.Fprintf(&b, "\nPAGE TEXT:\n%s\n", page.Text)
	if len(history) > 0 {
		b.WriteString("\nPREVIOUS STEPS:\n")
		start := 0
		if len(history) > historyWindow {
			start = len(history) - historyWindow
		}
		for _, h := range history[start:] {
			b.WriteString(h + "\n")
		}
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

const actionInstructions = `You operate a web browser to complete a testing task.
Each turn you see the current page and must choose exactly one action.
Return only one JSON object, no markdown fences. Allowed shapes:
{"action":"navigate","url":"https://..."}
{"action":"click","selector":"[data-ws-id=\"3\"]"}
{"action":"type","selector":"[data-ws-id=\"5\"]","text":"admin"}
{"action":"back"}
{"action":"wait","seconds":2}
{"action":"done","success":true,"result":"what you observed and verified"}
Use selectors from the element list. When the task is complete, or cannot be
completed, answer with done and describe the outcome in result. Set success
to false when the tested feature is broken.`
