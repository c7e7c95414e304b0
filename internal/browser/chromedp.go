// Package browser wraps a single headless Chrome tab driven through chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// DefaultImplicitWait bounds actions that are not given their own timeout.
const DefaultImplicitWait = 30 * time.Second

// ErrWaitTimeout reports that a bounded browser action did not finish in time.
var ErrWaitTimeout = errors.New("browser wait timed out")

// StatusError reports a document response with an HTTP error status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("navigate %s: http status %d", e.URL, e.Code)
}

// Config controls how Chrome is launched.
type Config struct {
	Headless     bool
	NoSandbox    bool
	UserAgent    string
	ExecPath     string
	ImplicitWait time.Duration
}

// Session is one browser tab. It is not safe for concurrent use.
type Session struct {
	cfg             Config
	logger          *zap.Logger
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	// mainFrame is the tab's top-level frame; a page target's root frame
	// shares the target ID. Responses from other frames are ignored.
	mainFrame       cdp.FrameID
	lastStatus      atomic.Int64
	closeOnce       sync.Once
}

// New launches Chrome and opens a tab. A missing or broken Chrome install
// fails here rather than on the first navigation.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.ImplicitWait <= 0 {
		cfg.ImplicitWait = DefaultImplicitWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	s := &Session{
		cfg:             cfg,
		logger:          logger,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
	}
	// The first Run allocates the browser and must not carry a deadline.
	if err := chromedp.Run(browserCtx); err != nil {
		s.Close() //nolint:errcheck // Close never fails
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	if c := chromedp.FromContext(browserCtx); c != nil && c.Target != nil {
		s.mainFrame = cdp.FrameID(c.Target.TargetID)
	}
	chromedp.ListenTarget(browserCtx, s.captureEvent)
	if err := s.run(ctx, cfg.ImplicitWait, s.networkSetupAction()); err != nil {
		s.Close() //nolint:errcheck // Close never fails
		return nil, fmt.Errorf("chromedp network setup: %w", err)
	}
	logger.Debug("browser session started", zap.Bool("headless", cfg.Headless))
	return s, nil
}

// Close tears down the tab, the browser and the allocator. It is idempotent.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.browserCancel()
		s.allocatorCancel()
	})
	return nil
}

// Navigate loads url and waits for the document to be ready.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	s.lastStatus.Store(0)
	if err := s.run(ctx, timeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if code := int(s.lastStatus.Load()); code >= 400 {
		return &StatusError{URL: url, Code: code}
	}
	return nil
}

// WaitForID waits until the element with the given id is present in the DOM.
func (s *Session) WaitForID(ctx context.Context, id string, timeout time.Duration) error {
	if err := s.run(ctx, timeout, chromedp.WaitReady(id, chromedp.ByID)); err != nil {
		return fmt.Errorf("wait for #%s: %w", id, err)
	}
	return nil
}

// SelectOption picks value in the <select> with the given id and fires its
// change event so the page re-renders.
func (s *Session) SelectOption(ctx context.Context, id, value string, timeout time.Duration) error {
	script := fmt.Sprintf(
		`(function(){var el=document.getElementById(%q);if(!el){return false;}`+
			`el.dispatchEvent(new Event('change',{bubbles:true}));return true;})()`, id)
	var dispatched bool
	if err := s.run(ctx, timeout,
		chromedp.WaitReady(id, chromedp.ByID),
		chromedp.Click(id, chromedp.ByID),
		chromedp.SetValue(id, value, chromedp.ByID),
		chromedp.Evaluate(script, &dispatched),
	); err != nil {
		return fmt.Errorf("select %q in #%s: %w", value, id, err)
	}
	if !dispatched {
		return fmt.Errorf("select %q in #%s: element disappeared", value, id)
	}
	return nil
}

// OuterHTMLByID returns the serialized markup of the element with the given id.
func (s *Session) OuterHTMLByID(ctx context.Context, id string, timeout time.Duration) (string, error) {
	var html string
	if err := s.run(ctx, timeout, chromedp.OuterHTML(id, &html, chromedp.ByID)); err != nil {
		return "", fmt.Errorf("outer html of #%s: %w", id, err)
	}
	return html, nil
}

// OuterHTMLByQuery returns the markup of the first element matching a CSS selector.
func (s *Session) OuterHTMLByQuery(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	var html string
	if err := s.run(ctx, timeout, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html of %s: %w", selector, err)
	}
	return html, nil
}

// run executes actions on the tab, bounded by timeout (or the implicit wait)
// and by ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = s.implicitWait()
	}
	taskCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()

	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	err := chromedp.Run(taskCtx, actions...)
	return wrapTimeout(ctx, err, timeout)
}

func (s *Session) implicitWait() time.Duration {
	if s.cfg.ImplicitWait > 0 {
		return s.cfg.ImplicitWait
	}
	return DefaultImplicitWait
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (s *Session) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	if s.mainFrame != "" && resp.FrameID != s.mainFrame {
		return
	}
	s.lastStatus.Store(resp.Response.Status)
}

// wrapTimeout maps a deadline hit by the action bound to ErrWaitTimeout. A
// canceled caller context is returned as is.
func wrapTimeout(parent context.Context, err error, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if parent != nil && parent.Err() != nil {
		return fmt.Errorf("%w: %w", parent.Err(), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrWaitTimeout, timeout)
	}
	return err
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
