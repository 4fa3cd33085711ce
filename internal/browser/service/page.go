package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/acwooding/dmp-test-ci/internal/log"
	model "github.com/acwooding/dmp-test-ci/pkg/browser"
)

// Session is one isolated browser context holding a single page
type Session struct {
	ID      string
	context playwright.BrowserContext
	page    playwright.Page
	logger  *log.Logger

	closeOnce sync.Once
	closeErr  error
	onClose   func()
}

// timeoutMs converts the tighter of limit and the context deadline into the
// millisecond timeout playwright-go expects. Zero limit means no cap of its own.
func timeoutMs(ctx context.Context, limit time.Duration) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := limit
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, context.DeadlineExceeded
		}
		if d <= 0 || remaining < d {
			d = remaining
		}
	}
	if d <= 0 {
		// playwright treats 0 as "no timeout"
		return playwright.Float(0), nil
	}
	// round up so a sub-millisecond remainder never becomes "no timeout"
	return playwright.Float(math.Ceil(float64(d) / float64(time.Millisecond))), nil
}

func (p *Session) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.page.IsClosed() {
		return ErrPageClosed
	}
	return nil
}

// Open navigates to params.URL and returns the main response status.
// A navigation without a response yields status 0.
func (p *Session) Open(ctx context.Context, params model.OpenParams) (*model.OpenResult, error) {
	if err := p.checkOpen(ctx); err != nil {
		return nil, err
	}
	timeout, err := timeoutMs(ctx, params.Timeout)
	if err != nil {
		return nil, err
	}
	resp, err := p.page.Goto(params.URL, playwright.PageGotoOptions{
		Timeout:   timeout,
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return nil, fmt.Errorf("navigation to %s failed: %w", params.URL, err)
	}
	result := &model.OpenResult{URL: params.URL}
	if resp != nil {
		result.Status = resp.Status()
	}
	return result, nil
}

// WaitHidden waits for every selector to reach the hidden state concurrently.
// It returns once all have resolved, or as soon as one fails.
func (p *Session) WaitHidden(ctx context.Context, params model.WaitHiddenParams) error {
	if err := p.checkOpen(ctx); err != nil {
		return err
	}
	return waitAll(ctx, params.Selectors, func(ctx context.Context, sel string) error {
		timeout, err := timeoutMs(ctx, params.Timeout)
		if err != nil {
			return fmt.Errorf("waiting for %s to be hidden: %w", sel, err)
		}
		p.logger.Debug("Waiting for %s to be hidden (timeout %.0fms)", sel, *timeout)
		err = p.page.Locator(sel).WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateHidden,
			Timeout: timeout,
		})
		if err != nil {
			return fmt.Errorf("waiting for %s to be hidden: %w", sel, err)
		}
		return nil
	})
}

// waitAll runs wait for each selector in its own goroutine and returns the
// first error without waiting for the others. Waits still running when it
// returns see their context cancelled.
func waitAll(ctx context.Context, selectors []string, wait func(ctx context.Context, sel string) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, len(selectors))
	for _, sel := range selectors {
		sel := sel
		go func() { errc <- wait(ctx, sel) }()
	}
	for range selectors {
		if err := <-errc; err != nil {
			return err
		}
	}
	return nil
}

// WaitNetworkIdle waits until there are no network connections for at least 500ms
func (p *Session) WaitNetworkIdle(ctx context.Context) error {
	if err := p.checkOpen(ctx); err != nil {
		return err
	}
	timeout, err := timeoutMs(ctx, 0)
	if err != nil {
		return err
	}
	if err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: timeout,
	}); err != nil {
		return fmt.Errorf("waiting for network idle: %w", err)
	}
	return nil
}

// Fill sets the value of an input element
func (p *Session) Fill(ctx context.Context, params model.FillParams) error {
	if err := p.checkOpen(ctx); err != nil {
		return err
	}
	timeout, err := timeoutMs(ctx, 0)
	if err != nil {
		return err
	}
	if err := p.page.Locator(params.Selector).Fill(params.Value, playwright.LocatorFillOptions{Timeout: timeout}); err != nil {
		return fmt.Errorf("fill %s failed: %w", params.Selector, err)
	}
	return nil
}

// Screenshot captures the element matching params.Selector as PNG. The locator
// is strict: a selector matching more than one element is an error.
// Animations are stopped and the caret hidden so repeated captures are stable.
func (p *Session) Screenshot(ctx context.Context, params model.ScreenshotParams) ([]byte, error) {
	if err := p.checkOpen(ctx); err != nil {
		return nil, err
	}
	timeout, err := timeoutMs(ctx, params.Timeout)
	if err != nil {
		return nil, err
	}
	buf, err := p.page.Locator(params.Selector).Screenshot(playwright.LocatorScreenshotOptions{
		Animations: playwright.ScreenshotAnimationsDisabled,
		Caret:      playwright.ScreenshotCaretHide,
		Scale:      playwright.ScreenshotScaleCss,
		Type:       playwright.ScreenshotTypePng,
		Timeout:    timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot of %s failed: %w", params.Selector, err)
	}
	return buf, nil
}

// Close closes the page's browser context. Safe to call more than once.
func (p *Session) Close() error {
	err := p.closeContext()
	if p.onClose != nil {
		p.onClose()
	}
	return err
}

func (p *Session) closeContext() error {
	p.closeOnce.Do(func() {
		if err := p.context.Close(); err != nil {
			p.closeErr = fmt.Errorf("failed to close browser context: %w", err)
		}
	})
	return p.closeErr
}
