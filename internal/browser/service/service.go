package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/acwooding/dmp-test-ci/internal/log"
	"github.com/acwooding/dmp-test-ci/internal/scenario"
	model "github.com/acwooding/dmp-test-ci/pkg/browser"
)

var (
	ErrPageClosed    = errors.New("page is closed")
	ErrServiceClosed = errors.New("browser service is closed")
)

// Options configures the launched browser
type Options struct {
	Headless bool
	// Channel selects a branded browser ("chrome", "msedge"); empty means bundled Chromium.
	Channel string
}

// BrowserService owns one Playwright driver and one launched browser.
// Every scenario gets its own Session (browser context + page).
type BrowserService struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	sessions map[string]*Session
	mu       sync.Mutex
	closed   bool
	logger   *log.Logger
}

// Install downloads the Chromium build matching the playwright-go driver
func Install() error {
	if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
		return fmt.Errorf("could not install playwright driver and chromium: %w", err)
	}
	return nil
}

// NewBrowserService starts Playwright and launches Chromium
func NewBrowserService(opts Options, logger *log.Logger) (*BrowserService, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.Channel != "" {
		launchOpts.Channel = playwright.String(opts.Channel)
	}
	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch chromium: %w", err)
	}
	logger.Debug("Launched chromium %s (headless=%v)", browser.Version(), opts.Headless)

	return &BrowserService{
		pw:       pw,
		browser:  browser,
		sessions: make(map[string]*Session),
		logger:   logger,
	}, nil
}

// NewSession opens a fresh browser context with the given viewport and one page in it
func (s *BrowserService) NewSession(ctx context.Context, viewport model.Viewport) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	s.mu.Unlock()

	bctx, err := s.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  viewport.Width,
			Height: viewport.Height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	sess := &Session{
		ID:      uuid.NewString(),
		context: bctx,
		page:    page,
		logger:  s.logger,
	}
	sess.onClose = func() { s.forget(sess.ID) }

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	page.Once("close", func() {
		s.logger.Debug("Page for session %s closed", sess.ID)
	})

	return sess, nil
}

var _ scenario.Page = (*Session)(nil)

// PageFactory hands each scenario a fresh session
func (s *BrowserService) PageFactory() scenario.PageFactory {
	return func(ctx context.Context, viewport model.Viewport) (scenario.Page, error) {
		sess, err := s.NewSession(ctx, viewport)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
}

func (s *BrowserService) forget(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Close closes every open session, the browser and the Playwright driver
func (s *BrowserService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	var errs []error
	for _, sess := range open {
		if err := sess.closeContext(); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.ID, err))
		}
	}
	if err := s.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed closing browser: %w", err))
	}
	if err := s.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}
	return errors.Join(errs...)
}
