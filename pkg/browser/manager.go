// Package browser implements the page capability on top of playwright-go:
// a Manager owning the browser connection and a Page that observes, acts
// and extracts. It can also stream DOM events of a demonstrated tab into a
// capture session.
package browser

import (
	"context"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/playwright-community/playwright-go"

	"github.com/antoinenguyen27/siren/pkg/domcapture"
	"github.com/antoinenguyen27/siren/pkg/logger"
)

const (
	defaultTimeout = 10 * time.Second

	modeLaunch = "launch"
	modeCDP    = "cdp"
)

// Options configures how the Manager reaches a browser.
type Options struct {
	Headless bool
	// CDPURL connects to a running browser instead of launching one.
	CDPURL  string
	Timeout time.Duration
}

// ErrNotStarted is returned by accessors used before Start or Attach.
var ErrNotStarted = errors.New("browser is not started")

// Manager owns one playwright driver and one active page at a time.
type Manager struct {
	opts     Options
	resolver Resolver

	mu       sync.Mutex
	pw       *playwright.Playwright
	browser  playwright.Browser
	bctx     playwright.BrowserContext
	page     *Page
	mode     string
	captured map[playwright.BrowserContext]*captureRouter
}

// Status describes the browser connection.
type Status struct {
	Mode      string `json:"mode"`
	Connected bool   `json:"connected"`
	URL       string `json:"url,omitempty"`
}

func NewManager(opts Options, resolver Resolver) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Manager{
		opts:     opts,
		resolver: resolver,
		captured: make(map[playwright.BrowserContext]*captureRouter),
	}
}

func (m *Manager) timeoutMs() float64 {
	return float64(m.opts.Timeout.Milliseconds())
}

// driver starts the playwright driver, installing it on first use.
func (m *Manager) driver(ctx context.Context) (*playwright.Playwright, error) {
	if m.pw != nil {
		return m.pw, nil
	}
	runOpts := &playwright.RunOptions{Verbose: false, Stdout: io.Discard, Stderr: io.Discard}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		logger.G(ctx).WithError(err).Info("playwright driver missing, installing")
		if err := playwright.Install(runOpts); err != nil {
			return nil, errors.Wrap(err, "failed to install playwright")
		}
		if pw, err = playwright.Run(runOpts); err != nil {
			return nil, errors.Wrap(err, "failed to start playwright")
		}
	}
	m.pw = pw
	return pw, nil
}

// Start returns the active page, launching a browser or connecting to the
// configured CDP endpoint when none is open.
func (m *Manager) Start(ctx context.Context) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.page != nil && m.browser != nil && m.browser.IsConnected() {
		return m.page, nil
	}
	m.closeLocked(ctx)

	if m.opts.CDPURL != "" {
		return m.connectLocked(ctx, m.opts.CDPURL, "")
	}

	pw, err := m.driver(ctx)
	if err != nil {
		return nil, err
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.opts.Headless),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to launch chromium")
	}
	bctx, err := browser.NewContext()
	if err != nil {
		_ = browser.Close()
		return nil, errors.Wrap(err, "failed to create browser context")
	}
	pwPage, err := bctx.NewPage()
	if err != nil {
		_ = browser.Close()
		return nil, errors.Wrap(err, "failed to open page")
	}

	m.browser, m.bctx, m.mode = browser, bctx, modeLaunch
	m.page = newPage(pwPage, m.resolver, m.timeoutMs())
	logger.G(ctx).WithField("headless", m.opts.Headless).Info("browser launched")
	return m.page, nil
}

// Attach connects to the browser at cdpURL and selects the tab showing
// tabURL, opening it when no tab matches. It replaces any active page.
func (m *Manager) Attach(ctx context.Context, cdpURL, tabURL string) (*Page, error) {
	if cdpURL == "" {
		return nil, errors.New("cdp url is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(ctx)
	return m.connectLocked(ctx, cdpURL, tabURL)
}

func (m *Manager) connectLocked(ctx context.Context, cdpURL, tabURL string) (*Page, error) {
	pw, err := m.driver(ctx)
	if err != nil {
		return nil, err
	}
	browser, err := pw.Chromium.ConnectOverCDP(cdpURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", cdpURL)
	}

	var bctx playwright.BrowserContext
	if contexts := browser.Contexts(); len(contexts) > 0 {
		bctx = contexts[0]
	} else if bctx, err = browser.NewContext(); err != nil {
		return nil, errors.Wrap(err, "failed to create browser context")
	}

	pwPage := matchTab(browser.Contexts(), tabURL)
	if pwPage == nil {
		if pwPage, err = bctx.NewPage(); err != nil {
			return nil, errors.Wrap(err, "failed to open page")
		}
		if tabURL != "" {
			if _, err := pwPage.Goto(tabURL); err != nil {
				return nil, errors.Wrapf(err, "failed to open %s", tabURL)
			}
		}
	} else {
		bctx = pwPage.Context()
	}

	m.browser, m.bctx, m.mode = browser, bctx, modeCDP
	m.page = newPage(pwPage, m.resolver, m.timeoutMs())
	logger.G(ctx).WithField("cdp_url", cdpURL).WithField("tab_url", pwPage.URL()).Info("attached to browser")
	return m.page, nil
}

// matchTab finds the page showing tabURL, preferring an exact match over a
// same-host one.
func matchTab(contexts []playwright.BrowserContext, tabURL string) playwright.Page {
	if tabURL == "" {
		return nil
	}
	var urls []string
	var pages []playwright.Page
	for _, c := range contexts {
		for _, p := range c.Pages() {
			urls = append(urls, p.URL())
			pages = append(pages, p)
		}
	}
	if i := bestTab(urls, tabURL); i >= 0 {
		return pages[i]
	}
	return nil
}

func bestTab(urls []string, target string) int {
	for i, u := range urls {
		if u == target {
			return i
		}
	}
	want, err := url.Parse(target)
	if err != nil || want.Host == "" {
		return -1
	}
	for i, u := range urls {
		if got, err := url.Parse(u); err == nil && got.Host == want.Host {
			return i
		}
	}
	return -1
}

// Status reports the current connection without starting a browser.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{Mode: m.mode}
	if st.Mode == "" {
		st.Mode = modeLaunch
		if m.opts.CDPURL != "" {
			st.Mode = modeCDP
		}
	}
	if m.page != nil && m.browser != nil && m.browser.IsConnected() {
		st.Connected = true
		st.URL = m.page.URL()
	}
	return st
}

// Page returns the active page.
func (m *Manager) Page() (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.page == nil {
		return nil, ErrNotStarted
	}
	return m.page, nil
}

// CaptureInto streams DOM events of the active browser context into the
// capture session of tabID, when one is running. The script is installed
// once per context.
func (m *Manager) CaptureInto(ctx context.Context, sessions *domcapture.Manager, tabID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bctx == nil || m.page == nil {
		return ErrNotStarted
	}

	if router, ok := m.captured[m.bctx]; ok {
		router.tabID = tabID
		return nil
	}
	router := &captureRouter{ctx: context.WithoutCancel(ctx), sessions: sessions, tabID: tabID}
	if err := m.bctx.ExposeBinding(captureBinding, router.handle); err != nil {
		return errors.Wrap(err, "failed to expose capture binding")
	}
	script := captureScript
	if err := m.bctx.AddInitScript(playwright.Script{Content: &script}); err != nil {
		return errors.Wrap(err, "failed to add capture script")
	}
	// already loaded frames only get the script on their next navigation
	for _, f := range m.page.pw.Frames() {
		if _, err := f.Evaluate(captureScript); err != nil {
			logger.G(ctx).WithError(err).WithField("frame", f.URL()).Debug("capture script not injected")
		}
	}
	m.captured[m.bctx] = router
	return nil
}

// Close releases the active page and browser, then the driver.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(ctx)
	if m.pw == nil {
		return nil
	}
	err := m.pw.Stop()
	m.pw = nil
	return errors.Wrap(err, "failed to stop playwright")
}

func (m *Manager) closeLocked(ctx context.Context) {
	if m.browser != nil {
		// a CDP connection belongs to the user: disconnect without closing tabs
		if err := m.browser.Close(); err != nil {
			logger.G(ctx).WithError(err).Debug("browser close failed")
		}
	}
	if m.bctx != nil {
		delete(m.captured, m.bctx)
	}
	m.browser, m.bctx, m.page = nil, nil, nil
}
