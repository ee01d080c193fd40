// Package browser drives the portal through a single shared Chromium session.
// One authenticated browser context hosts every worker tab; the PDF popup
// path, which the portal fires as a context-wide event, is serialized by a
// PopupGate so concurrent tabs never steal each other's popups.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/dealerops/bookout/internal/config"
)

// Session owns the browser process and the authenticated context shared by
// all worker tabs.
type Session struct {
	cfg      *config.Config
	logger   *slog.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	gate     *PopupGate
}

// NewSession launches Chromium and connects to it. Call Close when done; the
// leakless launcher reaps the process even on abnormal exit.
func NewSession(cfg *config.Config, logger *slog.Logger) (*Session, error) {
	l := launcher.New().
		Headless(cfg.Browser.Headless).
		Leakless(true).
		Set("disable-gpu", "1").
		Set("disable-dev-shm-usage", "1").
		Set("disable-extensions", "1")
	if cfg.Browser.Bin != "" {
		l = l.Bin(cfg.Browser.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	s := &Session{
		cfg:      cfg,
		logger:   logger.With("component", "browser"),
		launcher: l,
		browser:  b,
		gate:     NewPopupGate(cfg.Browser.Quiescence()),
	}

	if cfg.Browser.BlockResources {
		s.blockHeavyResources()
	}

	return s, nil
}

// blockHeavyResources aborts image, stylesheet, font and media requests for
// every page in the context. The portal works fine without them and the grid
// loads much faster.
func (s *Session) blockHeavyResources() {
	router := s.browser.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		switch ctx.Request.Type() {
		case proto.NetworkResourceTypeImage,
			proto.NetworkResourceTypeStylesheet,
			proto.NetworkResourceTypeFont,
			proto.NetworkResourceTypeMedia:
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		default:
			ctx.ContinueRequest(&proto.FetchContinueRequest{})
		}
	})
	go router.Run()
}

// Gate returns the popup gate shared by all tabs of this session.
func (s *Session) Gate() *PopupGate {
	return s.gate
}

// Browser exposes the underlying rod browser for popup event subscription.
func (s *Session) Browser() *rod.Browser {
	return s.browser
}

// Login authenticates on a fresh page and leaves the session cookies in the
// shared context. The license agreement interstitial, when the portal shows
// one, is accepted on the way through.
func (s *Session) Login(ctx context.Context) error {
	user, pass := s.cfg.Credentials()

	page, err := s.newPage(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	if err := s.navigate(page, s.cfg.Portal.LoginURL); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	if err := s.fill(page, selLoginUsername, user); err != nil {
		return fmt.Errorf("%w: username field: %v", ErrLoginFailed, err)
	}
	if err := s.fill(page, selLoginPassword, pass); err != nil {
		return fmt.Errorf("%w: password field: %v", ErrLoginFailed, err)
	}
	if err := s.click(page, selLoginSubmit); err != nil {
		return fmt.Errorf("%w: submit: %v", ErrLoginFailed, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("%w: post-login load: %v", ErrLoginFailed, err)
	}

	s.acceptLicenseIfShown(page)

	// Landing on the inventory grid is the success signal.
	if err := s.navigate(page, s.cfg.Portal.InventoryURL); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if err := s.waitVisible(page, selInventoryGrid); err != nil {
		return fmt.Errorf("%w: inventory grid never appeared", ErrLoginFailed)
	}

	s.logger.Info("logged in", "user", user)
	return nil
}

// acceptLicenseIfShown clicks through the license agreement interstitial.
// Absence of the accept button is the normal case.
func (s *Session) acceptLicenseIfShown(page *rod.Page) {
	el, err := page.Timeout(3 * time.Second).Element(selLicenseAccept)
	if err != nil {
		return
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		s.logger.Warn("license accept click failed", "error", err)
		return
	}
	_ = page.WaitLoad()
	s.logger.Info("accepted license agreement")
}

// Logout ends the portal session. Best effort: a failed logout only leaves a
// server-side session to expire on its own.
func (s *Session) Logout(ctx context.Context) {
	page, err := s.newPage(ctx)
	if err != nil {
		s.logger.Warn("logout skipped", "error", err)
		return
	}
	defer page.Close()

	if err := s.navigate(page, s.cfg.Portal.InventoryURL); err != nil {
		s.logger.Warn("logout navigation failed", "error", err)
		return
	}
	if err := s.click(page, selLogout); err != nil {
		s.logger.Warn("logout click failed", "error", err)
		return
	}
	s.logger.Info("logged out")
}

// ExportInventory clicks the inventory export button and waits for the CSV to
// land in dir, returning the downloaded file's path.
func (s *Session) ExportInventory(ctx context.Context, dir string) (string, error) {
	page, err := s.newPage(ctx)
	if err != nil {
		return "", err
	}
	defer page.Close()

	if err := s.navigate(page, s.cfg.Portal.InventoryURL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	if err := s.waitVisible(page, selInventoryGrid); err != nil {
		return "", fmt.Errorf("%w: grid not visible", ErrExportFailed)
	}

	wait := s.browser.WaitDownload(dir)
	if err := s.click(page, selExportButton); err != nil {
		return "", fmt.Errorf("%w: export click: %v", ErrExportFailed, err)
	}

	info := wait()
	if info == nil {
		return "", ErrExportFailed
	}
	path := filepath.Join(dir, info.GUID)
	s.logger.Info("inventory exported", "file", path)
	return path, nil
}

// NewTab opens a worker tab in the shared authenticated context, already
// parked on the inventory grid.
func (s *Session) NewTab(ctx context.Context) (*Tab, error) {
	page, err := s.newPage(ctx)
	if err != nil {
		return nil, err
	}

	t := &Tab{
		session: s,
		page:    page,
	}
	if err := t.gotoInventory(); err != nil {
		page.Close()
		return nil, err
	}
	return t, nil
}

// Relogin re-establishes the shared session after ErrSessionLost. It runs
// under the popup gate so no tab is mid-popup while cookies change.
func (s *Session) Relogin(ctx context.Context) error {
	if err := s.gate.Acquire(ctx); err != nil {
		return err
	}
	defer s.gate.release()

	s.logger.Warn("re-establishing portal session")
	return s.Login(ctx)
}

// HTTPClient returns an http.Client carrying the browser context's cookies,
// suitable for fetching the PDF bytes the popup tab points at.
func (s *Session) HTTPClient() (*http.Client, error) {
	cookies, err := s.browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read session cookies: %w", err)
	}

	jar := newStaticJar()
	for _, c := range cookies {
		jar.add(c)
	}
	return newPortalClient(jar, s.cfg.Browser.NavigationTimeout()), nil
}

// newPortalClient builds the client used for direct portal fetches. Redirects
// are never followed: a redirect from the PDF endpoint is the portal bouncing
// an expired session to the login page, and following it would hand the
// caller a 200 HTML page instead of the redirect status it needs to see.
func newPortalClient(jar http.CookieJar, timeout time.Duration) *http.Client {
	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Close tears down the browser process.
func (s *Session) Close() {
	if err := s.browser.Close(); err != nil {
		s.logger.Warn("browser close failed", "error", err)
	}
	s.launcher.Cleanup()
}

// newPage opens a blank page in the shared context, bound to ctx.
func (s *Session) newPage(ctx context.Context) (*rod.Page, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return page.Context(ctx), nil
}

// navigate loads u and waits for the load event, bounded by the navigation
// timeout.
func (s *Session) navigate(page *rod.Page, u string) error {
	p := page.Timeout(s.cfg.Browser.NavigationTimeout())
	if err := p.Navigate(u); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", u, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed to load %s: %w", u, err)
	}
	return nil
}

// waitVisible waits for selector to be visible, bounded by the action
// timeout.
func (s *Session) waitVisible(page *rod.Page, selector string) error {
	el, err := page.Timeout(s.cfg.Browser.ActionTimeout()).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s not found: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("element %s not visible: %w", selector, err)
	}
	return nil
}

// fill replaces the content of the input at selector with value.
func (s *Session) fill(page *rod.Page, selector, value string) error {
	el, err := page.Timeout(s.cfg.Browser.ActionTimeout()).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s not found: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to select text in %s: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	return nil
}

// click clicks the element at selector.
func (s *Session) click(page *rod.Page, selector string) error {
	el, err := page.Timeout(s.cfg.Browser.ActionTimeout()).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s not found: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// sessionExpired reports whether a page has been bounced to the login screen,
// which is how the portal signals an expired session.
func sessionExpired(page *rod.Page) bool {
	info, err := page.Info()
	if err != nil {
		return false
	}
	u, err := url.Parse(info.URL)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Path), "login") ||
		strings.Contains(strings.ToLower(u.Path), "licenseagreement")
}
