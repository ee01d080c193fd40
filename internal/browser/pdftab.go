package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// waitPopup blocks until a popup tab whose URL contains the PDF marker is
// created in the shared context, or the deadline passes. Must be called with
// the popup gate held; the subscription is armed before the caller clicks.
func (s *Session) waitPopup(ctx context.Context, timeout time.Duration) (*rod.Page, error) {
	marker := s.cfg.Portal.PDFURLMarker

	found := make(chan *rod.Page, 1)
	b := s.browser.Context(ctx)
	go b.EachEvent(func(e *proto.TargetTargetCreated) bool {
		if e.TargetInfo.Type != proto.TargetTargetInfoTypePage {
			return false
		}
		if !strings.Contains(e.TargetInfo.URL, marker) {
			return false
		}
		page, err := b.PageFromTarget(e.TargetInfo.TargetID)
		if err != nil {
			return false
		}
		found <- page
		return true
	})()

	select {
	case page := <-found:
		return page, nil
	case <-time.After(timeout):
		return nil, ErrNoPopup
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetchPDF downloads the popup's PDF bytes over HTTP using the session's
// cookies. The popup tab renders the PDF in the built-in viewer; re-fetching
// the URL directly is the only way to get the raw bytes out.
func (s *Session) fetchPDF(ctx context.Context, pdfURL string) ([]byte, error) {
	client, err := s.HTTPClient()
	if err != nil {
		return nil, err
	}
	return fetchPDFBytes(ctx, client, pdfURL)
}

// fetchPDFBytes performs the GET and interprets the portal's failure modes.
// The client must not follow redirects (newPortalClient): an expired session
// answers with a redirect to the login page, which must surface as
// ErrSessionLost rather than whatever the login page serves.
func fetchPDFBytes(ctx context.Context, client *http.Client, pdfURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pdf request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pdf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized ||
		(resp.StatusCode >= 300 && resp.StatusCode < 400) {
		return nil, ErrSessionLost
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pdf endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf body: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyDownload
	}
	// The portal serves an HTML error page with a 200 when generation fails.
	if !isPDF(data) {
		return nil, ErrEmptyDownload
	}
	return data, nil
}

// isPDF checks the %PDF- magic.
func isPDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

// sweepStrayPopups closes any leftover PDF tabs in the context. Run after
// every popup procedure so a failure can never leak a tab into the next gate
// holder's popup wait.
func (s *Session) sweepStrayPopups() {
	pages, err := s.browser.Pages()
	if err != nil {
		s.logger.Warn("popup sweep failed", "error", err)
		return
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if strings.Contains(info.URL, s.cfg.Portal.PDFURLMarker) {
			if err := p.Close(); err != nil {
				s.logger.Warn("failed to close stray popup", "url", info.URL, "error", err)
			}
		}
	}
}
