package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
)

// Tab is one worker's page in the shared authenticated context. A tab walks
// the portal for one reference at a time: filter the grid, open the bookout,
// pull the PDF through the popup gate, and return to the grid.
type Tab struct {
	session *Session
	page    *rod.Page
}

// gotoInventory parks the tab on the inventory grid.
func (t *Tab) gotoInventory() error {
	s := t.session
	if err := s.navigate(t.page, s.cfg.Portal.InventoryURL); err != nil {
		return err
	}
	if sessionExpired(t.page) {
		return ErrSessionLost
	}
	return s.waitVisible(t.page, selInventoryGrid)
}

// FilterByReference narrows the inventory grid to the given reference number.
// Returns ErrReferenceNotFound when the filter matches no rows and
// ErrSessionLost when the portal bounced the tab to the login page.
func (t *Tab) FilterByReference(ref string) error {
	s := t.session

	if sessionExpired(t.page) {
		return ErrSessionLost
	}

	if err := s.click(t.page, selFilterMenu); err != nil {
		return fmt.Errorf("failed to open filter menu: %w", err)
	}

	// A sticky filter from the previous reference is cleared first. The reset
	// button only renders while the grid is filtered, and clicking it closes
	// the menu.
	if has, _, _ := t.page.Has(selFilterClear); has {
		if err := s.click(t.page, selFilterClear); err != nil {
			return fmt.Errorf("failed to clear previous filter: %w", err)
		}
		if err := s.click(t.page, selFilterMenu); err != nil {
			return fmt.Errorf("failed to reopen filter menu: %w", err)
		}
	}

	if err := s.fill(t.page, selFilterInput, ref); err != nil {
		return fmt.Errorf("failed to enter filter value: %w", err)
	}
	if err := s.click(t.page, selFilterApply); err != nil {
		return fmt.Errorf("failed to apply filter: %w", err)
	}

	// The grid redraws asynchronously; either a matching row or the
	// no-records placeholder appears.
	deadline := time.Now().Add(s.cfg.Browser.ActionTimeout())
	for time.Now().Before(deadline) {
		if has, _, _ := t.page.Has(selGridEmptyRow); has {
			return fmt.Errorf("%w: %s", ErrReferenceNotFound, ref)
		}
		if has, _, _ := t.page.Has(selGridFirstRow); has {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("grid did not settle after filtering for %s", ref)
}

// OpenBookout opens the bookout detail page for the currently filtered row.
func (t *Tab) OpenBookout() error {
	s := t.session

	if err := s.click(t.page, selVehicleBookout); err != nil {
		return fmt.Errorf("failed to open bookout: %w", err)
	}
	if err := t.page.Timeout(s.cfg.Browser.NavigationTimeout()).WaitLoad(); err != nil {
		return fmt.Errorf("bookout page did not load: %w", err)
	}
	if sessionExpired(t.page) {
		return ErrSessionLost
	}
	return s.waitVisible(t.page, selBookoutPDFIcon)
}

// DownloadPDF runs the popup critical section and returns the PDF bytes. The
// popup gate is held from before the click until after the popup is closed,
// the quiescence delay has elapsed, and stray tabs have been swept; sweeping
// after the delay catches popups whose creation event was still in flight
// when this tab's popup closed.
func (t *Tab) DownloadPDF(ctx context.Context) ([]byte, error) {
	s := t.session

	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release(s.sweepStrayPopups)

	// Arm the popup listener before clicking so the event cannot be missed.
	popupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type popupResult struct {
		page *rod.Page
		err  error
	}
	popupCh := make(chan popupResult, 1)
	go func() {
		page, err := s.waitPopup(popupCtx, s.cfg.Browser.NavigationTimeout())
		popupCh <- popupResult{page, err}
	}()

	if err := s.click(t.page, selBookoutPDFIcon); err != nil {
		cancel()
		<-popupCh
		return nil, fmt.Errorf("failed to click pdf button: %w", err)
	}

	res := <-popupCh
	if res.err != nil {
		return nil, res.err
	}
	popup := res.page

	info, err := popup.Info()
	if err != nil {
		popup.Close()
		return nil, fmt.Errorf("failed to inspect popup: %w", err)
	}
	pdfURL := info.URL

	data, fetchErr := s.fetchPDF(ctx, pdfURL)
	if err := popup.Close(); err != nil {
		s.logger.Warn("failed to close popup", "error", err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return data, nil
}

// BackToInventory returns the tab to the inventory grid, ready for the next
// reference. The bookout page's back link is preferred; a fresh navigation is
// the fallback when the link is missing or broke mid-flight.
func (t *Tab) BackToInventory() error {
	if t.backViaLink() {
		return nil
	}
	return t.gotoInventory()
}

func (t *Tab) backViaLink() bool {
	s := t.session
	if has, _, _ := t.page.Has(selBookoutBackLink); !has {
		return false
	}
	if err := s.click(t.page, selBookoutBackLink); err != nil {
		return false
	}
	if err := t.page.Timeout(s.cfg.Browser.NavigationTimeout()).WaitLoad(); err != nil {
		return false
	}
	return s.waitVisible(t.page, selInventoryGrid) == nil
}

// Recover resets the tab to a known-good state after a failure: any dialog or
// half-loaded page is abandoned by renavigating to the grid.
func (t *Tab) Recover(ctx context.Context) error {
	return t.gotoInventory()
}

// Close closes the tab's page.
func (t *Tab) Close() {
	if err := t.page.Close(); err != nil {
		t.session.logger.Warn("failed to close tab", "error", err)
	}
}
