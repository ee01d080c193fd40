package browser

import (
	"context"
	"time"
)

// PopupGate serializes the PDF popup procedure across all tabs of a session.
//
// The portal opens the PDF report in a new tab via window.open, and the
// devtools target-created event is scoped to the whole browser context: two
// tabs triggering popups concurrently cannot tell whose popup is whose. Only
// the gate holder may click the PDF button, and the gate stays held until the
// popup is closed and the context has settled.
type PopupGate struct {
	sem        chan struct{}
	quiescence time.Duration
}

// NewPopupGate creates a gate with the given settle delay. Delays under one
// second are raised to one second; shorter settles still let late-arriving
// popups bleed into the next holder's window.
func NewPopupGate(quiescence time.Duration) *PopupGate {
	if quiescence < time.Second {
		quiescence = time.Second
	}
	return &PopupGate{
		sem:        make(chan struct{}, 1),
		quiescence: quiescence,
	}
}

// Acquire blocks until the gate is free or ctx is done.
func (g *PopupGate) Acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release sleeps for the quiescence delay, runs sweep against the settled
// context, and then frees the gate. Both the sleep and the sweep happen while
// the gate is still held: a popup whose target-created event was in flight
// when the holder closed its tab materializes during the sleep, and sweeping
// any earlier would miss it and leak it into the next holder's popup wait.
func (g *PopupGate) Release(sweep func()) {
	time.Sleep(g.quiescence)
	if sweep != nil {
		sweep()
	}
	g.release()
}

// release frees the gate immediately. Used by session recovery, which has no
// popup to settle after.
func (g *PopupGate) release() {
	<-g.sem
}

// Quiescence returns the configured settle delay.
func (g *PopupGate) Quiescence() time.Duration {
	return g.quiescence
}
