package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AvailabilityPoller watches the product page until the buy control shows up.
// Each attempt waits a fixed interval; a miss reloads the page and tries
// again, with no attempt limit.
type AvailabilityPoller struct {
	page     Page
	selector string
	interval time.Duration
	log      zerolog.Logger
}

func NewAvailabilityPoller(page Page, selector string, interval time.Duration, log zerolog.Logger) *AvailabilityPoller {
	return &AvailabilityPoller{
		page:     page,
		selector: selector,
		interval: interval,
		log:      log.With().Str("component", "poller").Logger(),
	}
}

// Wait blocks until the buy control is visible and returns the number of
// attempts it took. It only gives up when ctx is cancelled.
func (p *AvailabilityPoller) Wait(ctx context.Context) (int, error) {
	page := p.page.Context(ctx)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		fmt.Printf(T("poll_round")+"\n", attempt)

		err := page.WaitVisible(p.selector, p.interval)
		if err == nil {
			p.log.Info().Int("attempt", attempt).Msg("buy button available")
			fmt.Printf(T("poll_found")+"\n", attempt)
			return attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, ctxErr
		}

		p.log.Debug().Err(err).Int("attempt", attempt).Msg("buy button not available")
		fmt.Println(T("poll_reloading"))

		if err := page.Reload(); err != nil {
			// The next wait fails the same way if the page is really gone.
			p.log.Warn().Err(err).Int("attempt", attempt).Msg("reload failed")
		}
	}
}
