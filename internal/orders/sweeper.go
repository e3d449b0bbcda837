package orders

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper periodically finalizes expired pending orders. Cancellation
// only happens when a sweep runs, so the longest an expired order can
// linger as "pending" is one interval.
type Sweeper struct {
	Service  *Service
	Interval time.Duration
}

func (sw *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(sw.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := sw.Service.SweepExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("cancelled", n).Msg("sweep cancelled expired orders")
			}
		}
	}
}
