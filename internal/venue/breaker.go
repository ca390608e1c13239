package venue

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker"

	"arbitrage/internal/corefail"
)

// BreakerAdapter wraps an Adapter's calls in a gobreaker.CircuitBreaker, tripping
// after 3 consecutive failures or a >5% failure rate over a 20-request
// window, grounded on sawpanic-cryptorun/infra/breakers/breakers.go. A tripped
// breaker turns every call into corefail.AdapterUnavailable for the
// remainder of its 60s open window, per spec §7's
// AdapterTransient -> AdapterUnavailable demotion.
type BreakerAdapter struct {
	Adapter
	cb *gobreaker.CircuitBreaker
}

// Wrap returns a, guarded by a per-venue circuit breaker.
func Wrap(a Adapter) *BreakerAdapter {
	settings := gobreaker.Settings{
		Name:     a.Name(),
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}
	return &BreakerAdapter{Adapter: a, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerAdapter) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.Adapter.FetchQuote(ctx, symbol)
	})
	if err != nil {
		return Quote{}, translateBreakerErr(b.Adapter.Name(), err)
	}
	return v.(Quote), nil
}

func (b *BreakerAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.Adapter.FetchOrderBook(ctx, symbol, depth)
	})
	if err != nil {
		return OrderBook{}, translateBreakerErr(b.Adapter.Name(), err)
	}
	return v.(OrderBook), nil
}

func (b *BreakerAdapter) ListSymbols(ctx context.Context) ([]string, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.Adapter.ListSymbols(ctx)
	})
	if err != nil {
		return nil, translateBreakerErr(b.Adapter.Name(), err)
	}
	return v.([]string), nil
}

// translateBreakerErr reports the breaker's own open-circuit error as
// corefail.AdapterUnavailable and passes through the underlying adapter
// error (already a corefail.AdapterTransient) otherwise.
func translateBreakerErr(venue string, err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return &corefail.AdapterUnavailable{Venue: venue, Cause: err}
	}
	return err
}
