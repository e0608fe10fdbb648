package broker

import (
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

// Broker defines the market-data surface the engine consumes. All calls are
// blocking; cancellation beyond the per-call HTTP timeout is not propagated.
type Broker interface {
	// GetOptionChain returns the quoted greeks chain for an underlying/expiry.
	GetOptionChain(name, expiry string) ([]ChainOption, error)

	// GetLTP returns the last traded price for a resolved instrument.
	GetLTP(exchange, tradingSymbol, token string) (float64, error)

	// GetCandles returns historical bars for a token over a window.
	GetCandles(token string, interval CandleInterval, from, to time.Time) ([]models.Candle, error)

	// SearchScrip queries the symbol catalog by free text.
	SearchScrip(query string) ([]CatalogEntry, error)
}

// Ensure AngelAPI implements Broker at compile time.
var _ Broker = (*AngelAPI)(nil)

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a CircuitBreakerBroker with sensible defaults.
func NewCircuitBreakerBroker(broker Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings.
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// GetOptionChain wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetOptionChain(name, expiry string) ([]ChainOption, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]ChainOption, error) {
		return b.GetOptionChain(name, expiry)
	})
}

// GetLTP wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetLTP(exchange, tradingSymbol, token string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (float64, error) {
		return b.GetLTP(exchange, tradingSymbol, token)
	})
}

// GetCandles wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetCandles(token string, interval CandleInterval,
	from, to time.Time) ([]models.Candle, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]models.Candle, error) {
		return b.GetCandles(token, interval, from, to)
	})
}

// SearchScrip wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) SearchScrip(query string) ([]CatalogEntry, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]CatalogEntry, error) {
		return b.SearchScrip(query)
	})
}

// Ensure CircuitBreakerBroker implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)
