// Package retry wraps the broker with bounded retries and linear backoff.
package retry

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rsharma-dev/nifty-strangler/internal/broker"
	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

// Config controls the retry behavior.
type Config struct {
	MaxRetries int           // retries after the first attempt
	Backoff    time.Duration // linear: attempt n sleeps n*Backoff
}

// DefaultConfig matches the engine contract: 2 retries, 1s linear backoff.
var DefaultConfig = Config{
	MaxRetries: 2,
	Backoff:    time.Second,
}

// Broker wraps another Broker, retrying transient failures. A call that
// exhausts its retries returns the last error; callers treat that as
// "unavailable" and move to their next fallback tier.
type Broker struct {
	inner  broker.Broker
	logger *logrus.Logger
	config Config
	sleep  func(time.Duration)
}

// NewBroker creates a retrying broker wrapper.
func NewBroker(inner broker.Broker, logger *logrus.Logger, config ...Config) *Broker {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Broker{
		inner:  inner,
		logger: logger,
		config: cfg,
		sleep:  time.Sleep,
	}
}

// Ensure Broker implements broker.Broker at compile time.
var _ broker.Broker = (*Broker)(nil)

// do runs fn with bounded retries and linear backoff on transient errors.
func do[T any](b *Broker, op string, fn func() (T, error)) (T, error) {
	var (
		out     T
		lastErr error
	)
	for attempt := 0; attempt <= b.config.MaxRetries; attempt++ {
		var err error
		out, err = fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isTransientError(err) || attempt == b.config.MaxRetries {
			break
		}
		backoff := time.Duration(attempt+1) * b.config.Backoff
		b.logger.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt + 1,
			"backoff": backoff,
		}).WithError(err).Warn("transient broker error, retrying")
		b.sleep(backoff)
	}
	return out, lastErr
}

// GetOptionChain retries the chain fetch on transient failures.
func (b *Broker) GetOptionChain(name, expiry string) ([]broker.ChainOption, error) {
	return do(b, "option_chain", func() ([]broker.ChainOption, error) {
		return b.inner.GetOptionChain(name, expiry)
	})
}

// GetLTP retries the price fetch on transient failures.
func (b *Broker) GetLTP(exchange, tradingSymbol, token string) (float64, error) {
	return do(b, "ltp", func() (float64, error) {
		return b.inner.GetLTP(exchange, tradingSymbol, token)
	})
}

// GetCandles retries the bar fetch on transient failures.
func (b *Broker) GetCandles(token string, interval broker.CandleInterval,
	from, to time.Time) ([]models.Candle, error) {
	return do(b, "candles", func() ([]models.Candle, error) {
		return b.inner.GetCandles(token, interval, from, to)
	})
}

// SearchScrip retries the catalog search on transient failures.
func (b *Broker) SearchScrip(query string) ([]broker.CatalogEntry, error) {
	return do(b, "search_scrip", func() ([]broker.CatalogEntry, error) {
		return b.inner.SearchScrip(query)
	})
}

// isTransientError reports whether the failure is worth retrying.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
