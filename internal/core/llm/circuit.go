package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
)

// circuitBreaker stops calling a provider after consecutive transport failures.
type circuitBreaker struct {
	name      string
	threshold int
	timeout   time.Duration
	logger    *zerolog.Logger

	mu                  sync.Mutex
	consecutiveFailures int
	openUntil           time.Time
	now                 func() time.Time
}

func newCircuitBreaker(name string, threshold int, timeout time.Duration, logger *zerolog.Logger) *circuitBreaker {
	return &circuitBreaker{
		name:      name,
		threshold: threshold,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

func (c *circuitBreaker) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.now().Before(c.openUntil) {
		return fmt.Errorf("%w until %v", coreerrors.ErrCircuitBreakerOpen, c.openUntil)
	}

	return nil
}

func (c *circuitBreaker) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures = 0
}

func (c *circuitBreaker) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= c.threshold {
		c.openUntil = c.now().Add(c.timeout)
		c.logger.Warn().
			Str(logKeyProvider, c.name).
			Int("consecutive_failures", c.consecutiveFailures).
			Time("open_until", c.openUntil).
			Msg("Circuit breaker opened")
	}
}
