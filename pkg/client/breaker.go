package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrBreakerOpen is returned without contacting the server while the breaker is open
var ErrBreakerOpen = errors.New("server marked unavailable after repeated failures")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerProbing
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerTransport stops calling an unreachable server after MaxFailures
// consecutive transport failures. After Cooldown one probe call is let through;
// its outcome closes or reopens the breaker. Errors reported by the server
// itself count as successes.
type BreakerTransport struct {
	next        Transport
	maxFailures int
	cooldown    time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreakerTransport wraps next. maxFailures <= 0 disables the breaker.
func NewBreakerTransport(next Transport, maxFailures int, cooldown time.Duration, logger zerolog.Logger) *BreakerTransport {
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &BreakerTransport{
		next:        next,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		logger:      logger.With().Str("component", "mkts-breaker").Logger(),
		now:         time.Now,
	}
}

// Call implements Transport
func (b *BreakerTransport) Call(ctx context.Context, method string, params, reply interface{}) error {
	if b.maxFailures <= 0 {
		return b.next.Call(ctx, method, params, reply)
	}
	if !b.admit() {
		return ErrBreakerOpen
	}
	err := b.next.Call(ctx, method, params, reply)
	b.record(ctx, err)
	return err
}

func (b *BreakerTransport) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.transition(breakerProbing)
		return true
	case breakerProbing:
		// one probe at a time
		return false
	default:
		return true
	}
}

func (b *BreakerTransport) record(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !unreachable(ctx, err) {
		b.failures = 0
		if b.state != breakerClosed {
			b.transition(breakerClosed)
		}
		return
	}
	b.failures++
	if b.state == breakerProbing || b.failures >= b.maxFailures {
		b.openedAt = b.now()
		b.transition(breakerOpen)
	}
}

func (b *BreakerTransport) transition(to breakerState) {
	if b.state == to {
		return
	}
	b.logger.Info().
		Str("from", b.state.String()).
		Str("to", to.String()).
		Int("failures", b.failures).
		Msg("Breaker state changed")
	b.state = to
	if to == breakerClosed {
		b.failures = 0
	}
}

// unreachable reports whether err means the server could not be used, as
// opposed to the server answering with an error.
func unreachable(ctx context.Context, err error) bool {
	if err == nil || errors.Is(err, ErrRemoteProtocol) || errors.Is(err, ErrNullResult) ||
		errors.Is(err, ErrResponseTooLarge) {
		return false
	}
	// the caller gave up; says nothing about the server
	if ctx.Err() != nil {
		return false
	}
	return true
}
