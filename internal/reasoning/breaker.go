package reasoning

import (
	"context"
	"errors"
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Breaker — circuit breaker вокруг Client.
//
// После maxFailures подряд неудачных вызовов открывается и отклоняет
// вызовы с ErrCircuitOpen до истечения timeout, затем пропускает
// пробный вызов (half-open). Отмена контекста вызывающей стороной
// неудачей не считается.
type Breaker struct {
	next Client

	mu          sync.Mutex
	state       breakerState
	failures    int
	maxFailures int
	timeout     time.Duration
	openedAt    time.Time
	now         func() time.Time
}

var _ Client = (*Breaker)(nil)

// NewBreaker оборачивает next.
func NewBreaker(next Client, maxFailures int, timeout time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		next:        next,
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Complete вызывает next, если цепь закрыта или полуоткрыта.
func (b *Breaker) Complete(ctx context.Context, req Request) (string, error) {
	if !b.allowRequest() {
		return "", ErrCircuitOpen
	}

	out, err := b.next.Complete(ctx, req)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		b.onSuccess()
	case errors.Is(err, context.Canceled):
	default:
		b.onFailure()
	}
	return out, err
}

// Open возвращает true, если цепь сейчас отклоняет вызовы.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && b.now().Sub(b.openedAt) < b.timeout
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed, stateHalfOpen:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) >= b.timeout {
			b.state = stateHalfOpen
			return true
		}
	}
	return false
}

// onFailure вызывается под b.mu.
func (b *Breaker) onFailure() {
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}

// onSuccess вызывается под b.mu.
func (b *Breaker) onSuccess() {
	b.failures = 0
	b.state = stateClosed
}
