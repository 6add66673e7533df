package graph

import (
	"context"
	"sync/atomic"
)

// Token is a one-shot completion signal. Signal may be called any number
// of times; only the first has an effect.
type Token struct {
	fired atomic.Bool
	ch    chan struct{}
}

func NewToken() *Token {
	return &Token{ch: make(chan struct{})}
}

// Signal fires the token and wakes every waiter.
func (t *Token) Signal() {
	if t.fired.CompareAndSwap(false, true) {
		close(t.ch)
	}
}

// Fired reports whether Signal has been called.
func (t *Token) Fired() bool {
	return t.fired.Load()
}

// Done is closed once the token fires.
func (t *Token) Done() <-chan struct{} {
	return t.ch
}

// Wait blocks until the token fires or ctx ends.
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.ch:
		return nil
	case <-ctx.Done():
		// Prefer completion when both are ready.
		select {
		case <-t.ch:
			return nil
		default:
		}
		return ctx.Err()
	}
}
