package provider

import (
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryDecision is raised once per failed attempt. Observers set Retry to
// ask for another attempt and may set Delay to postpone it.
type RetryDecision struct {
	Level, X, Y int
	URL         string

	// TimesRetried is zero on the first failure of a request.
	TimesRetried int
	Err          error

	Retry bool
	Delay time.Duration
}

// RetryObserver is called synchronously for each failed attempt. It must
// not issue requests for the same tile from inside the callback.
type RetryObserver func(*RetryDecision)

type observerEntry struct {
	fn RetryObserver
}

// ErrorEvent broadcasts RetryDecisions to observers in registration order.
type ErrorEvent struct {
	mu        sync.RWMutex
	observers []*observerEntry
}

// Subscribe registers fn and returns a function that removes it again.
func (e *ErrorEvent) Subscribe(fn RetryObserver) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	entry := &observerEntry{fn: fn}

	e.mu.Lock()
	e.observers = append(e.observers, entry)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.remove(entry)
		})
	}
}

func (e *ErrorEvent) remove(entry *observerEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, o := range e.observers {
		if o == entry {
			// copy so a concurrent Raise keeps iterating its own snapshot
			next := make([]*observerEntry, 0, len(e.observers)-1)
			next = append(next, e.observers[:i]...)
			next = append(next, e.observers[i+1:]...)
			e.observers = next
			return
		}
	}
}

// Len returns the number of registered observers.
func (e *ErrorEvent) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.observers)
}

// Raise invokes every observer with d, in order, and returns once all of them returned.
func (e *ErrorEvent) Raise(d *RetryDecision) {
	e.mu.RLock()
	snapshot := e.observers
	e.mu.RUnlock()

	for _, o := range snapshot {
		o.fn(d)
	}
}

// BackoffPolicy is a ready-made observer granting a bounded number of
// retries with exponential delays.
type BackoffPolicy struct {
	// MaxRetries is the number of retries granted per request. Negative means unbounded.
	MaxRetries int

	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64

	// RetryIf filters which failures are retried. Nil retries every failure.
	RetryIf func(error) bool
}

// Observe implements RetryObserver. It never clears a retry another observer granted.
func (p BackoffPolicy) Observe(d *RetryDecision) {
	if p.MaxRetries >= 0 && d.TimesRetried >= p.MaxRetries {
		return
	}
	if p.RetryIf != nil && !p.RetryIf(d.Err) {
		return
	}

	d.Retry = true
	if delay := p.delay(d.TimesRetried); delay > d.Delay {
		d.Delay = delay
	}
}

// delay is the wait before retry number timesRetried+1: InitialInterval grown
// by Multiplier per retry, capped at MaxInterval, then jittered by
// RandomizationFactor.
func (p BackoffPolicy) delay(timesRetried int) time.Duration {
	if p.InitialInterval <= 0 {
		return 0
	}

	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = backoff.DefaultMultiplier
	}
	maxInterval := p.MaxInterval
	if maxInterval <= 0 {
		maxInterval = backoff.DefaultMaxInterval
	}

	interval := maxInterval
	if grown := float64(p.InitialInterval) * math.Pow(multiplier, float64(timesRetried)); grown < float64(maxInterval) {
		interval = time.Duration(grown)
	}

	// a fresh backoff started at interval yields interval with jitter applied
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = maxInterval
	b.RandomizationFactor = p.RandomizationFactor
	b.MaxElapsedTime = 0
	b.Reset()

	return b.NextBackOff()
}
