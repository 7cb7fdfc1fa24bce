package metrics

import (
	"context"
	"sync"
	"time"
)

// Fallback produces a substitute response when a boundary's wrapped
// operation fails. boundaryContext carries whatever caller-supplied value
// Execute was invoked with.
type Fallback func(err error, boundaryContext any) (any, error)

// ErrorObserver is notified of every error the boundary intercepts, before
// fallback or retry is applied.
type ErrorObserver func(err error, boundaryContext any)

// BoundaryConfig configures an Error Boundary (spec §4.6 "Error boundaries
// wrap a named operation ... fallback ... onError ... maxRetries/
// retryDelay"). Retries apply only to migration/ingest paths; the
// synchronous read path (cold search, hot lookup) must never retry, so
// callers wrapping those paths should leave MaxRetries at zero.
type BoundaryConfig struct {
	Name       string
	Fallback   Fallback
	OnError    ErrorObserver
	MaxRetries int
	RetryDelay time.Duration
}

// Boundary is a scoped error boundary: it wraps a named operation, tracks
// error/fallback/recovery counts and the error rate, and optionally
// retries or substitutes a fallback response on failure.
type Boundary struct {
	cfg     BoundaryConfig
	metrics *Registry

	mu            sync.Mutex
	errorCount    int64
	fallbackCount int64
	recoveryCount int64
	lastErrorAt   time.Time
	errorTimes    []time.Time
}

// NewBoundary constructs a Boundary reporting into registry under cfg.Name.
func NewBoundary(cfg BoundaryConfig, registry *Registry) *Boundary {
	return &Boundary{cfg: cfg, metrics: registry}
}

// Operation is the work an Error Boundary wraps. boundaryContext is passed
// through to Fallback and ErrorObserver unmodified, letting callers attach
// request-scoped data without a type assertion in the boundary itself.
type Operation func(ctx context.Context) (any, error)

// Execute runs op under the boundary: on error it calls onError, retries up
// to MaxRetries with RetryDelay between attempts, and if every attempt
// fails falls back to Fallback (if configured). A successful retry after a
// prior failure counts toward recoveryCount.
func (b *Boundary) Execute(ctx context.Context, boundaryContext any, op Operation) (any, error) {
	var lastErr error
	attempted := false

	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			attempted = true
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.cfg.RetryDelay):
			}
		}

		result, err := op(ctx)
		if err == nil {
			if attempted {
				b.recordRecovery()
			}
			return result, nil
		}

		lastErr = err
		b.recordError(err, boundaryContext)
	}

	if b.cfg.Fallback != nil {
		result, err := b.cfg.Fallback(lastErr, boundaryContext)
		if err == nil {
			b.recordFallback()
			return result, nil
		}
		return nil, err
	}
	return nil, lastErr
}

func (b *Boundary) recordError(err error, boundaryContext any) {
	b.mu.Lock()
	b.errorCount++
	now := time.Now()
	b.lastErrorAt = now
	b.errorTimes = append(b.errorTimes, now)
	b.pruneErrorWindowLocked(now)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.Counter("error_boundary_errors_total", 1, Tags{"boundary": b.cfg.Name})
	}
	if b.cfg.OnError != nil {
		b.cfg.OnError(err, boundaryContext)
	}
}

func (b *Boundary) recordFallback() {
	b.mu.Lock()
	b.fallbackCount++
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.Counter("error_boundary_fallbacks_total", 1, Tags{"boundary": b.cfg.Name})
	}
}

func (b *Boundary) recordRecovery() {
	b.mu.Lock()
	b.recoveryCount++
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.Counter("error_boundary_recoveries_total", 1, Tags{"boundary": b.cfg.Name})
	}
}

// pruneErrorWindowLocked drops error timestamps older than a minute; caller
// holds b.mu.
func (b *Boundary) pruneErrorWindowLocked(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for ; i < len(b.errorTimes); i++ {
		if b.errorTimes[i].After(cutoff) {
			break
		}
	}
	b.errorTimes = b.errorTimes[i:]
}

// State is a snapshot of a boundary's counters (spec §4.6).
type State struct {
	ErrorCount    int64
	FallbackCount int64
	RecoveryCount int64
	LastErrorAt   time.Time
	ErrorRate     float64 // errors per minute over the trailing window
}

// State reports the boundary's current counters.
func (b *Boundary) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneErrorWindowLocked(time.Now())
	return State{
		ErrorCount:    b.errorCount,
		FallbackCount: b.fallbackCount,
		RecoveryCount: b.recoveryCount,
		LastErrorAt:   b.lastErrorAt,
		ErrorRate:     float64(len(b.errorTimes)),
	}
}

// ClearErrorState resets all counters and the trailing-window error log,
// e.g. after an operator acknowledges an incident (spec §4.6
// "clearErrorState()").
func (b *Boundary) ClearErrorState() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errorCount = 0
	b.fallbackCount = 0
	b.recoveryCount = 0
	b.lastErrorAt = time.Time{}
	b.errorTimes = nil
}
