// Package dispatcher fans drained time event batches out to subscribers.
package dispatcher

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/backclock/pkg/timeevent"
)

// DeliveryFunc is invoked once per step with the step's events in batch order.
// The slice is shared between subscribers and must not be modified.
type DeliveryFunc func(ctx context.Context, ts timeevent.UnixNanos, events []timeevent.TimeEvent) error

// Subscriber encapsulates metadata and handler for an event consumer.
type Subscriber struct {
	ID      string
	Deliver DeliveryFunc
}

// Fanout delivers each step's events to every subscriber in parallel.
type Fanout struct {
	subscribers []Subscriber
	metrics     *FanoutMetrics
	maxWorkers  int
}

// FanoutError aggregates multiple subscriber errors with contextual metadata.
type FanoutError struct {
	Operation         string
	Step              timeevent.UnixNanos
	SubscriberCount   int
	FailedSubscribers []string
	Errors            []error
}

// Error returns a descriptive summary of the aggregated fan-out failure.
func (e *FanoutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := []string{}
	if op := strings.TrimSpace(e.Operation); op != "" {
		parts = append(parts, op)
	} else {
		parts = append(parts, "fanout error")
	}
	parts = append(parts, fmt.Sprintf("step=%d", uint64(e.Step)))
	if e.SubscriberCount > 0 {
		parts = append(parts, fmt.Sprintf("subscriber_count=%d", e.SubscriberCount))
	}
	if len(e.FailedSubscribers) > 0 {
		parts = append(parts, fmt.Sprintf("failed_subscribers=%v", e.FailedSubscribers))
	}
	for _, err := range e.Errors {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes the underlying subscriber errors for errors.Is/As compatibility.
func (e *FanoutError) Unwrap() []error {
	if e == nil {
		return nil
	}
	return append([]error(nil), e.Errors...)
}

// NewFanout constructs a fan-out over subscribers. maxWorkers <= 0 means GOMAXPROCS.
// Subscribers without a Deliver function are skipped.
func NewFanout(metrics *FanoutMetrics, maxWorkers int, subscribers ...Subscriber) *Fanout {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	subs := make([]Subscriber, 0, len(subscribers))
	for _, sub := range subscribers {
		if sub.Deliver != nil {
			subs = append(subs, sub)
		}
	}
	return &Fanout{
		subscribers: subs,
		metrics:     metrics,
		maxWorkers:  maxWorkers,
	}
}

// Len returns the number of active subscribers.
func (f *Fanout) Len() int { return len(f.subscribers) }

// Dispatch delivers events to every subscriber. Empty steps are not delivered.
func (f *Fanout) Dispatch(ctx context.Context, ts timeevent.UnixNanos, events []timeevent.TimeEvent) error {
	count := len(f.subscribers)
	if count == 0 || len(events) == 0 {
		return nil
	}
	if count == 1 {
		if id, err := f.deliver(ctx, f.subscribers[0], ts, events); err != nil {
			return f.fail(ts, []string{id}, []error{err})
		}
		return nil
	}

	workerLimit := min(f.maxWorkers, count)
	var mu sync.Mutex
	var workerErrs []error
	var failedSubscribers []string
	record := func(id string, err error) {
		mu.Lock()
		workerErrs = append(workerErrs, err)
		failedSubscribers = append(failedSubscribers, id)
		mu.Unlock()
	}

	p := pool.New().WithMaxGoroutines(workerLimit)
	for _, sub := range f.subscribers {
		p.Go(func() {
			if id, err := f.deliver(ctx, sub, ts, events); err != nil {
				record(id, err)
			}
		})
	}
	p.Wait()

	if len(workerErrs) == 0 {
		return nil
	}
	return f.fail(ts, failedSubscribers, workerErrs)
}

// deliver runs one subscriber, turning a panic into an error. The returned id names
// the failure source: the subscriber, or "context" when ctx is already done.
func (f *Fanout) deliver(ctx context.Context, sub Subscriber, ts timeevent.UnixNanos, events []timeevent.TimeEvent) (id string, err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "context", fmt.Errorf("context error: %w", ctxErr)
	}
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			id, err = sub.ID, fmt.Errorf("subscriber %s panic: %v", sub.ID, r)
		}
		f.metrics.observe(sub.ID, err, time.Since(started))
	}()
	if deliverErr := sub.Deliver(ctx, ts, events); deliverErr != nil {
		return sub.ID, fmt.Errorf("subscriber %s: %w", sub.ID, deliverErr)
	}
	return sub.ID, nil
}

func (f *Fanout) fail(ts timeevent.UnixNanos, failed []string, errs []error) error {
	return &FanoutError{
		Operation:         "dispatcher fan-out",
		Step:              ts,
		SubscriberCount:   len(f.subscribers),
		FailedSubscribers: uniqueStrings(failed),
		Errors:            append([]error(nil), errs...),
	}
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
