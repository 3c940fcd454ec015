package sink

import (
	"context"
	"fmt"

	"catchall/internal/report"
)

// Dispatcher delivers a report to an external channel. Implementations do
// not retry.
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, rep *report.Report) error
}

// DeliveryError wraps any failure to hand a report to the sink.
type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver report via %s: %v", e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// NoopSink is used when no sink is configured; every dispatch succeeds.
type NoopSink struct{}

func (NoopSink) Name() string { return "noop" }

func (NoopSink) Dispatch(context.Context, *report.Report) error { return nil }
