// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package reporting

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"catchall/internal/capture"
	"catchall/internal/enrichment"
	"catchall/internal/report"
	"catchall/internal/sink"

	"github.com/pterm/pterm"
)

// GeoLookup resolves a client address to GeoInfo; nil means "no data".
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) enrichment.GeoInfo
}

// Reporter runs format+dispatch for captured requests in detached goroutines.
// Nothing it does can reach the client response: every error is logged and
// dropped here.
type Reporter struct {
	geo       GeoLookup
	formatter *report.Formatter
	sink      sink.Dispatcher
	logger    *pterm.Logger
	timeout   time.Duration

	// pruned reports rows removed by geo store maintenance; nil when there is none.
	pruned func() int64

	wg       sync.WaitGroup
	inFlight atomic.Int64
	sent     atomic.Int64
	failed   atomic.Int64
}

// NewReporter creates a reporter. geo may be nil; timeout <= 0 leaves each
// task bounded only by the transport's own timeouts.
func NewReporter(geo GeoLookup, formatter *report.Formatter, dispatcher sink.Dispatcher, logger *pterm.Logger, timeout time.Duration) *Reporter {
	if formatter == nil {
		formatter = report.NewFormatter()
	}
	if dispatcher == nil {
		dispatcher = sink.NoopSink{}
	}
	return &Reporter{
		geo:       geo,
		formatter: formatter,
		sink:      dispatcher,
		logger:    logger,
		timeout:   timeout,
	}
}

// Spawn schedules the report for req and returns immediately. The task keeps
// ctx's values but not its cancellation, so it outlives the response.
func (r *Reporter) Spawn(ctx context.Context, req *capture.Request) {
	r.wg.Add(1)
	r.inFlight.Add(1)

	go func() {
		defer r.wg.Done()
		defer r.inFlight.Add(-1)
		defer func() {
			if rec := recover(); rec != nil {
				r.failed.Add(1)
				r.logger.WithCaller().Error("Report task panicked",
					r.logger.Args("request_id", req.ID, "panic", fmt.Sprint(rec), "stack", string(debug.Stack())))
			}
		}()

		r.run(context.WithoutCancel(ctx), req)
	}()
}

func (r *Reporter) run(ctx context.Context, req *capture.Request) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()

	var geo enrichment.GeoInfo
	if r.geo != nil {
		geo = r.geo.Lookup(ctx, req.ClientHost)
	}

	rep := r.formatter.Format(req, geo)

	if err := r.sink.Dispatch(ctx, rep); err != nil {
		r.failed.Add(1)
		r.logger.Warn("Failed to deliver report",
			r.logger.Args("request_id", req.ID, "sink", r.sink.Name(), "error", err))
		return
	}

	r.sent.Add(1)
	r.logger.Debug("Report delivered",
		r.logger.Args(
			"request_id", req.ID,
			"method", req.Method,
			"url", req.URL,
			"client", req.ClientHost,
			"sink", r.sink.Name(),
			"duration_ms", time.Since(start).Milliseconds(),
		))
}

// Shutdown waits for in-flight reports until ctx is done. Reports still
// running after that are abandoned.
func (r *Reporter) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Debug("All pending reports flushed")
		return nil
	case <-ctx.Done():
		r.logger.Warn("Dropping in-flight reports on shutdown",
			r.logger.Args("pending", r.inFlight.Load()))
		return ctx.Err()
	}
}
