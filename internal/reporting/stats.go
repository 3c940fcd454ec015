package reporting

import (
	"context"
	"time"
)

type Stats struct {
	Sent      int64
	Failed    int64
	InFlight  int64
	GeoHits   int64
	GeoMisses int64
	GeoPruned int64
}

type geoStats interface {
	Stats() (hits, misses int64)
}

// SetPruneCounter adds the geo store's pruned row total to Stats. Call it
// before StatsLoop starts.
func (r *Reporter) SetPruneCounter(pruned func() int64) {
	r.pruned = pruned
}

func (r *Reporter) Stats() Stats {
	s := Stats{
		Sent:     r.sent.Load(),
		Failed:   r.failed.Load(),
		InFlight: r.inFlight.Load(),
	}
	if gs, ok := r.geo.(geoStats); ok {
		s.GeoHits, s.GeoMisses = gs.Stats()
	}
	if r.pruned != nil {
		s.GeoPruned = r.pruned()
	}
	return s
}

// StatsLoop logs a summary line every interval until ctx is cancelled.
func (r *Reporter) StatsLoop(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s := r.Stats()
			r.logger.Info("Report stats",
				r.logger.Args(
					"sent", s.Sent,
					"failed", s.Failed,
					"in_flight", s.InFlight,
					"geo_hits", s.GeoHits,
					"geo_misses", s.GeoMisses,
					"geo_pruned", s.GeoPruned,
				))
		}
	}
}
