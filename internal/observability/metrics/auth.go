// Package metrics emits the standard StatsD metrics of the authentication services.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/uninbox/authd/internal/observability/errors"
	"github.com/uninbox/authd/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
	ResultNoop    = "noop"
)

// Cache lookup outcomes.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// AuthMetric captures one completed authentication operation.
type AuthMetric struct {
	// Op names the operation, e.g. "session.validate" or "passkey.authenticate".
	Op       string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitAuthOp emits auth.op (count) and auth.op.duration (timing).
func EmitAuthOp(sink statsd.Sink, in AuthMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"op":     in.Op,
		"result": in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auth.op", 1, tags)
	if in.Duration > 0 {
		sink.Timing("auth.op.duration", in.Duration, CloneTags(tags))
	}
}

// EmitCacheLookup emits cache.lookup tagged with the cache name and outcome.
func EmitCacheLookup(sink statsd.Sink, cache, outcome string) {
	if sink == nil {
		return
	}
	sink.Count("cache.lookup", 1, map[string]string{"cache": cache, "outcome": outcome})
}

// EmitSweep records how many expired sessions one sweeper pass removed.
func EmitSweep(sink statsd.Sink, removed int64, d time.Duration) {
	if sink == nil {
		return
	}
	sink.Count("sessions.swept", removed, nil)
	sink.Timing("sessions.sweep.duration", d, nil)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
