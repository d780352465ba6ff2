// Package metrics provides shared metric emission helpers.
package metrics

import (
	"time"

	obserrors "github.com/Silverviles/nexar-hal/internal/observability/errors"
	"github.com/Silverviles/nexar-hal/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// TickMetric captures one scheduler loop iteration for metric emission.
type TickMetric struct {
	Loop      string
	Processed int
	Duration  time.Duration
	Err       error
}

// EmitTick emits the standardised per-tick metrics for a scheduler loop.
func EmitTick(sink statsd.Sink, in TickMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	if in.Err != nil {
		result = ResultError
	} else if in.Processed == 0 {
		result = ResultNoop
	}

	tags := map[string]string{
		"loop":   in.Loop,
		"result": result,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("scheduler.tick", 1, tags)
	if in.Processed > 0 {
		sink.Count("scheduler.processed", int64(in.Processed), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("scheduler.tick_duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
