package report

import (
	"context"
	"fmt"

	"github.com/arvelex/veriplan/pkg/model"
)

// Sink consumes a finalized RunReport. Implementations update the issue
// tracker, upload artifacts, or send notifications. A sink never sees a
// report before it is final and must not mutate it.
type Sink interface {
	Name() string
	Publish(ctx context.Context, report *model.RunReport) error
}

// Warning records a sink failure. Sink errors occur after the run is already
// finalized; they never alter the report's status.
type Warning struct {
	Sink string
	Err  error
}

func (w Warning) Error() string {
	return fmt.Sprintf("sink %s: %v", w.Sink, w.Err)
}

// Dispatch invokes each sink exactly once with the finished report. Failures
// are isolated per sink and returned as warnings; every sink runs regardless
// of how the previous ones fared.
func Dispatch(ctx context.Context, report *model.RunReport, sinks []Sink) []Warning {
	var warnings []Warning
	for _, s := range sinks {
		if err := s.Publish(ctx, report); err != nil {
			warnings = append(warnings, Warning{Sink: s.Name(), Err: err})
		}
	}
	return warnings
}
