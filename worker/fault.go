package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/coregx/leadbus/model"
)

// ErrSimulatedFault is the cause of every error returned by the fault
// injectors in this package.
var ErrSimulatedFault = errors.New("simulated processing error")

// FaultInjector decides whether an event should fail before any processing
// step runs. It exists to exercise the retry and dead letter paths.
type FaultInjector interface {
	Inject(ctx context.Context, event model.Event) error
}

// FaultFunc adapts a function to FaultInjector.
type FaultFunc func(ctx context.Context, event model.Event) error

// Inject calls f.
func (f FaultFunc) Inject(ctx context.Context, event model.Event) error {
	return f(ctx, event)
}

// SimulatedErrorFault fails events whose metadata carries SimulateError.
// Replayed events have the flag cleared and go through.
func SimulatedErrorFault() FaultInjector {
	return FaultFunc(func(_ context.Context, event model.Event) error {
		if event.Metadata.SimulateError {
			return fmt.Errorf("%w for test lead: %d", ErrSimulatedFault, event.Lead.ID)
		}
		return nil
	})
}

// SourceFault fails events of leads created with the given source.
func SourceFault(source string) FaultInjector {
	return FaultFunc(func(_ context.Context, event model.Event) error {
		if event.Lead.Source == source {
			return fmt.Errorf("%w for lead %d with source %q", ErrSimulatedFault, event.Lead.ID, source)
		}
		return nil
	})
}

// FailTimes fails the first n events it sees and lets the rest through.
func FailTimes(n int) FaultInjector {
	var calls int64
	return FaultFunc(func(_ context.Context, event model.Event) error {
		if c := atomic.AddInt64(&calls, 1); c <= int64(n) {
			return fmt.Errorf("%w (injected failure %d of %d)", ErrSimulatedFault, c, n)
		}
		return nil
	})
}

// AnyFault fails an event when any of the injectors does.
func AnyFault(injectors ...FaultInjector) FaultInjector {
	return FaultFunc(func(ctx context.Context, event model.Event) error {
		for _, f := range injectors {
			if err := f.Inject(ctx, event); err != nil {
				return err
			}
		}
		return nil
	})
}
