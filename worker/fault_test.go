package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimulatedErrorFault(t *testing.T) {
	f := SimulatedErrorFault()
	e := newLeadEvent(1, "website")

	assert.NoError(t, f.Inject(context.Background(), e))
	e.Metadata.SimulateError = true
	assert.ErrorIs(t, f.Inject(context.Background(), e), ErrSimulatedFault)
}

func TestSourceFault(t *testing.T) {
	f := SourceFault("test-error")

	assert.NoError(t, f.Inject(context.Background(), newLeadEvent(1, "website")))
	assert.ErrorIs(t, f.Inject(context.Background(), newLeadEvent(1, "test-error")), ErrSimulatedFault)
}

func TestFailTimes(t *testing.T) {
	f := FailTimes(2)
	e := newLeadEvent(1, "website")

	assert.Error(t, f.Inject(context.Background(), e))
	assert.Error(t, f.Inject(context.Background(), e))
	assert.NoError(t, f.Inject(context.Background(), e))
}

func TestAnyFault(t *testing.T) {
	f := AnyFault(SimulatedErrorFault(), SourceFault("test-error"))

	assert.NoError(t, f.Inject(context.Background(), newLeadEvent(1, "website")))
	assert.Error(t, f.Inject(context.Background(), newLeadEvent(1, "test-error")))
}
