package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New("audit-sink", WithFailureThreshold(3))

	assert.Equal(t, StateChange{}, b.RecordFailure())
	assert.Equal(t, StateChange{}, b.RecordFailure())
	assert.False(t, b.IsOpen())

	assert.Equal(t, StateChange{Opened: true}, b.RecordFailure())
	assert.True(t, b.IsOpen())
	assert.Equal(t, "open", b.State().String())

	assert.Equal(t, StateChange{}, b.RecordFailure(), "already open")
}

func TestBreaker_SuccessResetsFailureRun(t *testing.T) {
	b := New("audit-sink", WithFailureThreshold(2))

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
}

func TestBreaker_ClosesAfterConsecutiveSuccesses(t *testing.T) {
	b := New("audit-sink", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	assert.Equal(t, StateChange{}, b.RecordSuccess())
	b.RecordFailure()
	assert.Equal(t, StateChange{}, b.RecordSuccess(), "failure restarts the success run")
	assert.Equal(t, StateChange{Closed: true}, b.RecordSuccess())
	assert.False(t, b.IsOpen())
}

func TestBreaker_DefaultsAndReset(t *testing.T) {
	b := New("kafka", WithFailureThreshold(0), nil)
	assert.Equal(t, "kafka", b.Name())

	for range 4 {
		b.RecordFailure()
	}
	assert.False(t, b.IsOpen(), "zero threshold keeps the default of 5")
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}
