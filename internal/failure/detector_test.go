package failure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// P3: a peer with >=3 consecutive send failures is evicted.
func TestRecordFailure_EvictsAtThreshold(t *testing.T) {
	d := New()

	o := d.RecordFailure("b:5000")
	assert.False(t, o.Evicted)
	o = d.RecordFailure("b:5000")
	assert.False(t, o.Evicted)
	o = d.RecordFailure("b:5000")
	assert.True(t, o.Evicted)
	assert.Equal(t, 3, o.FailureCount)
}

// P4: after a successful exchange, failure_count[P] = 0.
func TestRecordSuccess_ResetsCount(t *testing.T) {
	d := New()
	d.RecordFailure("b:5000")
	d.RecordFailure("b:5000")
	d.RecordSuccess("b:5000")

	assert.Equal(t, 0, d.FailureCount("b:5000"))

	o := d.RecordFailure("b:5000")
	assert.False(t, o.Evicted, "a successful exchange must clear prior failures")
}

func TestFailureCount_TracksPeersIndependently(t *testing.T) {
	d := New()
	d.RecordFailure("b:5000")
	d.RecordFailure("c:5000")
	d.RecordFailure("c:5000")

	assert.Equal(t, 1, d.FailureCount("b:5000"))
	assert.Equal(t, 2, d.FailureCount("c:5000"))
}
