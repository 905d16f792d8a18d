package opmon

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestOperation(t *testing.T) {
	for i := 0; i < 3; i++ {
		op := StartOperation("test.op")
		time.Sleep(time.Millisecond)
		op.Finish(time.Hour)
	}

	var found bool
	for _, st := range Stats() {
		if st.Name == "test.op" {
			found = true
			assert.Equal(t, uint64(3), st.Count)
			assert.T(t, st.Max >= st.Avg)
		}
	}
	assert.T(t, found)

	Dump()
	for _, st := range Stats() {
		assert.NotEqual(t, "test.op", st.Name)
	}
}
