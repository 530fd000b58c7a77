package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordOperationTalliesSuccessAndFailure(t *testing.T) {
	c := NewCollector("marfs_test")
	c.RecordOperation("DELETE_OBJ", 5*time.Millisecond, 128, true)
	c.RecordOperation("DELETE_OBJ", 0, 0, false)

	snap := c.Snapshot()
	assert.Equal(t, float64(1), snap["operations_total/DELETE_OBJ/success"])
	assert.Equal(t, float64(1), snap["operations_total/DELETE_OBJ/error"])
	assert.Equal(t, float64(1), snap["operation_duration_seconds/DELETE_OBJ"], "only the timed call should land in the histogram")
}

func TestRecordErrorIsIndependentOfRecordOperation(t *testing.T) {
	c := NewCollector("marfs_test")
	c.RecordError("REBUILD", errors.New("short read"))
	c.RecordError("REBUILD", errors.New("short read"))

	snap := c.Snapshot()
	assert.Equal(t, float64(2), snap["errors_total/REBUILD"])
	assert.NotContains(t, snap, "operations_total/REBUILD/error")
}
