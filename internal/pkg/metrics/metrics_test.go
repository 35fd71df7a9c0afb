package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStat struct {
	acquired, idle, total int32
	empty, canceled       int64
	acquire               time.Duration
}

func (f fakeStat) AcquiredConns() int32           { return f.acquired }
func (f fakeStat) IdleConns() int32               { return f.idle }
func (f fakeStat) TotalConns() int32              { return f.total }
func (f fakeStat) EmptyAcquireCount() int64       { return f.empty }
func (f fakeStat) CanceledAcquireCount() int64    { return f.canceled }
func (f fakeStat) AcquireDuration() time.Duration { return f.acquire }

func TestUpdateDBPoolMetrics(t *testing.T) {
	baseEmpty := testutil.ToFloat64(DBPoolEmptyAcquires)
	baseCanceled := testutil.ToFloat64(DBPoolCanceledAcquires)

	UpdateDBPoolMetrics(fakeStat{acquired: 2, idle: 3, total: 5, empty: 4, canceled: 1, acquire: time.Second})
	UpdateDBPoolMetrics(fakeStat{acquired: 1, idle: 4, total: 5, empty: 6, canceled: 1, acquire: 2 * time.Second})

	if got := testutil.ToFloat64(DBPoolConnsAcquired); got != 1 {
		t.Errorf("acquired = %v, want 1", got)
	}
	if got := testutil.ToFloat64(DBPoolConnsOpen); got != 5 {
		t.Errorf("open = %v, want 5", got)
	}
	// Counters advance by deltas, never by the cumulative value twice.
	if got := testutil.ToFloat64(DBPoolEmptyAcquires) - baseEmpty; got != 6 {
		t.Errorf("empty acquires advanced by %v, want 6", got)
	}
	if got := testutil.ToFloat64(DBPoolCanceledAcquires) - baseCanceled; got != 1 {
		t.Errorf("canceled acquires advanced by %v, want 1", got)
	}
}
