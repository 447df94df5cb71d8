package modelrouter

import "sync/atomic"

// costScale turns floating-point cost weights into a fixed-point int64
// so running totals can be updated with plain atomic adds.
const costScale = 1_000_000

// CostAccounting tracks running baseline/actual cost totals across all
// served requests using atomic fixed-point counters.
type CostAccounting struct {
	baseline int64 // fixed-point, costScale per unit
	actual   int64
	served   int64
}

// Record adds one request's baseline and actual cost contribution.
func (c *CostAccounting) Record(baseline, actual float64) {
	atomic.AddInt64(&c.baseline, int64(baseline*costScale))
	atomic.AddInt64(&c.actual, int64(actual*costScale))
	atomic.AddInt64(&c.served, 1)
}

// Snapshot reports totals and the derived savings percentage. Savings
// is 0 until at least one request has been served.
func (c *CostAccounting) Snapshot() (baseline, actual, savingsPct float64) {
	b := float64(atomic.LoadInt64(&c.baseline)) / costScale
	a := float64(atomic.LoadInt64(&c.actual)) / costScale
	served := atomic.LoadInt64(&c.served)
	if served == 0 || b == 0 {
		return b, a, 0
	}
	return b, a, (b - a) / b
}
