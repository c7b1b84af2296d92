package ble

// WriteBatch counts the outcomes of one save. It is a value: Resolve returns
// an updated copy and never lets the pending count go below zero, so a batch
// reaches Done exactly once no matter how many late results arrive.
type WriteBatch struct {
	total   int
	pending int
	errors  int
}

// NewWriteBatch starts a batch expecting n outcomes.
func NewWriteBatch(n int) WriteBatch {
	if n < 0 {
		n = 0
	}
	return WriteBatch{total: n, pending: n}
}

// Resolve records one outcome.
func (b WriteBatch) Resolve(ok bool) WriteBatch {
	if b.pending == 0 {
		return b
	}
	b.pending--
	if !ok {
		b.errors++
	}
	return b
}

// Total is the number of writes the batch was created for.
func (b WriteBatch) Total() int { return b.total }

// Pending is the number of writes still awaiting an outcome.
func (b WriteBatch) Pending() int { return b.pending }

// Errors is the number of writes that failed so far.
func (b WriteBatch) Errors() int { return b.errors }

// Done reports whether every write has an outcome.
func (b WriteBatch) Done() bool { return b.pending == 0 }

// Failed reports whether any write failed.
func (b WriteBatch) Failed() bool { return b.errors > 0 }
