package dirtiness

import "sync/atomic"

// Holder owns the current Estimator and replaces it atomically on reload, so
// a query in flight always sees one complete observation set.
type Holder struct {
	cur atomic.Pointer[Estimator]
}

// NewHolder creates a Holder serving e.
func NewHolder(e *Estimator) *Holder {
	h := &Holder{}
	h.cur.Store(e)
	return h
}

// Load returns the current Estimator.
func (h *Holder) Load() *Estimator {
	return h.cur.Load()
}

// Swap installs e and returns the previous Estimator. A nil e is ignored.
func (h *Holder) Swap(e *Estimator) *Estimator {
	if e == nil {
		return h.cur.Load()
	}
	return h.cur.Swap(e)
}
