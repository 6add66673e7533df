// Package group issues the 16-bit group ids that tag drawable instances.
//
// A group id selects one slot of the persistent decay table, so two live
// instances sharing an id share their dissolve state. Ids come from a single
// monotonically increasing counter; the counter wraps after 65535 without
// collision detection. Id 0 is the background and is never issued.
package group

import (
	"sync/atomic"
)

// Id is a 16-bit group identifier.
type Id uint16

const (
	// Background marks pixels that belong to no group.
	Background Id = 0
	// Capacity is the size of the id space and of every per-group table.
	Capacity = 1 << 16
	// HighWater is the issued count within one epoch at which the allocator
	// starts warning that a wrap is near.
	HighWater = Capacity * 92 / 100
)

// Warner receives wrap diagnostics.
type Warner interface {
	Warnf(format string, args ...any)
}

// Allocator hands out group ids. The zero value is ready to use and safe for
// concurrent callers.
type Allocator struct {
	counter atomic.Uint64
	wraps   atomic.Uint64
	warned  atomic.Uint64
	log     atomic.Pointer[warnerBox]
}

type warnerBox struct{ w Warner }

// New returns an allocator that reports wraps to w. w may be nil.
func New(w Warner) *Allocator {
	a := &Allocator{}
	a.SetWarner(w)
	return a
}

func (a *Allocator) SetWarner(w Warner) {
	if w == nil {
		a.log.Store(nil)
		return
	}
	a.log.Store(&warnerBox{w: w})
}

// Next returns a fresh id. After 65535 calls the sequence wraps and restarts
// at 1; earlier ids are reissued.
func (a *Allocator) Next() Id {
	for {
		raw := a.counter.Add(1)
		if id, ok := a.accept(raw); ok {
			return id
		}
	}
}

// Allocate reserves n ids in one atomic step. The ids are individually
// unique within one epoch and contiguous in allocation order; they are not
// contiguous in value when the block crosses the wrap.
func (a *Allocator) Allocate(n int) []Id {
	if n <= 0 {
		return nil
	}
	ids := make([]Id, 0, n)
	end := a.counter.Add(uint64(n))
	for raw := end - uint64(n) + 1; raw <= end; raw++ {
		if id, ok := a.accept(raw); ok {
			ids = append(ids, id)
		}
	}
	// A block that straddled the background slot lost one id.
	for len(ids) < n {
		ids = append(ids, a.Next())
	}
	return ids
}

// Issued is the number of counter positions consumed, including skipped
// background positions.
func (a *Allocator) Issued() uint64 {
	return a.counter.Load()
}

// Wraps is the number of times the id space has been exhausted.
func (a *Allocator) Wraps() uint64 {
	return a.wraps.Load()
}

// accept maps a raw counter value to an id. Positions that land on the
// background slot are rejected; the first caller to reach one records the
// wrap.
func (a *Allocator) accept(raw uint64) (Id, bool) {
	id := Id(raw % Capacity)
	epoch := raw / Capacity
	if id == Background {
		a.wraps.Add(1)
		a.warnf("group id counter wrapped (epoch %d); ids from previous epochs may alias", epoch)
		return 0, false
	}
	if uint64(id) == HighWater && a.warned.CompareAndSwap(epoch, epoch+1) {
		a.warnf("group id counter at %d of %d in epoch %d", id, Capacity-1, epoch)
	}
	return id, true
}

func (a *Allocator) warnf(format string, args ...any) {
	if box := a.log.Load(); box != nil {
		box.w.Warnf(format, args...)
	}
}
