// Package eraser holds the per-group erasure state and the two kernels that
// advance it each frame.
//
// Collect turns the primary pass output into per-group touch counts. Merge
// folds those counts into the persistent decay table. The WGSL compute
// shaders in render/shaders implement the same kernels on the GPU; the Go
// versions here run on the software device and pin down the semantics.
//
// Decay convention: 1 is fully visible and is the initial value of every
// slot, 0 is fully dissolved. Erasure is monotonic: no path raises a slot.
package eraser

import (
	"math"
	"sync/atomic"

	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/group"
)

const (
	// Slots is the size of both per-group tables.
	Slots = group.Capacity
	// TileSize is the edge of the square pixel tile one collect workgroup
	// covers.
	TileSize = 8
	// MergeGroupSize is the number of slots one merge workgroup covers.
	MergeGroupSize = 64
)

// DecayTable is the persistent dissolve level of every group.
type DecayTable [Slots]float32

// NewDecayTable returns a table with every slot fully visible.
func NewDecayTable() *DecayTable {
	t := new(DecayTable)
	t.Reset()
	return t
}

func (t *DecayTable) Reset() {
	for i := range t {
		t[i] = 1
	}
}

// TouchTable counts, for the current frame only, the erased pixels of each
// group.
type TouchTable [Slots]uint32

func (t *TouchTable) Clear() {
	clear(t[:])
}

// Params drive one merge step.
type Params struct {
	Velocity float32
	Dt       float32
}

// Step is the decay removed from a touched slot in one frame.
func (p Params) Step() float32 {
	return p.Velocity * p.Dt
}

// CollectWorkgroups is the dispatch size of the collect kernel.
func CollectWorkgroups(e core.Extent) (uint32, uint32) {
	return (e.Width + TileSize - 1) / TileSize, (e.Height + TileSize - 1) / TileSize
}

// MergeWorkgroups is the dispatch size of the merge kernel.
func MergeWorkgroups() uint32 {
	return Slots / MergeGroupSize
}

// Surface is the primary pass output the collect kernel reads.
type Surface struct {
	Extent core.Extent
	Tags   []uint32
	Mask   []uint8
}

// CollectTile runs one collect workgroup: the tile at (tx, ty). Counts are
// added atomically so tiles may run concurrently.
func CollectTile(s Surface, touch *TouchTable, tx, ty uint32) {
	x0, y0 := tx*TileSize, ty*TileSize
	x1 := min(x0+TileSize, s.Extent.Width)
	y1 := min(y0+TileSize, s.Extent.Height)
	for y := y0; y < y1; y++ {
		row := int(y * s.Extent.Width)
		for x := x0; x < x1; x++ {
			i := row + int(x)
			if s.Mask[i] == 0 {
				continue
			}
			g, _ := core.UnpackTag(s.Tags[i])
			if g == group.Background {
				continue
			}
			atomic.AddUint32(&touch[g], 1)
		}
	}
}

// Collect runs every collect workgroup sequentially.
func Collect(s Surface, touch *TouchTable) {
	wx, wy := CollectWorkgroups(s.Extent)
	for ty := uint32(0); ty < wy; ty++ {
		for tx := uint32(0); tx < wx; tx++ {
			CollectTile(s, touch, tx, ty)
		}
	}
}

// MergeRange runs the merge kernel over slots [lo, hi). Touched slots move
// toward 0 by p.Step() and are clamped to [0, 1]; untouched slots are left
// as they are.
func MergeRange(touch *TouchTable, decay *DecayTable, p Params, lo, hi int) {
	step := p.Step()
	for g := lo; g < hi; g++ {
		if touch[g] == 0 {
			continue
		}
		decay[g] = clamp01(decay[g] - step)
	}
}

// Merge runs the merge kernel over every slot.
func Merge(touch *TouchTable, decay *DecayTable, p Params) {
	MergeRange(touch, decay, p, 0, Slots)
}

func clamp01(f float32) float32 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	// NaN collapses to 0.
	if math.IsNaN(float64(f)) {
		return 0
	}
	return f
}
