package core

import (
	"time"

	"github.com/gekko3d/dissolve/render/group"
	"github.com/go-gl/mathgl/mgl32"
)

// StaticDraw is level geometry built once and never mutated.
type StaticDraw struct {
	Mesh  PartRef
	Group group.Id
	Color uint16
	World mgl32.Mat4
}

// DynamicPart is one tagged triangle list of a DynamicDraw.
type DynamicPart struct {
	Mesh  PartRef
	Group group.Id
}

// DynamicDraw is a set of parts sharing one world transform that is
// recomputed every frame.
type DynamicDraw struct {
	Parts []DynamicPart
	Color uint16
	World mgl32.Mat4
}

// DynamicEraser marks the pixels it covers as being erased. It never
// contributes color.
type DynamicEraser struct {
	Mesh  PartRef
	Group group.Id
	World mgl32.Mat4
}

// Extent is a framebuffer size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

func (e Extent) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent) Pixels() int {
	return int(e.Width) * int(e.Height)
}

func (e Extent) Aspect() float32 {
	if e.Height == 0 {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}

// FrameInput is the per-frame snapshot handed to the scheduler.
type FrameInput struct {
	Statics  []StaticDraw
	Dynamics []DynamicDraw
	Erasers  []DynamicEraser
	Camera   Camera
	Overlay  []OverlayVertex
	// CursorVisible draws the cursor sprite at the screen center.
	CursorVisible bool
	// Dt is the simulation step this frame advances decay by. Zero lets the
	// scheduler time the frame itself.
	Dt time.Duration
}

// Reset empties the collections while keeping their storage.
func (in *FrameInput) Reset() {
	in.Statics = in.Statics[:0]
	in.Dynamics = in.Dynamics[:0]
	in.Erasers = in.Erasers[:0]
	in.Overlay = in.Overlay[:0]
}
