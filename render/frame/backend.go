// Package frame drives one frame at a time through the render graph:
// acquire a target, write per-frame uniforms into a ring slot, record the
// render passes, dispatch the compute passes, submit and present.
package frame

import (
	"context"
	"errors"
	"fmt"

	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/graph"
)

// ErrSurfaceOutdated reports that the presentation surface no longer
// matches the window and must be reconfigured.
var ErrSurfaceOutdated = errors.New("surface outdated")

// FatalError is a failure the renderer cannot recover from.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("render: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatal(op string, err error) error {
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Op: op, Err: err}
}

// Work is everything a pass may need while being recorded.
type Work struct {
	Frame    uint64
	Batch    *core.Batch
	Input    *core.FrameInput
	Uniforms core.Uniforms
}

// Fence completes when the queue has finished a submission.
type Fence interface {
	Wait(ctx context.Context) error
}

// Backend is a device the scheduler can drive. Slots index the ring of
// per-frame resources; the scheduler never reuses a slot before the fence
// of its previous submission has completed.
type Backend interface {
	Extent() core.Extent
	FramesInFlight() int
	// Acquire blocks until a presentable image is available.
	Acquire(ctx context.Context) error
	WriteUniforms(slot int, u core.Uniforms) error
	// Record records one pass into the slot's pending command list.
	Record(slot int, pass *graph.Pass, work *Work) error
	// Submit hands the slot's recorded passes to the queue in order.
	Submit(slot int, order []string) (Fence, error)
	Present() error
	// Resize rebuilds every extent-dependent resource. The caller
	// guarantees no submission is outstanding.
	Resize(e core.Extent) error
	// Discard drops anything recorded into slot but not submitted.
	Discard(slot int)
}

// State is the scheduler's position within a frame.
type State int32

const (
	Idle State = iota
	Acquiring
	Recording
	Dispatching
	Submitted
	Presented
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Acquiring:
		return "Acquiring"
	case Recording:
		return "Recording"
	case Dispatching:
		return "Dispatching"
	case Submitted:
		return "Submitted"
	case Presented:
		return "Presented"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Result is what one frame reports to the outer loop.
type Result int

const (
	Success Result = iota
	NeedsResize
	Fatal
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NeedsResize:
		return "needs-resize"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}
