package frame

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/graph"
)

const (
	DefaultTargetDt = time.Second / 60
	DefaultMaxDt    = time.Second / 10
)

type Option func(*Scheduler)

func WithLogger(l core.Logger) Option {
	return func(s *Scheduler) { s.log = core.OrNop(l) }
}

// WithVelocity sets the fade speed in decay units per second.
func WithVelocity(v float32) Option {
	return func(s *Scheduler) { s.velocity = v }
}

// WithFixedStep makes every frame advance by d regardless of wall time.
func WithFixedStep(d time.Duration) Option {
	return func(s *Scheduler) { s.fixedDt = d }
}

// WithTargetDt is the step used for the first frame.
func WithTargetDt(d time.Duration) Option {
	return func(s *Scheduler) { s.targetDt = d }
}

// WithMaxDt caps the step after stalls.
func WithMaxDt(d time.Duration) Option {
	return func(s *Scheduler) { s.maxDt = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithCursor sets the cursor sprite size in pixels; it is drawn at twice
// that size.
func WithCursor(size core.Extent) Option {
	return func(s *Scheduler) { s.cursor = size }
}

func WithBackground(c [4]float32) Option {
	return func(s *Scheduler) { s.background = c }
}

// WithObserver is called on every state transition.
func WithObserver(fn func(State)) Option {
	return func(s *Scheduler) { s.observer = fn }
}

// Scheduler runs frames on a Backend. Frame, Resize and WaitIdle must be
// called from one goroutine; RequestResize and State may be called from
// any goroutine.
type Scheduler struct {
	backend Backend
	plan    *graph.Plan

	log        core.Logger
	velocity   float32
	fixedDt    time.Duration
	targetDt   time.Duration
	maxDt      time.Duration
	now        func() time.Time
	cursor     core.Extent
	background [4]float32
	observer   func(State)

	state   atomic.Int32
	pending atomic.Pointer[core.Extent]

	fences []Fence
	frame  uint64
	last   time.Time
	// outdated counts outdated surfaces since the last presented frame or
	// window resize; rebuild is set when a present asked for one.
	outdated int
	rebuild  bool
	batch    core.Batch
	work     Work
}

// New builds a scheduler for plan. The plan must contain every pass the
// backend knows how to record.
func New(backend Backend, plan *graph.Plan, opts ...Option) *Scheduler {
	s := &Scheduler{
		backend:    backend,
		plan:       plan,
		log:        core.NopLogger(),
		velocity:   1,
		targetDt:   DefaultTargetDt,
		maxDt:      DefaultMaxDt,
		now:        time.Now,
		background: [4]float32{0, 0, 0, 1},
	}
	for _, opt := range opts {
		opt(s)
	}
	n := backend.FramesInFlight()
	if n < 1 {
		n = 1
	}
	s.fences = make([]Fence, n)
	return s
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Frames is the number of frames submitted so far.
func (s *Scheduler) Frames() uint64 {
	return s.frame
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	if s.observer != nil {
		s.observer(st)
	}
}

// RequestResize records a new surface extent. It takes effect at the start
// of the next frame, once all in-flight frames have completed.
func (s *Scheduler) RequestResize(e core.Extent) {
	s.pending.Store(&e)
}

// Resize waits for every in-flight frame, then rebuilds the backend's
// extent-dependent resources.
func (s *Scheduler) Resize(ctx context.Context, e core.Extent) error {
	if err := s.WaitIdle(ctx); err != nil {
		return err
	}
	if err := s.backend.Resize(e); err != nil {
		return fatal("resize", err)
	}
	s.log.Debugf("resized to %dx%d", e.Width, e.Height)
	return nil
}

// WaitIdle blocks until every submitted frame has completed.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	for i, f := range s.fences {
		if f == nil {
			continue
		}
		if err := f.Wait(ctx); err != nil {
			return fmt.Errorf("wait slot %d: %w", i, err)
		}
		s.fences[i] = nil
	}
	return nil
}

// Frame renders in and presents it. A Fatal result comes with a
// *FatalError; the caller should stop the render loop.
func (s *Scheduler) Frame(ctx context.Context, in *core.FrameInput) (Result, error) {
	if st := s.State(); st != Idle {
		panic(fmt.Sprintf("frame started in state %v", st))
	}
	defer s.setState(Idle)

	if p := s.pending.Swap(nil); p != nil {
		if p.Empty() {
			// Minimized: keep the request until the window has an area.
			s.pending.CompareAndSwap(nil, p)
			return NeedsResize, nil
		}
		if err := s.Resize(ctx, *p); err != nil {
			return Fatal, fatal("resize", err)
		}
		s.outdated, s.rebuild = 0, false
	} else if s.rebuild {
		s.rebuild = false
		if err := s.Resize(ctx, s.backend.Extent()); err != nil {
			return Fatal, fatal("resize", err)
		}
	}

	slot := int(s.frame % uint64(len(s.fences)))
	if f := s.fences[slot]; f != nil {
		if err := f.Wait(ctx); err != nil {
			return Fatal, fatal("wait slot", err)
		}
		s.fences[slot] = nil
	}

	s.setState(Acquiring)
	if err := s.acquire(ctx); err != nil {
		return Fatal, err
	}

	s.setState(Recording)
	work := s.prepare(in)
	if err := s.backend.WriteUniforms(slot, work.Uniforms); err != nil {
		s.backend.Discard(slot)
		return Fatal, fatal("write uniforms", err)
	}
	if err := s.record(slot, graph.StageRecording, work); err != nil {
		return Fatal, err
	}

	s.setState(Dispatching)
	if err := s.record(slot, graph.StageDispatching, work); err != nil {
		return Fatal, err
	}

	fence, err := s.backend.Submit(slot, s.plan.Order())
	if err != nil {
		s.backend.Discard(slot)
		return Fatal, fatal("submit", err)
	}
	s.fences[slot] = fence
	s.frame++
	s.setState(Submitted)

	if err := s.backend.Present(); err != nil {
		if !errors.Is(err, ErrSurfaceOutdated) {
			return Fatal, fatal("present", err)
		}
		s.outdated++
		if s.outdated > 1 {
			return Fatal, fatal("present", fmt.Errorf("surface still outdated after rebuild: %w", err))
		}
		// The frame was submitted; replaying it would merge decay twice.
		// Rebuild before the next one instead.
		s.rebuild = true
		s.log.Warnf("present: %v; resizing before next frame", err)
		return NeedsResize, nil
	}
	s.outdated = 0
	s.setState(Presented)
	return Success, nil
}

// acquire retries once after rebuilding an outdated surface.
func (s *Scheduler) acquire(ctx context.Context) error {
	err := s.backend.Acquire(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrSurfaceOutdated) {
		return fatal("acquire", err)
	}
	s.outdated++
	if s.outdated > 1 {
		return fatal("acquire", fmt.Errorf("surface still outdated after rebuild: %w", err))
	}

	target := s.backend.Extent()
	if p := s.pending.Swap(nil); p != nil && !p.Empty() {
		target = *p
	}
	s.log.Warnf("acquire: %v; rebuilding at %dx%d", err, target.Width, target.Height)
	if err := s.Resize(ctx, target); err != nil {
		return fatal("acquire", err)
	}
	if err := s.backend.Acquire(ctx); err != nil {
		return fatal("acquire", fmt.Errorf("after rebuild: %w", err))
	}
	s.outdated, s.rebuild = 0, false
	return nil
}

func (s *Scheduler) record(slot int, stage graph.Stage, work *Work) error {
	for _, pass := range s.plan.InStage(stage) {
		if err := s.backend.Record(slot, pass, work); err != nil {
			s.backend.Discard(slot)
			return fatal("record "+pass.Name, err)
		}
	}
	return nil
}

func (s *Scheduler) prepare(in *core.FrameInput) *Work {
	if in == nil {
		in = &core.FrameInput{}
	}
	if dropped := s.batch.Build(in); dropped > 0 {
		s.log.Warnf("frame %d: dropped %d draws with unknown meshes", s.frame, dropped)
	}

	ext := s.backend.Extent()
	u := core.Uniforms{
		View:       in.Camera.View(),
		Proj:       in.Camera.Projection(ext.Aspect()),
		Dt:         float32(s.step(in.Dt).Seconds()),
		Velocity:   s.velocity,
		Screen:     [2]float32{float32(ext.Width), float32(ext.Height)},
		Background: s.background,
	}
	if !ext.Empty() {
		u.CursorScale = [2]float32{
			2 * float32(s.cursor.Width) / float32(ext.Width),
			2 * float32(s.cursor.Height) / float32(ext.Height),
		}
	}

	s.work = Work{Frame: s.frame, Batch: &s.batch, Input: in, Uniforms: u}
	return &s.work
}

// step returns the decay step. A step supplied with the input wins over
// the fixed step and the scheduler's own clock; all are capped at maxDt.
func (s *Scheduler) step(given time.Duration) time.Duration {
	var dt time.Duration
	switch {
	case given > 0:
		dt = given
	case s.fixedDt > 0:
		return s.fixedDt
	default:
		now := s.now()
		if s.last.IsZero() {
			s.last = now
			return s.targetDt
		}
		dt = now.Sub(s.last)
		s.last = now
	}
	if dt > s.maxDt {
		dt = s.maxDt
	}
	if dt < 0 {
		dt = 0
	}
	return dt
}
