// Package soft is a CPU device that executes the frame graph with the same
// semantics as the GPU backend. Submissions run asynchronously on a single
// queue goroutine in FIFO order, so fences, frames in flight and resize
// barriers behave as they do on hardware.
package soft

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/eraser"
	"github.com/gekko3d/dissolve/render/frame"
	"github.com/gekko3d/dissolve/render/graph"
	"golang.org/x/sync/errgroup"
)

var (
	ErrStale       = errors.New("recorded against resources that were rebuilt")
	ErrNotRecorded = errors.New("pass submitted without being recorded")
	ErrClosed      = errors.New("device closed")
)

type Options struct {
	Extent         core.Extent
	FramesInFlight int
	Palette        core.Palette
	Cursor         *image.RGBA
	Logger         core.Logger
	// Workers bounds the goroutines a compute pass fans out to.
	Workers int
}

// PassView exposes device state to hooks. It is only valid during the
// hook call.
type PassView struct {
	Pass   *graph.Pass
	Extent core.Extent
	Tags   []uint32
	Mask   []uint8
	Depth  []float32
	Touch  *eraser.TouchTable
	Decay  *eraser.DecayTable
	// Uniforms are the ones written for the frame being executed.
	Uniforms core.Uniforms
}

type slot struct {
	uniforms core.Uniforms
	passes   map[string]graph.Executor
}

// Device implements frame.Backend.
type Device struct {
	plan     *graph.Plan
	log      core.Logger
	palette  core.Palette
	cursor   *image.RGBA
	atlas    *image.Alpha
	meshes   [][][]core.Vertex
	workers  int
	inFlight int

	// queue-owned state
	touch *eraser.TouchTable
	decay *eraser.DecayTable

	targets atomic.Pointer[targets]
	gen     uint64
	slots   []slot

	// swapchain
	images   chan *image.RGBA
	acquired *image.RGBA
	front    atomic.Pointer[image.RGBA]

	queue  chan func()
	done   chan struct{}
	closed atomic.Bool

	hookMu      sync.Mutex
	hooks       map[string][]func(PassView)
	acquireHook func() error
	presentHook func() error
}

// New creates a device for plan and starts its queue.
func New(plan *graph.Plan, opts Options) *Device {
	if opts.FramesInFlight < 1 {
		opts.FramesInFlight = 2
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if len(opts.Palette) == 0 {
		opts.Palette = core.DefaultPalette
	}
	d := &Device{
		plan:     plan,
		log:      core.OrNop(opts.Logger),
		palette:  opts.Palette,
		cursor:   opts.Cursor,
		atlas:    core.NewOverlay().Atlas,
		meshes:   core.Catalog(),
		workers:  opts.Workers,
		inFlight: opts.FramesInFlight,
		touch:    new(eraser.TouchTable),
		decay:    eraser.NewDecayTable(),
		slots:    make([]slot, opts.FramesInFlight),
		queue:    make(chan func(), 64),
		done:     make(chan struct{}),
		hooks:    make(map[string][]func(PassView)),
	}
	for i := range d.slots {
		d.slots[i].passes = make(map[string]graph.Executor)
	}
	d.rebuild(opts.Extent)
	go d.run()
	return d
}

func (d *Device) run() {
	defer close(d.done)
	for job := range d.queue {
		job()
	}
}

// Close drains the queue and stops it.
func (d *Device) Close() {
	if d.closed.CompareAndSwap(false, true) {
		close(d.queue)
		<-d.done
	}
}

func (d *Device) enqueue(job func()) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.queue <- job
	return nil
}

// Sync runs fn on the queue after all previously submitted work.
func (d *Device) Sync(fn func()) error {
	wait := make(chan struct{})
	if err := d.enqueue(func() {
		defer close(wait)
		fn()
	}); err != nil {
		return err
	}
	<-wait
	return nil
}

// OnPass registers fn to run on the queue just before pass executes.
func (d *Device) OnPass(pass string, fn func(PassView)) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	d.hooks[pass] = append(d.hooks[pass], fn)
}

// SetAcquireHook lets tests fail acquisition; a nil hook restores normal
// behaviour.
func (d *Device) SetAcquireHook(fn func() error) {
	d.hookMu.Lock()
	d.acquireHook = fn
	d.hookMu.Unlock()
}

func (d *Device) SetPresentHook(fn func() error) {
	d.hookMu.Lock()
	d.presentHook = fn
	d.hookMu.Unlock()
}

func (d *Device) Extent() core.Extent {
	return d.targets.Load().extent
}

func (d *Device) FramesInFlight() int {
	return d.inFlight
}

// Acquire takes a free swapchain image, blocking until one is presented
// back.
func (d *Device) Acquire(ctx context.Context) error {
	d.hookMu.Lock()
	hook := d.acquireHook
	d.hookMu.Unlock()
	if hook != nil {
		if err := hook(); err != nil {
			return err
		}
	}
	if d.acquired != nil {
		return errors.New("image already acquired")
	}
	select {
	case img := <-d.images:
		d.acquired = img
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Device) WriteUniforms(i int, u core.Uniforms) error {
	d.slots[i].uniforms = u
	return nil
}

// Record captures everything the pass needs so the scheduler may reuse its
// buffers while the submission is queued.
func (d *Device) Record(i int, pass *graph.Pass, work *frame.Work) error {
	s := &d.slots[i]
	gen := d.targets.Load().gen

	var exec func() error
	switch pass.Name {
	case graph.PassClearTouch:
		exec = func() error {
			d.touch.Clear()
			return nil
		}
	case graph.PassPrimary:
		vp := s.uniforms.ViewProj()
		instances := append([]core.Instance(nil), work.Batch.Instances...)
		draws := append([]core.DrawCall(nil), work.Batch.Draws...)
		erasers := append([]core.DrawCall(nil), work.Batch.Erasers...)
		exec = func() error {
			t, err := d.current(gen)
			if err != nil {
				return err
			}
			t.clear()
			for _, call := range draws {
				mesh := d.meshes[call.Mesh.Primitive][call.Mesh.Part]
				for _, inst := range instances[call.First : call.First+call.Count] {
					drawMesh(t, mesh, vp.Mul4(inst.World), drawFragment(core.PackTag(inst.Group, inst.Color)))
				}
			}
			for _, call := range erasers {
				mesh := d.meshes[call.Mesh.Primitive][call.Mesh.Part]
				for _, inst := range instances[call.First : call.First+call.Count] {
					drawMesh(t, mesh, vp.Mul4(inst.World), eraserFragment)
				}
			}
			return nil
		}
	case graph.PassCollect:
		exec = func() error {
			t, err := d.current(gen)
			if err != nil {
				return err
			}
			return d.collect(t)
		}
	case graph.PassMerge:
		params := eraser.Params{Velocity: s.uniforms.Velocity, Dt: s.uniforms.Dt}
		exec = func() error {
			return d.merge(params)
		}
	case graph.PassCompose:
		img := d.acquired
		if img == nil {
			return errors.New("compose recorded without an acquired image")
		}
		bg := s.uniforms.Background
		overlay := append([]core.OverlayVertex(nil), work.Input.Overlay...)
		cursor := work.Input.CursorVisible
		exec = func() error {
			t, err := d.current(gen)
			if err != nil {
				return err
			}
			if img.Rect.Dx() != int(t.extent.Width) || img.Rect.Dy() != int(t.extent.Height) {
				return fmt.Errorf("swapchain image: %w", ErrStale)
			}
			composite(img, t, d.decay, d.palette, bg)
			if cursor {
				drawCursor(img, d.cursor)
			}
			drawOverlay(img, overlay, d.atlas)
			return nil
		}
	default:
		return fmt.Errorf("soft device cannot record pass %q", pass.Name)
	}

	u := s.uniforms
	s.passes[pass.Name] = func(ctx context.Context, p *graph.Pass) error {
		d.runHooks(p, u)
		return exec()
	}
	return nil
}

func (d *Device) runHooks(p *graph.Pass, u core.Uniforms) {
	d.hookMu.Lock()
	hooks := d.hooks[p.Name]
	d.hookMu.Unlock()
	if len(hooks) == 0 {
		return
	}
	t := d.targets.Load()
	view := PassView{
		Pass:     p,
		Extent:   t.extent,
		Tags:     t.tag,
		Mask:     t.mask,
		Depth:    t.depth,
		Touch:    d.touch,
		Decay:    d.decay,
		Uniforms: u,
	}
	for _, h := range hooks {
		h(view)
	}
}

func (d *Device) current(gen uint64) (*targets, error) {
	t := d.targets.Load()
	if t.gen != gen {
		return nil, fmt.Errorf("attachments generation %d, recorded %d: %w", t.gen, gen, ErrStale)
	}
	return t, nil
}

// collect runs one goroutine per row of tiles.
func (d *Device) collect(t *targets) error {
	surface := eraser.Surface{Extent: t.extent, Tags: t.tag, Mask: t.mask}
	wx, wy := eraser.CollectWorkgroups(t.extent)
	var g errgroup.Group
	g.SetLimit(d.workers)
	for ty := uint32(0); ty < wy; ty++ {
		g.Go(func() error {
			for tx := uint32(0); tx < wx; tx++ {
				eraser.CollectTile(surface, d.touch, tx, ty)
			}
			return nil
		})
	}
	return g.Wait()
}

// merge splits the slots into contiguous chunks of whole workgroups.
func (d *Device) merge(p eraser.Params) error {
	const chunk = eraser.MergeGroupSize * 64
	var g errgroup.Group
	g.SetLimit(d.workers)
	for lo := 0; lo < eraser.Slots; lo += chunk {
		g.Go(func() error {
			eraser.MergeRange(d.touch, d.decay, p, lo, min(lo+chunk, eraser.Slots))
			return nil
		})
	}
	return g.Wait()
}

type fence struct {
	tok *graph.Token
	err error
}

func (f *fence) Wait(ctx context.Context) error {
	if err := f.tok.Wait(ctx); err != nil {
		return err
	}
	return f.err
}

// Submit queues the slot's recorded passes. They run on the queue with the
// plan's dependencies; the fence fires when all have finished.
func (d *Device) Submit(i int, order []string) (frame.Fence, error) {
	s := &d.slots[i]
	passes := make(map[string]graph.Executor, len(s.passes))
	for _, name := range order {
		exec, ok := s.passes[name]
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrNotRecorded)
		}
		passes[name] = exec
	}
	clear(s.passes)

	f := &fence{tok: graph.NewToken()}
	err := d.enqueue(func() {
		defer f.tok.Signal()
		f.err = d.plan.Run(context.Background(), func(ctx context.Context, p *graph.Pass) error {
			return passes[p.Name](ctx, p)
		})
		if f.err != nil {
			d.log.Errorf("soft queue: %v", f.err)
		}
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Present queues the acquired image for display once the work before it
// has run, and returns the previous front image to the swapchain.
func (d *Device) Present() error {
	img := d.acquired
	if img == nil {
		return errors.New("present without an acquired image")
	}
	d.acquired = nil

	d.hookMu.Lock()
	hook := d.presentHook
	d.hookMu.Unlock()
	if hook != nil {
		if err := hook(); err != nil {
			_ = d.enqueue(func() { d.release(img) })
			return err
		}
	}
	return d.enqueue(func() {
		if old := d.front.Swap(img); old != nil {
			d.release(old)
		}
	})
}

func (d *Device) release(img *image.RGBA) {
	e := d.Extent()
	if img.Rect.Dx() != int(e.Width) || img.Rect.Dy() != int(e.Height) {
		return
	}
	select {
	case d.images <- img:
	default:
	}
}

// Resize rebuilds attachments and swapchain images. Work recorded before
// the resize fails as stale if it is submitted afterwards.
func (d *Device) Resize(e core.Extent) error {
	if e.Empty() {
		return fmt.Errorf("resize to empty extent %dx%d", e.Width, e.Height)
	}
	// Let queued presents settle before swapping the swapchain.
	if err := d.Sync(func() {}); err != nil {
		return err
	}
	d.acquired = nil
	d.rebuild(e)
	return nil
}

func (d *Device) rebuild(e core.Extent) {
	d.gen++
	d.targets.Store(newTargets(e, d.gen))
	d.images = make(chan *image.RGBA, d.inFlight+1)
	for i := 0; i < d.inFlight+1; i++ {
		d.images <- image.NewRGBA(image.Rect(0, 0, int(e.Width), int(e.Height)))
	}
	d.log.Debugf("soft device: attachments %dx%d generation %d", e.Width, e.Height, d.gen)
}

// Discard drops unsubmitted recordings and returns an acquired image.
func (d *Device) Discard(i int) {
	clear(d.slots[i].passes)
	if d.acquired != nil {
		img := d.acquired
		d.acquired = nil
		_ = d.enqueue(func() { d.release(img) })
	}
}

// Snapshot copies the last presented image.
func (d *Device) Snapshot() *image.RGBA {
	var out *image.RGBA
	_ = d.Sync(func() {
		if img := d.front.Load(); img != nil {
			out = image.NewRGBA(img.Rect)
			copy(out.Pix, img.Pix)
		}
	})
	return out
}

// Decay copies the decay table after all submitted work.
func (d *Device) Decay() *eraser.DecayTable {
	out := new(eraser.DecayTable)
	_ = d.Sync(func() { *out = *d.decay })
	return out
}

// Touch copies the touch table after all submitted work.
func (d *Device) Touch() *eraser.TouchTable {
	out := new(eraser.TouchTable)
	_ = d.Sync(func() { *out = *d.touch })
	return out
}

// AttachmentExtents reports the size of every sized attachment.
func (d *Device) AttachmentExtents() map[string]core.Extent {
	t := d.targets.Load()
	size := func(n int) core.Extent {
		if n != t.extent.Pixels() {
			return core.Extent{}
		}
		return t.extent
	}
	return map[string]core.Extent{
		graph.ResTag:   size(len(t.tag)),
		graph.ResMask:  size(len(t.mask)),
		graph.ResDepth: size(len(t.depth)),
	}
}

var _ frame.Backend = (*Device)(nil)
