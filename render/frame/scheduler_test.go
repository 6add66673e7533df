package frame

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/graph"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFence struct {
	waited *int
	err    error
}

func (f fakeFence) Wait(ctx context.Context) error {
	*f.waited++
	return f.err
}

type fakeBackend struct {
	extent   core.Extent
	inFlight int

	acquireErrs []error
	presentErrs []error
	recordErr   error
	submitErr   error
	resizeErr   error

	calls    []string
	uniforms []core.Uniforms
	resizes  []core.Extent
	waits    int
	discards int
}

func (b *fakeBackend) Extent() core.Extent { return b.extent }
func (b *fakeBackend) FramesInFlight() int { return b.inFlight }

func (b *fakeBackend) Acquire(ctx context.Context) error {
	b.calls = append(b.calls, "acquire")
	if len(b.acquireErrs) > 0 {
		err := b.acquireErrs[0]
		b.acquireErrs = b.acquireErrs[1:]
		return err
	}
	return nil
}

func (b *fakeBackend) WriteUniforms(slot int, u core.Uniforms) error {
	b.calls = append(b.calls, fmt.Sprintf("uniforms:%d", slot))
	b.uniforms = append(b.uniforms, u)
	return nil
}

func (b *fakeBackend) Record(slot int, pass *graph.Pass, work *Work) error {
	b.calls = append(b.calls, "record:"+pass.Name)
	return b.recordErr
}

func (b *fakeBackend) Submit(slot int, order []string) (Fence, error) {
	b.calls = append(b.calls, fmt.Sprintf("submit:%d", slot))
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	return fakeFence{waited: &b.waits}, nil
}

func (b *fakeBackend) Present() error {
	b.calls = append(b.calls, "present")
	if len(b.presentErrs) > 0 {
		err := b.presentErrs[0]
		b.presentErrs = b.presentErrs[1:]
		return err
	}
	return nil
}

func (b *fakeBackend) Resize(e core.Extent) error {
	b.calls = append(b.calls, "resize")
	if b.resizeErr != nil {
		return b.resizeErr
	}
	b.extent = e
	b.resizes = append(b.resizes, e)
	return nil
}

func (b *fakeBackend) Discard(slot int) {
	b.discards++
}

func newFake() *fakeBackend {
	return &fakeBackend{extent: core.Extent{Width: 64, Height: 32}, inFlight: 2}
}

func input() *core.FrameInput {
	return &core.FrameInput{Camera: core.NewCamera(mgl32.Vec3{})}
}

func TestScheduler_FrameSequence(t *testing.T) {
	b := newFake()
	var states []State
	s := New(b, graph.ScenePlan(), WithFixedStep(100*time.Millisecond), WithObserver(func(st State) {
		states = append(states, st)
	}))

	res, err := s.Frame(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Equal(t, []State{Acquiring, Recording, Dispatching, Submitted, Presented, Idle}, states)
	assert.Equal(t, []string{
		"acquire",
		"uniforms:0",
		"record:" + graph.PassClearTouch,
		"record:" + graph.PassPrimary,
		"record:" + graph.PassCompose,
		"record:" + graph.PassCollect,
		"record:" + graph.PassMerge,
		"submit:0",
		"present",
	}, b.calls)
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, uint64(1), s.Frames())

	u := b.uniforms[0]
	assert.InDelta(t, 0.1, u.Dt, 1e-6)
	assert.Equal(t, float32(1), u.Velocity)
	assert.Equal(t, [2]float32{64, 32}, u.Screen)
}

func TestScheduler_RingSlotsWaitForFences(t *testing.T) {
	b := newFake()
	s := New(b, graph.ScenePlan())

	for i := 0; i < 5; i++ {
		_, err := s.Frame(context.Background(), input())
		require.NoError(t, err)
	}
	// frames 2, 3 and 4 reuse a slot and must wait on its previous fence
	assert.Equal(t, 3, b.waits)

	var slots []string
	for _, c := range b.calls {
		if len(c) > 9 && c[:9] == "uniforms:" {
			slots = append(slots, c[9:])
		}
	}
	assert.Equal(t, []string{"0", "1", "0", "1", "0"}, slots)
}

func TestScheduler_AcquireOutdatedRetries(t *testing.T) {
	b := newFake()
	b.acquireErrs = []error{fmt.Errorf("get texture: %w", ErrSurfaceOutdated)}
	s := New(b, graph.ScenePlan())

	s.RequestResize(core.Extent{Width: 100, Height: 50})

	// the pending resize applies at frame start; the outdated acquire then
	// rebuilds once more and retries
	res, err := s.Frame(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Equal(t, 2, countCalls(b.calls, "acquire"))
	assert.Equal(t, 2, countCalls(b.calls, "resize"))
	assert.Equal(t, core.Extent{Width: 100, Height: 50}, b.extent)
}

func TestScheduler_AcquireOutdatedTwiceIsFatal(t *testing.T) {
	b := newFake()
	b.acquireErrs = []error{ErrSurfaceOutdated, ErrSurfaceOutdated}
	s := New(b, graph.ScenePlan())

	res, err := s.Frame(context.Background(), input())
	assert.Equal(t, Fatal, res)
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "acquire", fe.Op)
	assert.ErrorIs(t, err, ErrSurfaceOutdated)
	assert.Equal(t, Idle, s.State())
}

func TestScheduler_AcquireOtherErrorIsFatal(t *testing.T) {
	b := newFake()
	b.acquireErrs = []error{errors.New("device lost")}
	s := New(b, graph.ScenePlan())

	res, err := s.Frame(context.Background(), input())
	assert.Equal(t, Fatal, res)
	assert.EqualError(t, err, "render: acquire: device lost")
	assert.Zero(t, countCalls(b.calls, "resize"))
}

func TestScheduler_PresentOutdatedResizesNextFrame(t *testing.T) {
	b := newFake()
	b.presentErrs = []error{ErrSurfaceOutdated}
	s := New(b, graph.ScenePlan())

	res, err := s.Frame(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, NeedsResize, res)
	assert.Equal(t, 1, countCalls(b.calls, "submit:0"), "submitted work is not replayed")
	assert.Zero(t, countCalls(b.calls, "resize"))

	res, err = s.Frame(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Equal(t, 1, countCalls(b.calls, "resize"))
	assert.Equal(t, 1, b.waits, "resize waits for the in-flight frame")
}

func TestScheduler_PresentOutdatedTwiceIsFatal(t *testing.T) {
	b := newFake()
	b.presentErrs = []error{ErrSurfaceOutdated, ErrSurfaceOutdated}
	s := New(b, graph.ScenePlan())

	res, err := s.Frame(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, NeedsResize, res)

	res, err = s.Frame(context.Background(), input())
	assert.Equal(t, Fatal, res)
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "present", fe.Op)
}

func TestScheduler_WindowResizeClearsOutdated(t *testing.T) {
	b := newFake()
	b.presentErrs = []error{ErrSurfaceOutdated}
	s := New(b, graph.ScenePlan())

	res, err := s.Frame(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, NeedsResize, res)

	// minimized before the rebuild could run
	s.RequestResize(core.Extent{})
	for i := 0; i < 3; i++ {
		res, err = s.Frame(context.Background(), input())
		require.NoError(t, err)
		assert.Equal(t, NeedsResize, res)
	}

	// restored; the first acquire on the new surface is outdated once more
	s.RequestResize(core.Extent{Width: 80, Height: 40})
	b.acquireErrs = []error{ErrSurfaceOutdated}
	res, err = s.Frame(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Equal(t, core.Extent{Width: 80, Height: 40}, b.extent)
}

func TestScheduler_RetriedAcquireClearsOutdated(t *testing.T) {
	b := newFake()
	b.acquireErrs = []error{ErrSurfaceOutdated}
	b.presentErrs = []error{ErrSurfaceOutdated}
	s := New(b, graph.ScenePlan())

	// the rebuilt surface acquired fine, so the outdated present that
	// follows is a fresh event
	res, err := s.Frame(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, NeedsResize, res)

	res, err = s.Frame(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, Success, res)
}

func TestScheduler_RecordErrorIsFatal(t *testing.T) {
	b := newFake()
	b.recordErr = errors.New("encoder invalid")
	s := New(b, graph.ScenePlan())

	res, err := s.Frame(context.Background(), input())
	assert.Equal(t, Fatal, res)
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "record "+graph.PassClearTouch, fe.Op)
	assert.Equal(t, 1, b.discards)
	assert.Zero(t, countCalls(b.calls, "present"))
}

func TestScheduler_SubmitErrorIsFatal(t *testing.T) {
	b := newFake()
	b.submitErr = errors.New("queue lost")
	s := New(b, graph.ScenePlan())

	res, err := s.Frame(context.Background(), input())
	assert.Equal(t, Fatal, res)
	assert.ErrorContains(t, err, "submit")
	assert.Equal(t, uint64(0), s.Frames())
}

func TestScheduler_MinimizedWindowDefers(t *testing.T) {
	b := newFake()
	s := New(b, graph.ScenePlan())
	s.RequestResize(core.Extent{})

	res, err := s.Frame(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, NeedsResize, res)
	assert.Empty(t, b.calls)

	s.RequestResize(core.Extent{Width: 10, Height: 10})
	res, err = s.Frame(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Equal(t, []core.Extent{{Width: 10, Height: 10}}, b.resizes)
}

func TestScheduler_WallClockDt(t *testing.T) {
	b := newFake()
	now := time.Unix(100, 0)
	s := New(b, graph.ScenePlan(), WithClock(func() time.Time { return now }), WithMaxDt(50*time.Millisecond))

	_, err := s.Frame(context.Background(), input())
	require.NoError(t, err)
	now = now.Add(20 * time.Millisecond)
	_, err = s.Frame(context.Background(), input())
	require.NoError(t, err)
	now = now.Add(time.Second)
	_, err = s.Frame(context.Background(), input())
	require.NoError(t, err)

	require.Len(t, b.uniforms, 3)
	assert.InDelta(t, DefaultTargetDt.Seconds(), b.uniforms[0].Dt, 1e-6)
	assert.InDelta(t, 0.02, b.uniforms[1].Dt, 1e-6)
	assert.InDelta(t, 0.05, b.uniforms[2].Dt, 1e-6)
}

func TestScheduler_InputDtWins(t *testing.T) {
	b := newFake()
	now := time.Unix(100, 0)
	s := New(b, graph.ScenePlan(),
		WithFixedStep(10*time.Millisecond),
		WithClock(func() time.Time { return now }),
		WithMaxDt(50*time.Millisecond))

	in := input()
	in.Dt = 30 * time.Millisecond
	_, err := s.Frame(context.Background(), in)
	require.NoError(t, err)

	in.Dt = 2 * time.Second
	_, err = s.Frame(context.Background(), in)
	require.NoError(t, err)

	in.Dt = 0
	_, err = s.Frame(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, b.uniforms, 3)
	assert.InDelta(t, 0.03, b.uniforms[0].Dt, 1e-6)
	assert.InDelta(t, 0.05, b.uniforms[1].Dt, 1e-6, "capped")
	assert.InDelta(t, 0.01, b.uniforms[2].Dt, 1e-6)
}

func TestScheduler_ResizeFailureIsFatal(t *testing.T) {
	b := newFake()
	b.resizeErr = errors.New("out of memory")
	s := New(b, graph.ScenePlan())
	s.RequestResize(core.Extent{Width: 8, Height: 8})

	res, err := s.Frame(context.Background(), input())
	assert.Equal(t, Fatal, res)
	assert.ErrorContains(t, err, "out of memory")
}

func countCalls(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}
