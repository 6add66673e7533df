package soft

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/frame"
	"github.com/gekko3d/dissolve/render/graph"
	"github.com/gekko3d/dissolve/render/group"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var planeMesh = core.PartRef{Primitive: core.Plane}

// wall places the unit plane upright at distance x along +X, facing the
// camera at the origin.
func wall(x, scale float32) mgl32.Mat4 {
	return mgl32.Translate3D(x, 0, 0).
		Mul4(mgl32.Scale3D(scale, scale, scale)).
		Mul4(mgl32.HomogRotate3DY(math.Pi / 2))
}

func newDevice(t *testing.T, e core.Extent) *Device {
	t.Helper()
	d := New(graph.ScenePlan(), Options{Extent: e, Workers: 4})
	t.Cleanup(d.Close)
	return d
}

func scene(erase bool) *core.FrameInput {
	in := &core.FrameInput{
		Camera: core.NewCamera(mgl32.Vec3{}),
		Statics: []core.StaticDraw{
			{Mesh: planeMesh, Group: 1, Color: 3, World: wall(5, 10)},
			// behind the camera, never visible
			{Mesh: planeMesh, Group: 2, Color: 4, World: wall(-5, 10)},
		},
	}
	if erase {
		in.Erasers = []core.DynamicEraser{{Mesh: planeMesh, Group: 9, World: wall(2, 5)}}
	}
	return in
}

func TestDevice_ErasedGroupFadesOverTenFrames(t *testing.T) {
	d := newDevice(t, core.Extent{Width: 32, Height: 32})
	s := frame.New(d, graph.ScenePlan(), frame.WithFixedStep(100*time.Millisecond), frame.WithVelocity(1))

	for i := 0; i < 10; i++ {
		res, err := s.Frame(context.Background(), scene(true))
		require.NoError(t, err)
		require.Equal(t, frame.Success, res)
	}
	require.NoError(t, s.WaitIdle(context.Background()))

	decay := d.Decay()
	assert.InDelta(t, 0, decay[1], 1e-5)
	assert.Equal(t, float32(1), decay[2])
	assert.Equal(t, float32(1), decay[9], "erasers do not tag their own group")

	touch := d.Touch()
	assert.Equal(t, uint32(32*32), touch[1])
	assert.Zero(t, touch[2])
}

func TestDevice_UntouchedWithoutErasers(t *testing.T) {
	d := newDevice(t, core.Extent{Width: 16, Height: 16})
	s := frame.New(d, graph.ScenePlan(), frame.WithFixedStep(100*time.Millisecond))

	for i := 0; i < 3; i++ {
		_, err := s.Frame(context.Background(), scene(false))
		require.NoError(t, err)
	}
	decay := d.Decay()
	assert.Equal(t, float32(1), decay[1])
}

func TestDevice_TouchClearedBeforeCollect(t *testing.T) {
	d := newDevice(t, core.Extent{Width: 16, Height: 16})
	require.NoError(t, d.Sync(func() {
		for i := range d.touch {
			d.touch[i] = uint32(i)
		}
	}))

	var nonzero []int
	d.OnPass(graph.PassCollect, func(v PassView) {
		for g, n := range v.Touch {
			if n != 0 {
				nonzero = append(nonzero, g)
			}
		}
	})

	s := frame.New(d, graph.ScenePlan())
	_, err := s.Frame(context.Background(), scene(true))
	require.NoError(t, err)
	require.NoError(t, s.WaitIdle(context.Background()))
	assert.Empty(t, nonzero)
}

func TestDevice_ComposeShadesByDecay(t *testing.T) {
	d := newDevice(t, core.Extent{Width: 8, Height: 8})
	bg := [4]float32{0, 0, 0, 1}
	s := frame.New(d, graph.ScenePlan(), frame.WithFixedStep(250*time.Millisecond), frame.WithBackground(bg))

	_, err := s.Frame(context.Background(), scene(false))
	require.NoError(t, err)
	img := d.Snapshot()
	require.NotNil(t, img)
	assert.Equal(t, rgba(core.DefaultPalette.At(3)), img.RGBAAt(4, 4))

	_, err = s.Frame(context.Background(), scene(true))
	require.NoError(t, err)
	img = d.Snapshot()
	col := core.DefaultPalette.At(3)
	want := [4]float32{col[0] * 0.75, col[1] * 0.75, col[2] * 0.75, 1}
	assert.Equal(t, rgba(want), img.RGBAAt(4, 4))
}

func TestDevice_CursorDrawnAtCenter(t *testing.T) {
	cursor := core.DefaultCursor()
	d := New(graph.ScenePlan(), Options{Extent: core.Extent{Width: 64, Height: 64}, Cursor: cursor})
	t.Cleanup(d.Close)
	s := frame.New(d, graph.ScenePlan())

	in := &core.FrameInput{Camera: core.NewCamera(mgl32.Vec3{}), CursorVisible: true}
	_, err := s.Frame(context.Background(), in)
	require.NoError(t, err)
	withCursor := d.Snapshot()

	in.CursorVisible = false
	_, err = s.Frame(context.Background(), in)
	require.NoError(t, err)
	without := d.Snapshot()

	assert.NotEqual(t, withCursor.Pix, without.Pix)
	// corners are outside the 32x32 cursor footprint
	assert.Equal(t, withCursor.RGBAAt(0, 0), without.RGBAAt(0, 0))
}

func TestDevice_ResizeRebuildsAttachments(t *testing.T) {
	d := newDevice(t, core.Extent{Width: 16, Height: 16})
	s := frame.New(d, graph.ScenePlan())

	_, err := s.Frame(context.Background(), scene(true))
	require.NoError(t, err)

	next := core.Extent{Width: 40, Height: 24}
	s.RequestResize(next)
	res, err := s.Frame(context.Background(), scene(true))
	require.NoError(t, err)
	assert.Equal(t, frame.Success, res)

	assert.Equal(t, next, d.Extent())
	for name, e := range d.AttachmentExtents() {
		assert.Equal(t, next, e, name)
	}
	img := d.Snapshot()
	assert.Equal(t, 40, img.Rect.Dx())
	assert.Equal(t, 24, img.Rect.Dy())
}

func TestDevice_StaleRecordingFailsFence(t *testing.T) {
	d := newDevice(t, core.Extent{Width: 16, Height: 16})
	plan := graph.ScenePlan()

	var batch core.Batch
	in := scene(true)
	batch.Build(in)
	work := &frame.Work{Batch: &batch, Input: in}

	require.NoError(t, d.Acquire(context.Background()))
	require.NoError(t, d.WriteUniforms(0, core.Uniforms{Velocity: 1, Dt: 0.1}))
	for _, name := range plan.Order() {
		require.NoError(t, d.Record(0, plan.Pass(name), work))
	}
	require.NoError(t, d.Resize(core.Extent{Width: 20, Height: 20}))

	f, err := d.Submit(0, plan.Order())
	require.NoError(t, err)
	err = f.Wait(context.Background())
	assert.ErrorIs(t, err, ErrStale)
	assert.Equal(t, float32(1), d.Decay()[1], "merge never ran")
}

func TestDevice_SubmitUnrecordedPass(t *testing.T) {
	d := newDevice(t, core.Extent{Width: 4, Height: 4})
	_, err := d.Submit(0, graph.ScenePlan().Order())
	assert.ErrorIs(t, err, ErrNotRecorded)
}

func TestDevice_AcquireOutdatedRetries(t *testing.T) {
	d := newDevice(t, core.Extent{Width: 16, Height: 16})
	calls := 0
	d.SetAcquireHook(func() error {
		calls++
		if calls == 1 {
			return frame.ErrSurfaceOutdated
		}
		return nil
	})
	s := frame.New(d, graph.ScenePlan())

	res, err := s.Frame(context.Background(), scene(false))
	require.NoError(t, err)
	assert.Equal(t, frame.Success, res)
	assert.Equal(t, 2, calls)
}

func TestDevice_PresentErrors(t *testing.T) {
	d := newDevice(t, core.Extent{Width: 16, Height: 16})
	s := frame.New(d, graph.ScenePlan(), frame.WithFixedStep(100*time.Millisecond))

	d.SetPresentHook(func() error { return frame.ErrSurfaceOutdated })
	res, err := s.Frame(context.Background(), scene(true))
	require.NoError(t, err)
	assert.Equal(t, frame.NeedsResize, res)

	d.SetPresentHook(nil)
	res, err = s.Frame(context.Background(), scene(true))
	require.NoError(t, err)
	assert.Equal(t, frame.Success, res)
	// both submitted frames merged exactly once
	assert.InDelta(t, 0.8, d.Decay()[1], 1e-6)

	d.SetPresentHook(func() error { return errors.New("surface lost") })
	res, err = s.Frame(context.Background(), scene(true))
	assert.Equal(t, frame.Fatal, res)
	var fe *frame.FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "present", fe.Op)
}

func TestDevice_EraserOccludedByNearerDraw(t *testing.T) {
	d := newDevice(t, core.Extent{Width: 16, Height: 16})
	s := frame.New(d, graph.ScenePlan(), frame.WithFixedStep(100*time.Millisecond))

	in := scene(false)
	// eraser behind the wall covers nothing that passes the depth test
	in.Erasers = []core.DynamicEraser{{Mesh: planeMesh, Group: 9, World: wall(8, 20)}}
	_, err := s.Frame(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, float32(1), d.Decay()[1])
	assert.Zero(t, d.Touch()[group.Background])
}
