// Package gpu is the WebGPU backend of the frame scheduler. It owns the
// device, the surface and every pipeline, buffer and attachment the frame
// graph touches.
package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/eraser"
	"github.com/gekko3d/dissolve/render/frame"
	"github.com/gekko3d/dissolve/render/shaders"
)

const (
	TagFormat   = wgpu.TextureFormatR32Uint
	MaskFormat  = wgpu.TextureFormatR8Uint
	DepthFormat = wgpu.TextureFormatDepth32Float

	// HeadroomInstances is the spare room, in instances, added when the
	// instance buffer grows.
	HeadroomInstances = 256
	HeadroomOverlay   = 1024

	tableBytes = eraser.Slots * 4
)

var ErrStale = errors.New("commands recorded against attachments that were rebuilt")

type Options struct {
	FramesInFlight int
	Palette        core.Palette
	Cursor         *image.RGBA
	// Validate runs the offline shader compiler before building pipelines
	// and logs what it rejects.
	Validate bool
	Logger   core.Logger
}

// Manager implements frame.Backend on a WebGPU device.
type Manager struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	log       core.Logger
	pipelines *pipelines

	CatalogBuf *wgpu.Buffer
	ranges     map[core.PartRef]core.MeshRange
	CursorBuf  *wgpu.Buffer
	PaletteBuf *wgpu.Buffer
	DecayBuf   *wgpu.Buffer
	TouchBuf   *wgpu.Buffer

	cursorTex  *wgpu.Texture
	cursorView *wgpu.TextureView
	atlasTex   *wgpu.Texture
	atlasView  *wgpu.TextureView
	sampler    *wgpu.Sampler

	collectBG *wgpu.BindGroup
	overlayBG *wgpu.BindGroup

	attach *attachments
	gen    uint64
	slots  []*slot

	surfaceTex  *wgpu.Texture
	surfaceView *wgpu.TextureView
}

// New creates the device and surface and builds every resource for extent.
// Failures here are not recoverable.
func New(desc *wgpu.SurfaceDescriptor, extent core.Extent, opts Options) (*Manager, error) {
	if opts.FramesInFlight < 1 {
		opts.FramesInFlight = 2
	}
	if len(opts.Palette) == 0 {
		opts.Palette = core.DefaultPalette
	}
	if opts.Cursor == nil {
		opts.Cursor = core.DefaultCursor()
	}
	m := &Manager{log: core.OrNop(opts.Logger)}

	m.Instance = wgpu.CreateInstance(nil)
	m.Surface = m.Instance.CreateSurface(desc)

	var err error
	m.Adapter, err = m.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: m.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	m.Device, err = m.Adapter.RequestDevice(nil)
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	m.Queue = m.Device.GetQueue()

	caps := m.Surface.GetCapabilities(m.Adapter)
	if len(caps.Formats) == 0 || len(caps.AlphaModes) == 0 {
		return nil, errors.New("surface reports no formats")
	}
	m.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       extent.Width,
		Height:      extent.Height,
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	m.Surface.Configure(m.Adapter, m.Device, m.Config)

	if opts.Validate {
		for _, d := range shaders.Validate() {
			m.log.Warnf("shader %s", d)
		}
	}

	m.pipelines, err = createPipelines(m.Device, m.Config.Format)
	if err != nil {
		return nil, fmt.Errorf("pipelines: %w", err)
	}
	if err := m.createStatic(opts.Palette, opts.Cursor); err != nil {
		return nil, err
	}
	m.slots = make([]*slot, opts.FramesInFlight)
	for i := range m.slots {
		s, err := m.newSlot(i)
		if err != nil {
			return nil, err
		}
		m.slots[i] = s
	}
	if err := m.rebuild(extent); err != nil {
		return nil, err
	}
	m.log.Infof("gpu: %dx%d, format %v, %d frames in flight", extent.Width, extent.Height, m.Config.Format, len(m.slots))
	return m, nil
}

// ensureBuffer grows *buf to hold data plus headroom bytes and uploads
// data. It reports whether the buffer was recreated, in which case bind
// groups referencing it are stale.
func (m *Manager) ensureBuffer(name string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage, headroom int) (bool, error) {
	needed := alignUp(uint64(len(data)+headroom), 4)
	created := false
	if cur := *buf; cur == nil || cur.GetSize() < needed {
		if cur != nil {
			cur.Release()
		}
		nb, err := m.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: name,
			Size:  needed,
			Usage: usage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return false, fmt.Errorf("create %s: %w", name, err)
		}
		*buf = nb
		created = true
	}
	if len(data) > 0 {
		if err := m.Queue.WriteBuffer(*buf, 0, data); err != nil {
			return created, fmt.Errorf("write %s: %w", name, err)
		}
	}
	return created, nil
}

func alignUp(n, to uint64) uint64 {
	if r := n % to; r != 0 {
		n += to - r
	}
	return n
}

func (m *Manager) createStatic(palette core.Palette, cursor *image.RGBA) error {
	verts, ranges := core.FlattenCatalog()
	m.ranges = ranges
	if _, err := m.ensureBuffer("CatalogVertices", &m.CatalogBuf, core.VertexBytes(verts), wgpu.BufferUsageVertex, 0); err != nil {
		return err
	}
	if _, err := m.ensureBuffer("CursorQuad", &m.CursorBuf, cursorQuadBytes(), wgpu.BufferUsageVertex, 0); err != nil {
		return err
	}
	if _, err := m.ensureBuffer("Palette", &m.PaletteBuf, palette.Bytes(), wgpu.BufferUsageStorage, 0); err != nil {
		return err
	}
	if _, err := m.ensureBuffer("Decay", &m.DecayBuf, decayBytes(eraser.NewDecayTable()), wgpu.BufferUsageStorage, 0); err != nil {
		return err
	}
	if _, err := m.ensureBuffer("Touch", &m.TouchBuf, make([]byte, tableBytes), wgpu.BufferUsageStorage, 0); err != nil {
		return err
	}

	var err error
	m.sampler, err = m.Device.CreateSampler(&wgpu.SamplerDescriptor{
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MinFilter:     wgpu.FilterModeNearest,
		MagFilter:     wgpu.FilterModeNearest,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("sampler: %w", err)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, cursor.Bounds().Dx(), cursor.Bounds().Dy()))
	draw.Draw(rgba, rgba.Bounds(), cursor, cursor.Bounds().Min, draw.Src)
	m.cursorTex, m.cursorView, err = m.uploadTexture("Cursor", wgpu.TextureFormatRGBA8Unorm, rgba.Pix, rgba.Rect.Dx(), rgba.Rect.Dy(), 4)
	if err != nil {
		return err
	}

	atlas := core.NewOverlay().Atlas
	m.atlasTex, m.atlasView, err = m.uploadTexture("OverlayAtlas", wgpu.TextureFormatR8Unorm, atlas.Pix, atlas.Rect.Dx(), atlas.Rect.Dy(), 1)
	if err != nil {
		return err
	}

	m.overlayBG, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "OverlayBG",
		Layout: m.pipelines.overlay.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: m.atlasView},
			{Binding: 1, Sampler: m.sampler},
		},
	})
	if err != nil {
		return fmt.Errorf("overlay bind group: %w", err)
	}
	return nil
}

func (m *Manager) uploadTexture(label string, format wgpu.TextureFormat, pix []byte, w, h, bpp int) (*wgpu.Texture, *wgpu.TextureView, error) {
	size := wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1}
	tex, err := m.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", label, err)
	}
	err = m.Queue.WriteTexture(tex.AsImageCopy(), pix, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(w * bpp),
		RowsPerImage: uint32(h),
	}, &size)
	if err != nil {
		return nil, nil, fmt.Errorf("upload %s: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%s view: %w", label, err)
	}
	return tex, view, nil
}

// cursorQuadBytes is a two-triangle quad spanning [-1, 1]; the cursor
// shader scales it to twice the sprite size.
func cursorQuadBytes() []byte {
	quad := [6][4]float32{
		{-1, -1, 0, 1}, {1, -1, 1, 1}, {-1, 1, 0, 0},
		{1, 1, 1, 0}, {-1, 1, 0, 0}, {1, -1, 1, 1},
	}
	out := make([]byte, 0, len(quad)*16)
	for _, v := range quad {
		for _, f := range v {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out
}

func decayBytes(t *eraser.DecayTable) []byte {
	out := make([]byte, tableBytes)
	for i, f := range t {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

const surfaceStatus = "surface status "

// surfaceError maps the acquisition statuses a reconfigure can fix onto
// frame.ErrSurfaceOutdated. A lost device or exhausted memory stays fatal.
func surfaceError(err error) error {
	msg := err.Error()
	i := strings.LastIndex(msg, surfaceStatus)
	if i < 0 {
		return err
	}
	switch strings.TrimSpace(msg[i+len(surfaceStatus):]) {
	case wgpu.SurfaceGetCurrentTextureStatusOutdated.String(),
		wgpu.SurfaceGetCurrentTextureStatusLost.String(),
		wgpu.SurfaceGetCurrentTextureStatusTimeout.String():
		return fmt.Errorf("%w: %v", frame.ErrSurfaceOutdated, err)
	}
	return err
}

// checkTextureSize reports a suboptimal surface, which the binding hands out
// as a success, when the image no longer matches the configured extent.
func checkTextureSize(width, height uint32, want core.Extent) error {
	if width == want.Width && height == want.Height {
		return nil
	}
	return fmt.Errorf("%w: suboptimal image %dx%d, configured %dx%d",
		frame.ErrSurfaceOutdated, width, height, want.Width, want.Height)
}

// Release frees every GPU object. The manager is unusable afterwards.
func (m *Manager) Release() {
	m.releaseSurfaceTexture()
	for _, s := range m.slots {
		s.release()
	}
	if m.attach != nil {
		m.attach.release()
	}
	for _, bg := range []*wgpu.BindGroup{m.collectBG, m.overlayBG} {
		if bg != nil {
			bg.Release()
		}
	}
	for _, b := range []*wgpu.Buffer{m.CatalogBuf, m.CursorBuf, m.PaletteBuf, m.DecayBuf, m.TouchBuf} {
		if b != nil {
			b.Release()
		}
	}
	for _, v := range []*wgpu.TextureView{m.cursorView, m.atlasView} {
		if v != nil {
			v.Release()
		}
	}
	for _, t := range []*wgpu.Texture{m.cursorTex, m.atlasTex} {
		if t != nil {
			t.Release()
		}
	}
	if m.sampler != nil {
		m.sampler.Release()
	}
	if m.pipelines != nil {
		m.pipelines.release()
	}
	if m.Device != nil {
		m.Device.Release()
	}
	if m.Surface != nil {
		m.Surface.Release()
	}
	if m.Adapter != nil {
		m.Adapter.Release()
	}
	if m.Instance != nil {
		m.Instance.Release()
	}
}
