package gpu

import (
	"context"
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/eraser"
	"github.com/gekko3d/dissolve/render/frame"
	"github.com/gekko3d/dissolve/render/graph"
)

// slot holds everything one frame in flight writes. The scheduler waits
// for the slot's previous submission before reusing it.
type slot struct {
	index     int
	uniforms  *wgpu.Buffer
	instances *wgpu.Buffer
	overlay   *wgpu.Buffer

	drawBG    *wgpu.BindGroup
	eraserBG  *wgpu.BindGroup
	mergeBG   *wgpu.BindGroup
	cursorBG  *wgpu.BindGroup
	composeBG *wgpu.BindGroup

	gen      uint64
	commands map[string]*wgpu.CommandBuffer
}

func (m *Manager) newSlot(i int) (*slot, error) {
	s := &slot{index: i, commands: make(map[string]*wgpu.CommandBuffer)}
	label := func(n string) string { return fmt.Sprintf("%s[%d]", n, i) }

	if _, err := m.ensureBuffer(label("Uniforms"), &s.uniforms, nil, wgpu.BufferUsageUniform, core.UniformSize); err != nil {
		return nil, err
	}
	if _, err := m.ensureBuffer(label("Instances"), &s.instances, nil, wgpu.BufferUsageVertex, HeadroomInstances*core.InstanceSize); err != nil {
		return nil, err
	}
	if _, err := m.ensureBuffer(label("Overlay"), &s.overlay, nil, wgpu.BufferUsageVertex, HeadroomOverlay*core.OverlayVertexSize); err != nil {
		return nil, err
	}

	frameEntry := wgpu.BindGroupEntry{Binding: 0, Buffer: s.uniforms, Size: core.UniformSize}
	var err error
	bind := func(name string, layout *wgpu.BindGroupLayout, entries ...wgpu.BindGroupEntry) *wgpu.BindGroup {
		if err != nil {
			return nil
		}
		var bg *wgpu.BindGroup
		bg, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   label(name),
			Layout:  layout,
			Entries: entries,
		})
		return bg
	}
	s.drawBG = bind("DrawBG", m.pipelines.draw.GetBindGroupLayout(0), frameEntry)
	s.eraserBG = bind("EraserBG", m.pipelines.eraser.GetBindGroupLayout(0), frameEntry)
	s.mergeBG = bind("MergeBG", m.pipelines.merge.GetBindGroupLayout(0),
		frameEntry,
		wgpu.BindGroupEntry{Binding: 1, Buffer: m.TouchBuf, Size: tableBytes},
		wgpu.BindGroupEntry{Binding: 2, Buffer: m.DecayBuf, Size: tableBytes},
	)
	s.cursorBG = bind("CursorBG", m.pipelines.cursor.GetBindGroupLayout(0),
		frameEntry,
		wgpu.BindGroupEntry{Binding: 1, TextureView: m.cursorView},
		wgpu.BindGroupEntry{Binding: 2, Sampler: m.sampler},
	)
	if err != nil {
		return nil, fmt.Errorf("slot %d bind groups: %w", i, err)
	}
	return s, nil
}

// composeBindGroup references the tag attachment, so it is rebuilt with it.
func (m *Manager) composeBindGroup(s *slot) error {
	if s.composeBG != nil {
		s.composeBG.Release()
	}
	var err error
	s.composeBG, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  fmt.Sprintf("ComposeBG[%d]", s.index),
		Layout: m.pipelines.compose.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: s.uniforms, Size: core.UniformSize},
			{Binding: 1, TextureView: m.attach.views[graph.ResTag]},
			{Binding: 2, Buffer: m.DecayBuf, Size: tableBytes},
			{Binding: 3, Buffer: m.PaletteBuf, Size: m.PaletteBuf.GetSize()},
		},
	})
	if err != nil {
		return fmt.Errorf("compose bind group %d: %w", s.index, err)
	}
	return nil
}

func (s *slot) discard() {
	for name, cb := range s.commands {
		cb.Release()
		delete(s.commands, name)
	}
}

func (s *slot) release() {
	s.discard()
	for _, bg := range []*wgpu.BindGroup{s.drawBG, s.eraserBG, s.mergeBG, s.cursorBG, s.composeBG} {
		if bg != nil {
			bg.Release()
		}
	}
	for _, b := range []*wgpu.Buffer{s.uniforms, s.instances, s.overlay} {
		if b != nil {
			b.Release()
		}
	}
}

func (m *Manager) Extent() core.Extent {
	return core.Extent{Width: m.Config.Width, Height: m.Config.Height}
}

func (m *Manager) FramesInFlight() int {
	return len(m.slots)
}

func (m *Manager) Acquire(ctx context.Context) error {
	if m.surfaceTex != nil {
		return errors.New("surface texture already acquired")
	}
	tex, err := m.Surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("get current texture: %w", surfaceError(err))
	}
	if err := checkTextureSize(tex.GetWidth(), tex.GetHeight(), m.Extent()); err != nil {
		tex.Release()
		return fmt.Errorf("get current texture: %w", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return fmt.Errorf("surface view: %w", err)
	}
	m.surfaceTex, m.surfaceView = tex, view
	return nil
}

func (m *Manager) releaseSurfaceTexture() {
	if m.surfaceView != nil {
		m.surfaceView.Release()
		m.surfaceView = nil
	}
	if m.surfaceTex != nil {
		m.surfaceTex.Release()
		m.surfaceTex = nil
	}
}

func (m *Manager) WriteUniforms(i int, u core.Uniforms) error {
	if err := m.Queue.WriteBuffer(m.slots[i].uniforms, 0, u.Bytes()); err != nil {
		return fmt.Errorf("uniforms[%d]: %w", i, err)
	}
	return nil
}

// Record encodes one pass into its own command buffer. Submit orders the
// buffers by the plan, so recording order does not matter.
func (m *Manager) Record(i int, pass *graph.Pass, work *frame.Work) error {
	s := m.slots[i]
	if len(s.commands) == 0 {
		s.gen = m.gen
	}
	enc, err := m.Device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer enc.Release()

	if err := m.encodePass(enc, s, pass, work); err != nil {
		return err
	}

	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish: %w", err)
	}
	if old := s.commands[pass.Name]; old != nil {
		old.Release()
	}
	s.commands[pass.Name] = cmd
	return nil
}

// commandEncoder is the part of *wgpu.CommandEncoder the passes record
// through.
type commandEncoder interface {
	ClearBuffer(buffer *wgpu.Buffer, offset uint64, size uint64) error
	BeginRenderPass(descriptor *wgpu.RenderPassDescriptor) *wgpu.RenderPassEncoder
	BeginComputePass(descriptor *wgpu.ComputePassDescriptor) *wgpu.ComputePassEncoder
}

func (m *Manager) encodePass(enc commandEncoder, s *slot, pass *graph.Pass, work *frame.Work) error {
	switch pass.Name {
	case graph.PassClearTouch:
		if err := enc.ClearBuffer(m.TouchBuf, 0, tableBytes); err != nil {
			return fmt.Errorf("clear touch: %w", err)
		}
		return nil
	case graph.PassPrimary:
		return m.encodePrimary(enc, s, work.Batch)
	case graph.PassCollect:
		wx, wy := eraser.CollectWorkgroups(m.attach.extent)
		return m.encodeCompute(enc, m.pipelines.collect, m.collectBG, wx, wy)
	case graph.PassMerge:
		return m.encodeCompute(enc, m.pipelines.merge, s.mergeBG, eraser.MergeWorkgroups(), 1)
	case graph.PassCompose:
		return m.encodeCompose(enc, s, work.Input)
	}
	return fmt.Errorf("unknown pass %q", pass.Name)
}

func (m *Manager) encodePrimary(enc commandEncoder, s *slot, batch *core.Batch) error {
	if len(batch.Instances) > 0 {
		if _, err := m.ensureBuffer(fmt.Sprintf("Instances[%d]", s.index), &s.instances, batch.Bytes(), wgpu.BufferUsageVertex, HeadroomInstances*core.InstanceSize); err != nil {
			return err
		}
	}
	pass := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       m.attach.views[graph.ResTag],
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{},
			},
			{
				View:       m.attach.views[graph.ResMask],
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{},
			},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            m.attach.views[graph.ResDepth],
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	defer pass.Release()

	if len(batch.Instances) > 0 {
		pass.SetVertexBuffer(0, m.CatalogBuf, 0, wgpu.WholeSize)
		pass.SetVertexBuffer(1, s.instances, 0, wgpu.WholeSize)

		pass.SetPipeline(m.pipelines.draw)
		pass.SetBindGroup(0, s.drawBG, nil)
		m.drawCalls(pass, batch.Draws)

		if len(batch.Erasers) > 0 {
			pass.SetPipeline(m.pipelines.eraser)
			pass.SetBindGroup(0, s.eraserBG, nil)
			m.drawCalls(pass, batch.Erasers)
		}
	}
	if err := pass.End(); err != nil {
		return fmt.Errorf("primary pass: %w", err)
	}
	return nil
}

func (m *Manager) drawCalls(pass *wgpu.RenderPassEncoder, calls []core.DrawCall) {
	for _, call := range calls {
		r, ok := m.ranges[call.Mesh]
		if !ok || call.Count == 0 {
			continue
		}
		pass.Draw(r.Count, call.Count, r.First, call.First)
	}
}

func (m *Manager) encodeCompute(enc commandEncoder, p *wgpu.ComputePipeline, bg *wgpu.BindGroup, x, y uint32) error {
	pass := enc.BeginComputePass(nil)
	defer pass.Release()
	pass.SetPipeline(p)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(x, y, 1)
	return pass.End()
}

func (m *Manager) encodeCompose(enc commandEncoder, s *slot, in *core.FrameInput) error {
	if m.surfaceView == nil {
		return errors.New("compose recorded without a surface texture")
	}
	overlayCount := uint32(len(in.Overlay))
	if overlayCount > 0 {
		if _, err := m.ensureBuffer(fmt.Sprintf("Overlay[%d]", s.index), &s.overlay, core.OverlayBytes(in.Overlay), wgpu.BufferUsageVertex, HeadroomOverlay*core.OverlayVertexSize); err != nil {
			return err
		}
	}

	pass := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       m.surfaceView,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	defer pass.Release()

	pass.SetPipeline(m.pipelines.compose)
	pass.SetBindGroup(0, s.composeBG, nil)
	pass.Draw(3, 1, 0, 0)

	if in.CursorVisible {
		pass.SetPipeline(m.pipelines.cursor)
		pass.SetBindGroup(0, s.cursorBG, nil)
		pass.SetVertexBuffer(0, m.CursorBuf, 0, wgpu.WholeSize)
		pass.Draw(6, 1, 0, 0)
	}
	if overlayCount > 0 {
		pass.SetPipeline(m.pipelines.overlay)
		pass.SetBindGroup(0, m.overlayBG, nil)
		pass.SetVertexBuffer(0, s.overlay, 0, wgpu.WholeSize)
		pass.Draw(overlayCount, 1, 0, 0)
	}
	if err := pass.End(); err != nil {
		return fmt.Errorf("compose pass: %w", err)
	}
	return nil
}

type fence struct {
	device *wgpu.Device
	index  wgpu.WrappedSubmissionIndex
}

// Wait blocks in Device.Poll on a helper goroutine so that ctx can
// abandon it.
func (f *fence) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.device.Poll(true, &f.index)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues the slot's command buffers in plan order.
func (m *Manager) Submit(i int, order []string) (frame.Fence, error) {
	s := m.slots[i]
	defer s.discard()
	if s.gen != m.gen {
		return nil, fmt.Errorf("slot %d generation %d, attachments %d: %w", i, s.gen, m.gen, ErrStale)
	}
	cmds := make([]*wgpu.CommandBuffer, 0, len(order))
	for _, name := range order {
		cb, ok := s.commands[name]
		if !ok {
			return nil, fmt.Errorf("pass %s was not recorded", name)
		}
		cmds = append(cmds, cb)
	}
	idx := m.Queue.Submit(cmds...)
	return &fence{
		device: m.Device,
		index:  wgpu.WrappedSubmissionIndex{Queue: m.Queue, SubmissionIndex: idx},
	}, nil
}

func (m *Manager) Present() error {
	if m.surfaceTex == nil {
		return errors.New("present without a surface texture")
	}
	m.Surface.Present()
	m.releaseSurfaceTexture()
	return nil
}

// Resize reconfigures the surface and rebuilds the attachments. The
// scheduler calls it only once every in-flight frame has completed.
func (m *Manager) Resize(e core.Extent) error {
	if e.Empty() {
		return fmt.Errorf("resize to empty extent %dx%d", e.Width, e.Height)
	}
	m.releaseSurfaceTexture()
	m.Config.Width, m.Config.Height = e.Width, e.Height
	m.Surface.Configure(m.Adapter, m.Device, m.Config)
	return m.rebuild(e)
}

func (m *Manager) Discard(i int) {
	m.slots[i].discard()
	m.releaseSurfaceTexture()
}

var _ frame.Backend = (*Manager)(nil)
