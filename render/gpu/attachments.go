package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/graph"
)

// attachments are the extent-dependent targets of the primary pass.
type attachments struct {
	extent core.Extent
	tex    map[string]*wgpu.Texture
	views  map[string]*wgpu.TextureView
}

func (m *Manager) createAttachments(e core.Extent) (*attachments, error) {
	a := &attachments{
		extent: e,
		tex:    make(map[string]*wgpu.Texture),
		views:  make(map[string]*wgpu.TextureView),
	}
	formats := map[string]wgpu.TextureFormat{
		graph.ResTag:   TagFormat,
		graph.ResMask:  MaskFormat,
		graph.ResDepth: DepthFormat,
	}
	for _, res := range graph.ScenePlan().Sized() {
		format, ok := formats[res.Name]
		if !ok {
			a.release()
			return nil, fmt.Errorf("no format for sized resource %q", res.Name)
		}
		usage := wgpu.TextureUsageRenderAttachment
		if res.Name != graph.ResDepth {
			usage |= wgpu.TextureUsageTextureBinding
		}
		tex, err := m.Device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         res.Name,
			Size:          wgpu.Extent3D{Width: e.Width, Height: e.Height, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     wgpu.TextureDimension2D,
			Format:        format,
			Usage:         usage,
		})
		if err != nil {
			a.release()
			return nil, fmt.Errorf("attachment %s: %w", res.Name, err)
		}
		a.tex[res.Name] = tex
		view, err := tex.CreateView(nil)
		if err != nil {
			a.release()
			return nil, fmt.Errorf("attachment %s view: %w", res.Name, err)
		}
		a.views[res.Name] = view
	}
	return a, nil
}

func (a *attachments) release() {
	for _, v := range a.views {
		v.Release()
	}
	for _, t := range a.tex {
		t.Release()
	}
	clear(a.views)
	clear(a.tex)
}

// rebuild recreates the attachments at e and every bind group that
// references them. Commands recorded before are invalidated.
func (m *Manager) rebuild(e core.Extent) error {
	a, err := m.createAttachments(e)
	if err != nil {
		return err
	}
	if m.attach != nil {
		m.attach.release()
	}
	m.attach = a
	m.gen++

	if m.collectBG != nil {
		m.collectBG.Release()
	}
	m.collectBG, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "CollectBG",
		Layout: m.pipelines.collect.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: a.views[graph.ResTag]},
			{Binding: 1, TextureView: a.views[graph.ResMask]},
			{Binding: 2, Buffer: m.TouchBuf, Size: tableBytes},
		},
	})
	if err != nil {
		return fmt.Errorf("collect bind group: %w", err)
	}
	for _, s := range m.slots {
		s.discard()
		if err := m.composeBindGroup(s); err != nil {
			return err
		}
	}
	m.log.Debugf("gpu: attachments %dx%d generation %d", e.Width, e.Height, m.gen)
	return nil
}
