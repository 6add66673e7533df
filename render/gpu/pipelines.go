package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/shaders"
)

type pipelines struct {
	draw    *wgpu.RenderPipeline
	eraser  *wgpu.RenderPipeline
	collect *wgpu.ComputePipeline
	merge   *wgpu.ComputePipeline
	compose *wgpu.RenderPipeline
	cursor  *wgpu.RenderPipeline
	overlay *wgpu.RenderPipeline
}

var multisample = wgpu.MultisampleState{
	Count: 1,
	Mask:  0xFFFFFFFF,
}

var alphaBlend = &wgpu.BlendState{
	Color: wgpu.BlendComponent{
		Operation: wgpu.BlendOperationAdd,
		SrcFactor: wgpu.BlendFactorSrcAlpha,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
	},
	Alpha: wgpu.BlendComponent{
		Operation: wgpu.BlendOperationAdd,
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
	},
}

// Vertex layouts of the primary pass: catalog positions per vertex, the
// world matrix and packed tag per instance.
var (
	catalogLayout = wgpu.VertexBufferLayout{
		ArrayStride: 12,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
		},
	}
	instanceLayout = wgpu.VertexBufferLayout{
		ArrayStride: core.InstanceSize,
		StepMode:    wgpu.VertexStepModeInstance,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 1},
			{Format: wgpu.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 2},
			{Format: wgpu.VertexFormatFloat32x4, Offset: 32, ShaderLocation: 3},
			{Format: wgpu.VertexFormatFloat32x4, Offset: 48, ShaderLocation: 4},
			{Format: wgpu.VertexFormatUint32, Offset: 64, ShaderLocation: 5},
			{Format: wgpu.VertexFormatUint32, Offset: 68, ShaderLocation: 6},
		},
	}
	cursorLayout = wgpu.VertexBufferLayout{
		ArrayStride: 16,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			{Format: wgpu.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
		},
	}
	overlayLayout = wgpu.VertexBufferLayout{
		ArrayStride: core.OverlayVertexSize,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			{Format: wgpu.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
			{Format: wgpu.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 2},
		},
	}
)

func createPipelines(device *wgpu.Device, surface wgpu.TextureFormat) (*pipelines, error) {
	module := func(label, code string) (*wgpu.ShaderModule, error) {
		sm, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:          label,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
		})
		if err != nil {
			return nil, fmt.Errorf("shader %s: %w", label, err)
		}
		return sm, nil
	}

	drawMod, err := module("DrawShader", shaders.DrawWGSL)
	if err != nil {
		return nil, err
	}
	collectMod, err := module("CollectShader", shaders.CollectWGSL)
	if err != nil {
		return nil, err
	}
	mergeMod, err := module("MergeShader", shaders.MergeWGSL)
	if err != nil {
		return nil, err
	}
	composeMod, err := module("ComposeShader", shaders.ComposeWGSL)
	if err != nil {
		return nil, err
	}
	cursorMod, err := module("CursorShader", shaders.CursorWGSL)
	if err != nil {
		return nil, err
	}
	overlayMod, err := module("OverlayShader", shaders.OverlayWGSL)
	if err != nil {
		return nil, err
	}

	p := &pipelines{}

	// Both primary pipelines write the two color targets; each masks off
	// the one it does not own.
	primary := func(label, entry string, tagMask, maskMask wgpu.ColorWriteMask, depthWrite bool) (*wgpu.RenderPipeline, error) {
		return device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
			Label: label,
			Vertex: wgpu.VertexState{
				Module:     drawMod,
				EntryPoint: "vs_main",
				Buffers:    []wgpu.VertexBufferLayout{catalogLayout, instanceLayout},
			},
			Fragment: &wgpu.FragmentState{
				Module:     drawMod,
				EntryPoint: entry,
				Targets: []wgpu.ColorTargetState{
					{Format: TagFormat, WriteMask: tagMask},
					{Format: MaskFormat, WriteMask: maskMask},
				},
			},
			Primitive: wgpu.PrimitiveState{
				Topology:  wgpu.PrimitiveTopologyTriangleList,
				FrontFace: wgpu.FrontFaceCCW,
				CullMode:  wgpu.CullModeNone,
			},
			DepthStencil: &wgpu.DepthStencilState{
				Format:            DepthFormat,
				DepthWriteEnabled: depthWrite,
				DepthCompare:      wgpu.CompareFunctionLess,
				StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
				StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			},
			Multisample: multisample,
		})
	}
	if p.draw, err = primary("DrawPipeline", "fs_draw", wgpu.ColorWriteMaskAll, wgpu.ColorWriteMaskNone, true); err != nil {
		return nil, fmt.Errorf("draw: %w", err)
	}
	if p.eraser, err = primary("EraserPipeline", "fs_eraser", wgpu.ColorWriteMaskNone, wgpu.ColorWriteMaskAll, false); err != nil {
		return nil, fmt.Errorf("eraser: %w", err)
	}

	p.collect, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "CollectPipeline",
		Compute: wgpu.ProgrammableStageDescriptor{Module: collectMod, EntryPoint: "main"},
	})
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	p.merge, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "MergePipeline",
		Compute: wgpu.ProgrammableStageDescriptor{Module: mergeMod, EntryPoint: "main"},
	})
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	screen := func(label string, mod *wgpu.ShaderModule, buffers []wgpu.VertexBufferLayout, blend *wgpu.BlendState) (*wgpu.RenderPipeline, error) {
		return device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
			Label: label,
			Vertex: wgpu.VertexState{
				Module:     mod,
				EntryPoint: "vs_main",
				Buffers:    buffers,
			},
			Fragment: &wgpu.FragmentState{
				Module:     mod,
				EntryPoint: "fs_main",
				Targets: []wgpu.ColorTargetState{{
					Format:    surface,
					WriteMask: wgpu.ColorWriteMaskAll,
					Blend:     blend,
				}},
			},
			Primitive: wgpu.PrimitiveState{
				Topology: wgpu.PrimitiveTopologyTriangleList,
				CullMode: wgpu.CullModeNone,
			},
			Multisample: multisample,
		})
	}
	if p.compose, err = screen("ComposePipeline", composeMod, nil, nil); err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	if p.cursor, err = screen("CursorPipeline", cursorMod, []wgpu.VertexBufferLayout{cursorLayout}, alphaBlend); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	if p.overlay, err = screen("OverlayPipeline", overlayMod, []wgpu.VertexBufferLayout{overlayLayout}, alphaBlend); err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}
	return p, nil
}

func (p *pipelines) release() {
	for _, rp := range []*wgpu.RenderPipeline{p.draw, p.eraser, p.compose, p.cursor, p.overlay} {
		if rp != nil {
			rp.Release()
		}
	}
	for _, cp := range []*wgpu.ComputePipeline{p.collect, p.merge} {
		if cp != nil {
			cp.Release()
		}
	}
}
