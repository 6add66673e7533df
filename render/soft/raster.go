package soft

import (
	"math"

	"github.com/gekko3d/dissolve/render/core"
	"github.com/go-gl/mathgl/mgl32"
)

// targets are the extent-dependent attachments of the primary pass.
type targets struct {
	gen    uint64
	extent core.Extent
	tag    []uint32
	mask   []uint8
	depth  []float32
}

func newTargets(e core.Extent, gen uint64) *targets {
	n := e.Pixels()
	return &targets{
		gen:    gen,
		extent: e,
		tag:    make([]uint32, n),
		mask:   make([]uint8, n),
		depth:  make([]float32, n),
	}
}

func (t *targets) clear() {
	clear(t.tag)
	clear(t.mask)
	for i := range t.depth {
		t.depth[i] = 1
	}
}

// fragment decides what a covered pixel does with its attachments.
type fragment func(t *targets, i int, z float32)

func drawFragment(tag uint32) fragment {
	return func(t *targets, i int, z float32) {
		if z < t.depth[i] {
			t.depth[i] = z
			t.tag[i] = tag
		}
	}
}

// eraserFragment tests depth without writing it and touches only the mask.
func eraserFragment(t *targets, i int, z float32) {
	if z < t.depth[i] {
		t.mask[i] = 1
	}
}

// drawMesh rasterizes a triangle list transformed by mvp.
func drawMesh(t *targets, mesh []core.Vertex, mvp mgl32.Mat4, frag fragment) {
	for i := 0; i+2 < len(mesh); i += 3 {
		var poly [3]mgl32.Vec4
		for k := 0; k < 3; k++ {
			p := mesh[i+k].Pos
			poly[k] = mvp.Mul4x1(mgl32.Vec4{p[0], p[1], p[2], 1})
		}
		clipped := clipNear(poly[:])
		for k := 1; k+1 < len(clipped); k++ {
			rasterTriangle(t, clipped[0], clipped[k], clipped[k+1], frag)
		}
	}
}

// clipNear clips a polygon against the z >= 0 clip plane.
func clipNear(in []mgl32.Vec4) []mgl32.Vec4 {
	out := make([]mgl32.Vec4, 0, len(in)+1)
	for i := range in {
		a, b := in[i], in[(i+1)%len(in)]
		ina, inb := a.Z() >= 0, b.Z() >= 0
		if ina {
			out = append(out, a)
		}
		if ina != inb {
			s := a.Z() / (a.Z() - b.Z())
			out = append(out, a.Add(b.Sub(a).Mul(s)))
		}
	}
	return out
}

// Screen positions are snapped to a fixed-point grid so that edge
// functions are exact and a pixel on an edge shared by two triangles is
// covered exactly once.
const (
	subpixelBits = 4
	subpixel     = 1 << subpixelBits
	// guardBand bounds snapped coordinates so edge products fit in int64.
	guardBand = 1 << 26
)

type screenPoint struct {
	x, y int64
	z    float32
}

func toScreen(c mgl32.Vec4, e core.Extent) (screenPoint, bool) {
	w := c.W()
	if w <= 1e-6 {
		return screenPoint{}, false
	}
	x := (c.X()/w + 1) * 0.5 * float32(e.Width)
	y := (1 - c.Y()/w) * 0.5 * float32(e.Height)
	if abs(x) > guardBand || abs(y) > guardBand {
		return screenPoint{}, false
	}
	return screenPoint{
		x: int64(math.Round(float64(x) * subpixel)),
		y: int64(math.Round(float64(y) * subpixel)),
		z: c.Z() / w,
	}, true
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func edge(a, b screenPoint, x, y int64) int64 {
	return (b.x-a.x)*(y-a.y) - (b.y-a.y)*(x-a.x)
}

// owns breaks ties for samples exactly on the edge a->b. Two triangles
// sharing the edge walk it in opposite directions, so exactly one owns it.
func owns(a, b screenPoint) bool {
	dx, dy := b.x-a.x, b.y-a.y
	return dy > 0 || (dy == 0 && dx < 0)
}

func rasterTriangle(t *targets, c0, c1, c2 mgl32.Vec4, frag fragment) {
	p0, ok0 := toScreen(c0, t.extent)
	p1, ok1 := toScreen(c1, t.extent)
	p2, ok2 := toScreen(c2, t.extent)
	if !ok0 || !ok1 || !ok2 {
		return
	}
	area := edge(p0, p1, p2.x, p2.y)
	if area == 0 {
		return
	}
	// No culling: wind every triangle the same way.
	if area < 0 {
		p1, p2 = p2, p1
		area = -area
	}
	own0, own1, own2 := owns(p1, p2), owns(p2, p0), owns(p0, p1)

	minX := max(int(min(p0.x, p1.x, p2.x)>>subpixelBits), 0)
	maxX := min(int(max(p0.x, p1.x, p2.x)>>subpixelBits), int(t.extent.Width)-1)
	minY := max(int(min(p0.y, p1.y, p2.y)>>subpixelBits), 0)
	maxY := min(int(max(p0.y, p1.y, p2.y)>>subpixelBits), int(t.extent.Height)-1)

	inv := 1 / float64(area)
	for y := minY; y <= maxY; y++ {
		py := int64(y)<<subpixelBits + subpixel/2
		for x := minX; x <= maxX; x++ {
			px := int64(x)<<subpixelBits + subpixel/2
			e0 := edge(p1, p2, px, py)
			e1 := edge(p2, p0, px, py)
			e2 := edge(p0, p1, px, py)
			if e0 < 0 || e1 < 0 || e2 < 0 ||
				(e0 == 0 && !own0) || (e1 == 0 && !own1) || (e2 == 0 && !own2) {
				continue
			}
			z := float32((float64(e0)*float64(p0.z) + float64(e1)*float64(p1.z) + float64(e2)*float64(p2.z)) * inv)
			if z < 0 || z > 1 {
				continue
			}
			frag(t, y*int(t.extent.Width)+x, z)
		}
	}
}
