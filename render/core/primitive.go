package core

import (
	"fmt"
	"math"

	"github.com/gekko3d/dissolve/render/group"
)

// Vertex matches the position-only vertex layout of the primary pass.
type Vertex struct {
	Pos [3]float32
}

// Primitive selects a mesh from the fixed catalog.
type Primitive int

const (
	Plane Primitive = iota
	SquarePyramid
	TrianglePyramid
	Sphere
	Nine
	primitiveCount
)

func (p Primitive) String() string {
	switch p {
	case Plane:
		return "Plane"
	case SquarePyramid:
		return "SquarePyramid"
	case TrianglePyramid:
		return "TrianglePyramid"
	case Sphere:
		return "Sphere"
	case Nine:
		return "Nine"
	}
	return fmt.Sprintf("Primitive(%d)", int(p))
}

func (p Primitive) Valid() bool {
	return p >= 0 && p < primitiveCount
}

// Parts is the number of independently tagged triangle lists in p.
func (p Primitive) Parts() int {
	return len(Catalog()[p])
}

// Instantiate allocates one group id per part of p.
func (p Primitive) Instantiate(alloc *group.Allocator) []group.Id {
	return alloc.Allocate(p.Parts())
}

// PartRef addresses one triangle list of the catalog.
type PartRef struct {
	Primitive Primitive
	Part      int
}

func (r PartRef) Valid() bool {
	return r.Primitive.Valid() && r.Part >= 0 && r.Part < r.Primitive.Parts()
}

var catalog = buildCatalog()

// Catalog returns the triangle lists of every primitive, indexed by
// primitive then part. The result is shared and must not be modified.
func Catalog() [][][]Vertex {
	return catalog
}

// MeshRange locates one part inside the flattened catalog vertex stream.
type MeshRange struct {
	First uint32
	Count uint32
}

// FlattenCatalog concatenates all parts into one vertex stream, returning
// the location of each part.
func FlattenCatalog() ([]Vertex, map[PartRef]MeshRange) {
	var all []Vertex
	ranges := make(map[PartRef]MeshRange)
	for p, parts := range catalog {
		for i, part := range parts {
			ranges[PartRef{Primitive: Primitive(p), Part: i}] = MeshRange{
				First: uint32(len(all)),
				Count: uint32(len(part)),
			}
			all = append(all, part...)
		}
	}
	return all, ranges
}

func v(x, y, z float32) Vertex { return Vertex{Pos: [3]float32{x, y, z}} }

func buildCatalog() [][][]Vertex {
	const h = 0.86602540378443864676

	out := make([][][]Vertex, primitiveCount)

	out[Plane] = [][]Vertex{{
		v(-1, -1, 0), v(1, -1, 0), v(-1, 1, 0),
		v(1, 1, 0), v(-1, 1, 0), v(1, -1, 0),
	}}

	apex := v(0, 0, 1)
	out[SquarePyramid] = [][]Vertex{
		{
			v(-1, -1, -1), v(1, -1, -1), v(-1, 1, -1),
			v(1, 1, -1), v(1, -1, -1), v(-1, 1, -1),
		},
		{v(-1, -1, -1), v(-1, 1, -1), apex},
		{v(-1, 1, -1), v(1, 1, -1), apex},
		{v(1, 1, -1), v(1, -1, -1), apex},
		{v(1, -1, -1), v(-1, -1, -1), apex},
	}

	out[TrianglePyramid] = [][]Vertex{
		{v(-1, -h, -1), v(0, h, -1), v(1, -h, -1)},
		{v(-1, -h, -1), v(0, h, -1), apex},
		{v(0, h, -1), v(1, -h, -1), apex},
		{v(-1, -h, -1), v(1, -h, -1), apex},
	}

	out[Sphere] = [][]Vertex{uvSphere(2, 16, 16)}

	// Nonagonal prism: bottom cap, one side strip, then one part per sector
	// holding the rest of its side and its share of the top cap.
	nine := [][]Vertex{nil, nil}
	for i := 0; i < 9; i++ {
		a0 := float64(i) * 2 * math.Pi / 9
		a1 := float64(i+1) * 2 * math.Pi / 9
		x0, y0 := float32(math.Cos(a0)), float32(math.Sin(a0))
		x1, y1 := float32(math.Cos(a1)), float32(math.Sin(a1))

		nine[0] = append(nine[0], v(x0, y0, -1), v(x1, y1, -1), v(0, 0, -1))
		nine[1] = append(nine[1], v(x0, y0, -1), v(x1, y1, -1), v(x1, y1, 1))
		nine = append(nine, []Vertex{
			v(x0, y0, -1), v(x0, y0, 1), v(x1, y1, 1),
			v(x0, y0, 1), v(x1, y1, 1), v(0, 0, 1),
		})
	}
	out[Nine] = nine

	return out
}

// uvSphere triangulates a sphere of the given radius into a flat
// triangle list.
func uvSphere(radius float32, slices, stacks int) []Vertex {
	point := func(slice, stack int) Vertex {
		theta := float64(slice) / float64(slices) * 2 * math.Pi
		phi := float64(stack)/float64(stacks)*math.Pi - math.Pi/2
		return v(
			radius*float32(math.Cos(phi)*math.Cos(theta)),
			radius*float32(math.Cos(phi)*math.Sin(theta)),
			radius*float32(math.Sin(phi)),
		)
	}

	tris := make([]Vertex, 0, slices*stacks*6)
	for st := 0; st < stacks; st++ {
		for sl := 0; sl < slices; sl++ {
			a, b := point(sl, st), point(sl+1, st)
			c, d := point(sl, st+1), point(sl+1, st+1)
			if st > 0 {
				tris = append(tris, a, b, d)
			}
			if st < stacks-1 {
				tris = append(tris, a, d, c)
			}
		}
	}
	return tris
}
