package dissolve

import (
	"errors"
	"fmt"
	"math"

	"github.com/gekko3d/dissolve/render/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Cell is a maze grid coordinate: X is the column, Y the row.
type Cell struct {
	X, Y int
}

// Center is the cell center at height z.
func (c Cell) Center(z float32) mgl32.Vec3 {
	return mgl32.Vec3{float32(c.X) + 0.5, float32(c.Y) + 0.5, z}
}

// Maze is a parsed level layout. Cells outside the grid count as walls.
//
//	#      wall
//	. or ' ' open floor
//	1..9   open floor whose adjacent wall faces use that palette color
//	P      player start (exactly one)
//	E      floating eraser
//	o      spinning pyramid
type Maze struct {
	Width, Height int
	Start         Cell
	Colors        map[Cell]uint16
	Erasers       []Cell
	Spinners      []Cell
	walls         []bool
}

func ParseMaze(rows []string) (*Maze, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.New("maze: empty level")
	}
	m := &Maze{
		Width:  len(rows[0]),
		Height: len(rows),
		Colors: make(map[Cell]uint16),
	}
	m.walls = make([]bool, m.Width*m.Height)
	starts := 0
	for y, row := range rows {
		if len(row) != m.Width {
			return nil, fmt.Errorf("maze: row %d has %d cells, want %d", y, len(row), m.Width)
		}
		for x := 0; x < len(row); x++ {
			c := Cell{x, y}
			switch ch := row[x]; {
			case ch == '#':
				m.walls[y*m.Width+x] = true
			case ch == '.' || ch == ' ':
			case ch >= '1' && ch <= '9':
				m.Colors[c] = uint16(ch - '0')
			case ch == 'P':
				m.Start = c
				starts++
			case ch == 'E':
				m.Erasers = append(m.Erasers, c)
			case ch == 'o':
				m.Spinners = append(m.Spinners, c)
			default:
				return nil, fmt.Errorf("maze: unknown cell %q at %d,%d", ch, x, y)
			}
		}
	}
	if starts != 1 {
		return nil, fmt.Errorf("maze: want one player start, found %d", starts)
	}
	return m, nil
}

func (m *Maze) Wall(c Cell) bool {
	if c.X < 0 || c.Y < 0 || c.X >= m.Width || c.Y >= m.Height {
		return true
	}
	return m.walls[c.Y*m.Width+c.X]
}

// Blocked reports whether a disc of radius r at p overlaps a wall cell.
func (m *Maze) Blocked(p mgl32.Vec3, r float32) bool {
	x0 := int(math.Floor(float64(p.X() - r)))
	x1 := int(math.Floor(float64(p.X() + r)))
	y0 := int(math.Floor(float64(p.Y() - r)))
	y1 := int(math.Floor(float64(p.Y() + r)))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if m.Wall(Cell{x, y}) {
				return true
			}
		}
	}
	return false
}

// WallFace is one plane of the level: a run of wall sides facing the same
// open direction, or a single colored face.
type WallFace struct {
	Center mgl32.Vec3
	// Normal is the axis the face looks along, X or Y.
	Normal mgl32.Vec3
	// Half is the horizontal half length.
	Half  float32
	Color uint16
}

// Transform maps the unit Plane onto the face. The plane's local X becomes
// vertical and its Y runs along the face.
func (f WallFace) Transform() mgl32.Mat4 {
	t := mgl32.Translate3D(f.Center.X(), f.Center.Y(), f.Center.Z())
	if f.Normal.X() != 0 {
		return t.Mul4(mgl32.HomogRotate3DY(math.Pi / 2)).Mul4(mgl32.Scale3D(0.5, f.Half, 1))
	}
	return t.Mul4(mgl32.HomogRotate3DX(math.Pi / 2)).Mul4(mgl32.Scale3D(f.Half, 0.5, 1))
}

const (
	WallColor    uint16 = 0
	FloorColor   uint16 = 6
	CeilingColor uint16 = 7
)

// Faces returns every wall face. Wall sides next to plain open cells are
// merged into runs along the wall; sides next to colored cells become one
// face per cell in the cell's color.
func (m *Maze) Faces() []WallFace {
	var faces []WallFace
	open := func(c Cell) bool {
		_, colored := m.Colors[c]
		return !m.Wall(c) && !colored
	}

	// Sides facing -X and +X run along Y.
	for _, dx := range []int{-1, 1} {
		for x := 0; x < m.Width; x++ {
			start := -1
			for y := 0; y <= m.Height; y++ {
				side := y < m.Height && m.Wall(Cell{x, y}) && open(Cell{x + dx, y})
				if side && start < 0 {
					start = y
				}
				if !side && start >= 0 {
					half := float32(y-start) / 2
					fx := float32(x) + 0.5 + float32(dx)*0.5
					faces = append(faces, WallFace{
						Center: mgl32.Vec3{fx, float32(start) + half, 0.5},
						Normal: mgl32.Vec3{float32(dx), 0, 0},
						Half:   half,
						Color:  WallColor,
					})
					start = -1
				}
			}
		}
	}
	// Sides facing -Y and +Y run along X.
	for _, dy := range []int{-1, 1} {
		for y := 0; y < m.Height; y++ {
			start := -1
			for x := 0; x <= m.Width; x++ {
				side := x < m.Width && m.Wall(Cell{x, y}) && open(Cell{x, y + dy})
				if side && start < 0 {
					start = x
				}
				if !side && start >= 0 {
					half := float32(x-start) / 2
					fy := float32(y) + 0.5 + float32(dy)*0.5
					faces = append(faces, WallFace{
						Center: mgl32.Vec3{float32(start) + half, fy, 0.5},
						Normal: mgl32.Vec3{0, float32(dy), 0},
						Half:   half,
						Color:  WallColor,
					})
					start = -1
				}
			}
		}
	}

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := Cell{x, y}
			color, ok := m.Colors[c]
			if !ok {
				continue
			}
			for _, d := range [4]Cell{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				if !m.Wall(Cell{x + d.X, y + d.Y}) {
					continue
				}
				center := c.Center(0.5).Add(mgl32.Vec3{float32(d.X) * 0.5, float32(d.Y) * 0.5, 0})
				faces = append(faces, WallFace{
					Center: center,
					Normal: mgl32.Vec3{float32(-d.X), float32(-d.Y), 0},
					Half:   0.5,
					Color:  color,
				})
			}
		}
	}
	return faces
}

// floor returns the floor (z=0) or ceiling (z=1) plane over the whole grid.
func (m *Maze) floor(z float32) mgl32.Mat4 {
	w, h := float32(m.Width)/2, float32(m.Height)/2
	return mgl32.Translate3D(w, h, z).Mul4(mgl32.Scale3D(w, h, 1))
}

// Build spawns the level into w: floor, ceiling, wall faces, erasers and
// spinners.
func (m *Maze) Build(w *World) error {
	if _, err := w.SpawnStatic(core.Plane, FloorColor, m.floor(0)); err != nil {
		return err
	}
	if _, err := w.SpawnStatic(core.Plane, CeilingColor, m.floor(1)); err != nil {
		return err
	}
	for _, f := range m.Faces() {
		if _, err := w.SpawnStatic(core.Plane, f.Color, f.Transform()); err != nil {
			return err
		}
	}
	for _, c := range m.Erasers {
		body := core.NewTransform()
		body.Position = c.Center(0.5)
		if _, err := w.SpawnEraser(core.Sphere, body, mgl32.Scale3D(0.15, 0.15, 0.15)); err != nil {
			return err
		}
	}
	for _, c := range m.Spinners {
		body := core.NewTransform()
		body.Position = c.Center(0.4)
		id, err := w.SpawnDynamic(core.SquarePyramid, 2, body, mgl32.Scale3D(0.2, 0.2, 0.2))
		if err != nil {
			return err
		}
		if err := w.Attach(id, Spin{Rate: 1}); err != nil {
			return err
		}
	}
	return nil
}
