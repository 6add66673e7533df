package core

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// OverlayVertex is one corner of a HUD glyph quad in clip space.
type OverlayVertex struct {
	Pos   [2]float32
	UV    [2]float32
	Color [4]float32
}

// OverlayVertexSize is the byte stride of OverlayVertex.
const OverlayVertexSize = 32

// TextItem is a string placed in pixel coordinates from the top-left corner.
type TextItem struct {
	Text     string
	Position [2]float32
	Scale    float32
	Color    [4]float32
}

type Glyph struct {
	UVMin [2]float32
	UVMax [2]float32
	Size  [2]float32
	Off   [2]float32
	Adv   float32
}

// Overlay rasterizes a fixed bitmap font into an alpha atlas and builds
// glyph quads against it.
type Overlay struct {
	Atlas  *image.Alpha
	Glyphs map[rune]Glyph
	face   font.Face
}

const atlasSize = 256

func NewOverlay() *Overlay {
	face := basicfont.Face7x13
	atlas := image.NewAlpha(image.Rect(0, 0, atlasSize, atlasSize))
	glyphs := make(map[rune]Glyph)

	x, y := 1, 1
	rowHeight := 0
	for r := rune(32); r < 127; r++ {
		dr, mask, maskp, adv, ok := face.Glyph(fixed.Point26_6{}, r)
		if !ok {
			continue
		}
		w, h := dr.Dx(), dr.Dy()
		if x+w >= atlasSize {
			x = 1
			y += rowHeight + 2
			rowHeight = 0
		}
		if y+h >= atlasSize {
			break
		}

		draw.Draw(atlas, image.Rect(x, y, x+w, y+h), mask, maskp, draw.Src)
		glyphs[r] = Glyph{
			UVMin: [2]float32{float32(x) / atlasSize, float32(y) / atlasSize},
			UVMax: [2]float32{float32(x+w) / atlasSize, float32(y+h) / atlasSize},
			Size:  [2]float32{float32(w), float32(h)},
			Off:   [2]float32{float32(dr.Min.X), float32(dr.Min.Y)},
			Adv:   float32(adv) / 64.0,
		}

		x += w + 2
		if h > rowHeight {
			rowHeight = h
		}
	}

	return &Overlay{Atlas: atlas, Glyphs: glyphs, face: face}
}

// Build appends two triangles per visible glyph to dst.
func (o *Overlay) Build(dst []OverlayVertex, items []TextItem, screen Extent) []OverlayVertex {
	if screen.Empty() {
		return dst
	}
	sw := float32(screen.Width)
	sh := float32(screen.Height)
	metrics := o.face.Metrics()
	ascent := float32(metrics.Ascent.Ceil())
	lineHeight := float32(metrics.Height.Ceil())

	for _, item := range items {
		scale := item.Scale
		if scale == 0 {
			scale = 1
		}
		posX := item.Position[0]
		posY := item.Position[1] + ascent*scale

		for _, r := range item.Text {
			if r == '\n' {
				posX = item.Position[0]
				posY += lineHeight * scale
				continue
			}
			g, ok := o.Glyphs[r]
			if !ok {
				continue
			}

			x0 := (posX+g.Off[0]*scale)/sw*2 - 1
			y0 := 1 - (posY+g.Off[1]*scale)/sh*2
			x1 := (posX+(g.Off[0]+g.Size[0])*scale)/sw*2 - 1
			y1 := 1 - (posY+(g.Off[1]+g.Size[1])*scale)/sh*2

			c := item.Color
			dst = append(dst,
				OverlayVertex{Pos: [2]float32{x0, y0}, UV: [2]float32{g.UVMin[0], g.UVMin[1]}, Color: c},
				OverlayVertex{Pos: [2]float32{x1, y0}, UV: [2]float32{g.UVMax[0], g.UVMin[1]}, Color: c},
				OverlayVertex{Pos: [2]float32{x0, y1}, UV: [2]float32{g.UVMin[0], g.UVMax[1]}, Color: c},
				OverlayVertex{Pos: [2]float32{x1, y0}, UV: [2]float32{g.UVMax[0], g.UVMin[1]}, Color: c},
				OverlayVertex{Pos: [2]float32{x1, y1}, UV: [2]float32{g.UVMax[0], g.UVMax[1]}, Color: c},
				OverlayVertex{Pos: [2]float32{x0, y1}, UV: [2]float32{g.UVMin[0], g.UVMax[1]}, Color: c},
			)
			posX += g.Adv * scale
		}
	}
	return dst
}

// Measure returns the pixel size of text at scale.
func (o *Overlay) Measure(text string, scale float32) (float32, float32) {
	lineHeight := float32(o.face.Metrics().Height.Ceil())
	maxW, curW := float32(0), float32(0)
	lines := 1
	for _, r := range text {
		if r == '\n' {
			maxW = max(maxW, curW)
			curW = 0
			lines++
			continue
		}
		if g, ok := o.Glyphs[r]; ok {
			curW += g.Adv * scale
		}
	}
	return max(maxW, curW), lineHeight * scale * float32(lines)
}

// DefaultCursor draws a small crosshair sprite.
func DefaultCursor() *image.RGBA {
	const size = 16
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	white := color.RGBA{255, 255, 255, 230}
	for i := 0; i < size; i++ {
		if i >= 6 && i <= 9 {
			continue
		}
		img.SetRGBA(i, size/2, white)
		img.SetRGBA(size/2, i, white)
	}
	return img
}

// OverlayBytes encodes overlay vertices.
func OverlayBytes(vs []OverlayVertex) []byte {
	buf := make([]byte, len(vs)*OverlayVertexSize)
	for i, vtx := range vs {
		off := buf[i*OverlayVertexSize:]
		putF32(off[0:], vtx.Pos[0])
		putF32(off[4:], vtx.Pos[1])
		putF32(off[8:], vtx.UV[0])
		putF32(off[12:], vtx.UV[1])
		for j, c := range vtx.Color {
			putF32(off[16+4*j:], c)
		}
	}
	return buf
}

// VertexBytes encodes position-only vertices.
func VertexBytes(vs []Vertex) []byte {
	buf := make([]byte, len(vs)*12)
	for i, vtx := range vs {
		for j, f := range vtx.Pos {
			putF32(buf[12*i+4*j:], f)
		}
	}
	return buf
}
