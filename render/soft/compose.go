package soft

import (
	"image"
	"image/color"

	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/eraser"
)

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func to8(f float32) uint8 {
	if f <= 0 {
		return 0
	}
	if f >= 1 {
		return 255
	}
	return uint8(f*255 + 0.5)
}

func rgba(c [4]float32) color.RGBA {
	return color.RGBA{R: to8(c[0]), G: to8(c[1]), B: to8(c[2]), A: to8(c[3])}
}

// composite shades every pixel from its tag: background where no group was
// drawn, otherwise the palette color faded toward the background by the
// group's decay.
func composite(dst *image.RGBA, t *targets, decay *eraser.DecayTable, palette core.Palette, bg [4]float32) {
	w := int(t.extent.Width)
	for y := 0; y < int(t.extent.Height); y++ {
		for x := 0; x < w; x++ {
			g, c := core.UnpackTag(t.tag[y*w+x])
			out := bg
			if g != 0 {
				col := palette.At(c)
				d := decay[g]
				for k := range out {
					out[k] = lerp(bg[k], col[k], d)
				}
			}
			dst.SetRGBA(x, y, rgba(out))
		}
	}
}

// blend composites src over the pixel at (x, y) with straight alpha.
func blend(dst *image.RGBA, x, y int, src [4]float32) {
	if !(image.Point{X: x, Y: y}).In(dst.Rect) {
		return
	}
	d := dst.RGBAAt(x, y)
	a := src[3]
	dst.SetRGBA(x, y, color.RGBA{
		R: to8(lerp(float32(d.R)/255, src[0], a)),
		G: to8(lerp(float32(d.G)/255, src[1], a)),
		B: to8(lerp(float32(d.B)/255, src[2], a)),
		A: to8(a + float32(d.A)/255*(1-a)),
	})
}

// drawCursor draws the sprite centered at twice its size.
func drawCursor(dst *image.RGBA, cursor *image.RGBA) {
	if cursor == nil {
		return
	}
	cb := cursor.Bounds()
	cw, ch := cb.Dx()*2, cb.Dy()*2
	ox := dst.Rect.Dx()/2 - cw/2
	oy := dst.Rect.Dy()/2 - ch/2
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			s := cursor.RGBAAt(cb.Min.X+x/2, cb.Min.Y+y/2)
			if s.A == 0 {
				continue
			}
			blend(dst, ox+x, oy+y, [4]float32{
				float32(s.R) / 255, float32(s.G) / 255, float32(s.B) / 255, float32(s.A) / 255,
			})
		}
	}
}

// drawOverlay fills the glyph quads built by core.Overlay. Every six
// vertices form one screen-aligned quad, so each is filled as a rectangle
// with nearest sampling of the atlas.
func drawOverlay(dst *image.RGBA, verts []core.OverlayVertex, atlas *image.Alpha) {
	if atlas == nil {
		return
	}
	w, h := float32(dst.Rect.Dx()), float32(dst.Rect.Dy())
	ab := atlas.Bounds()
	for q := 0; q+5 < len(verts); q += 6 {
		quad := verts[q : q+6]
		x0, y0 := quad[0].Pos[0], quad[0].Pos[1]
		x1, y1 := x0, y0
		u0, v0 := quad[0].UV[0], quad[0].UV[1]
		u1, v1 := u0, v0
		for _, vtx := range quad[1:] {
			x0, x1 = min(x0, vtx.Pos[0]), max(x1, vtx.Pos[0])
			y0, y1 = min(y0, vtx.Pos[1]), max(y1, vtx.Pos[1])
			u0, u1 = min(u0, vtx.UV[0]), max(u1, vtx.UV[0])
			v0, v1 = min(v0, vtx.UV[1]), max(v1, vtx.UV[1])
		}
		// clip space y points up, texture v points down
		left, right := (x0+1)*0.5*w, (x1+1)*0.5*w
		top, bottom := (1-y1)*0.5*h, (1-y0)*0.5*h
		if right <= left || bottom <= top {
			continue
		}
		col := quad[0].Color
		for py := int(top); py < int(bottom+0.5); py++ {
			for px := int(left); px < int(right+0.5); px++ {
				fu := (float32(px) + 0.5 - left) / (right - left)
				fv := (float32(py) + 0.5 - top) / (bottom - top)
				ax := ab.Min.X + int(lerp(u0, u1, fu)*float32(ab.Dx()))
				ay := ab.Min.Y + int(lerp(v0, v1, fv)*float32(ab.Dy()))
				cov := float32(atlas.AlphaAt(ax, ay).A) / 255
				if cov == 0 {
					continue
				}
				blend(dst, px, py, [4]float32{col[0], col[1], col[2], col[3] * cov})
			}
		}
	}
}
