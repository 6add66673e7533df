package core

import (
	"encoding/binary"
	"math"
)

// Palette maps color indices to linear RGBA.
type Palette [][4]float32

// DefaultPalette is used when no palette is configured.
var DefaultPalette = Palette{
	{0.82, 0.80, 0.74, 1},
	{0.40, 0.55, 0.72, 1},
	{0.72, 0.42, 0.35, 1},
	{0.45, 0.62, 0.40, 1},
	{0.78, 0.70, 0.38, 1},
	{0.55, 0.45, 0.68, 1},
	{0.30, 0.30, 0.33, 1},
	{0.92, 0.92, 0.92, 1},
}

// At returns the color for index i, wrapping out-of-range indices.
func (p Palette) At(i uint16) [4]float32 {
	if len(p) == 0 {
		return [4]float32{1, 0, 1, 1}
	}
	return p[int(i)%len(p)]
}

// Bytes encodes the palette as an array of vec4f.
func (p Palette) Bytes() []byte {
	if len(p) == 0 {
		p = DefaultPalette
	}
	buf := make([]byte, len(p)*16)
	for i, c := range p {
		for j, f := range c {
			binary.LittleEndian.PutUint32(buf[16*i+4*j:], math.Float32bits(f))
		}
	}
	return buf
}
