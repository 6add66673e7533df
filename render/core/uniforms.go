package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// UniformSize is the byte size of one per-frame uniform block.
const UniformSize = 256

// Uniforms is the per-frame block shared by every pass.
type Uniforms struct {
	View        mgl32.Mat4
	Proj        mgl32.Mat4
	Dt          float32
	Velocity    float32
	CursorScale [2]float32
	Screen      [2]float32
	Background  [4]float32
}

// Bytes encodes the block with WGSL uniform layout.
//
//	0   view        mat4x4f
//	64  proj        mat4x4f
//	128 dt          f32
//	132 velocity    f32
//	136 cursor      vec2f
//	144 screen      vec2f
//	160 background  vec4f
func (u Uniforms) Bytes() []byte {
	buf := make([]byte, UniformSize)
	putMat4(buf[0:], u.View)
	putMat4(buf[64:], u.Proj)
	putF32(buf[128:], u.Dt)
	putF32(buf[132:], u.Velocity)
	putF32(buf[136:], u.CursorScale[0])
	putF32(buf[140:], u.CursorScale[1])
	putF32(buf[144:], u.Screen[0])
	putF32(buf[148:], u.Screen[1])
	for i, c := range u.Background {
		putF32(buf[160+4*i:], c)
	}
	return buf
}

// ViewProj is Proj * View.
func (u Uniforms) ViewProj() mgl32.Mat4 {
	return u.Proj.Mul4(u.View)
}

func putMat4(dst []byte, m mgl32.Mat4) {
	for i, f := range m {
		putF32(dst[4*i:], f)
	}
}

func putF32(dst []byte, f float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(f))
}
