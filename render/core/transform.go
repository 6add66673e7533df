package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform is a rigid body pose plus scale, as delivered by physics.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func NewTransform() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Matrix returns T * R * S.
func (t Transform) Matrix() mgl32.Mat4 {
	translate := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return translate.Mul4(t.Rotation.Mat4()).Mul4(scale)
}

// Compose applies local after t, so the result maps local space through
// the body into world space.
func (t Transform) Compose(local mgl32.Mat4) mgl32.Mat4 {
	return t.Matrix().Mul4(local)
}

// Child returns local, given relative to t, in t's parent space. Scales
// multiply per axis so mirrored parents keep their sign.
func (t Transform) Child(local Transform) Transform {
	scaled := mgl32.Vec3{
		local.Position.X() * t.Scale.X(),
		local.Position.Y() * t.Scale.Y(),
		local.Position.Z() * t.Scale.Z(),
	}
	return Transform{
		Position: t.Position.Add(t.Rotation.Rotate(scaled)),
		Rotation: t.Rotation.Mul(local.Rotation).Normalize(),
		Scale: mgl32.Vec3{
			t.Scale.X() * local.Scale.X(),
			t.Scale.Y() * local.Scale.Y(),
			t.Scale.Z() * local.Scale.Z(),
		},
	}
}
