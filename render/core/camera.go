package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	FieldOfView = math.Pi / 3
	NearPlane   = 0.01
	FarPlane    = 100.0
	// steepAim is the vertical aim component beyond which the world up axis
	// is replaced to keep the view basis well defined.
	steepAim = 0.8
)

// Camera is the player's eye: position, aim direction and the horizontal
// aim angle around Z. The world is Z-up.
type Camera struct {
	Position mgl32.Vec3
	Aim      mgl32.Vec3
	Yaw      float32
}

// NewCamera returns a camera looking along +X.
func NewCamera(pos mgl32.Vec3) Camera {
	return Camera{Position: pos, Aim: mgl32.Vec3{1, 0, 0}}
}

// AimFromAngles sets Aim and Yaw from a horizontal angle and a pitch.
func (c *Camera) AimFromAngles(yaw, pitch float32) {
	cp := float32(math.Cos(float64(pitch)))
	c.Yaw = yaw
	c.Aim = mgl32.Vec3{
		cp * float32(math.Cos(float64(yaw))),
		cp * float32(math.Sin(float64(yaw))),
		float32(math.Sin(float64(pitch))),
	}
}

// Up returns the up vector used for the view basis. When looking almost
// straight up or down, the horizontal aim axis takes over.
func (c Camera) Up() mgl32.Vec3 {
	if abs32(c.Aim.Z()) > steepAim {
		sign := float32(1)
		if c.Aim.Z() < 0 {
			sign = -1
		}
		rot := mgl32.Rotate3DZ(c.Yaw)
		return rot.Mul3x1(mgl32.Vec3{1, 0, 0}).Mul(-sign)
	}
	return mgl32.Vec3{0, 0, 1}
}

func (c Camera) View() mgl32.Mat4 {
	aim := c.Aim
	if aim.Len() == 0 {
		aim = mgl32.Vec3{1, 0, 0}
	}
	return mgl32.LookAtV(c.Position, c.Position.Add(aim), c.Up())
}

// Projection returns a right-handed perspective projection with depth in
// [0, 1].
func (c Camera) Projection(aspect float32) mgl32.Mat4 {
	return DepthZeroToOne.Mul4(mgl32.Perspective(FieldOfView, aspect, NearPlane, FarPlane))
}

// DepthZeroToOne remaps clip-space depth from [-w, w] to [0, w].
var DepthZeroToOne = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
