package spatial

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Pose is a rigid transform: rotation followed by translation.
type Pose struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// IdentityPose is the pose of the world root.
func IdentityPose() Pose {
	return Pose{Rotation: mgl64.QuatIdent()}
}

// PoseAt returns an unrotated pose at p.
func PoseAt(p mgl64.Vec3) Pose {
	return Pose{Position: p, Rotation: mgl64.QuatIdent()}
}

// Mat4 returns the homogeneous matrix T × R.
func (p Pose) Mat4() mgl64.Mat4 {
	t := mgl64.Translate3D(p.Position.X(), p.Position.Y(), p.Position.Z())
	return t.Mul4(p.Rotation.Normalize().Mat4())
}

// PoseFromMat4 decomposes a rigid (unscaled) matrix into a pose.
func PoseFromMat4(m mgl64.Mat4) Pose {
	return Pose{
		Position: m.Col(3).Vec3(),
		Rotation: mgl64.Mat4ToQuat(m).Normalize(),
	}
}

// Translated returns the pose shifted by d in world space.
func (p Pose) Translated(d mgl64.Vec3) Pose {
	return Pose{Position: p.Position.Add(d), Rotation: p.Rotation}
}

// ApproxEqual compares two poses by their matrices, so q and -q are equal.
func (p Pose) ApproxEqual(o Pose, eps float64) bool {
	return p.Mat4().ApproxEqualThreshold(o.Mat4(), eps)
}

// Reparent returns the local transform that keeps an object at world when
// it is attached under a parent whose world transform is parentWorld.
//
//	world = parent × local  ⇒  local = parent⁻¹ × world
func Reparent(world, parentWorld mgl64.Mat4) mgl64.Mat4 {
	return parentWorld.Inv().Mul4(world)
}

// Compose returns the world transform of a child given its parent.
func Compose(parentWorld, local mgl64.Mat4) mgl64.Mat4 {
	return parentWorld.Mul4(local)
}
