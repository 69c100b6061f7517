package component

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestTransformMatrixTranslates(t *testing.T) {
	tr := NewTransform(mgl32.Vec3{}, mgl32.Vec3{1, 2, 3})
	origin := tr.Matrix().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	if !origin.Vec3().ApproxEqual(mgl32.Vec3{1, 2, 3}) {
		t.Fatalf("origin maps to %v", origin)
	}
}

func TestPointOfViewInvertsMatrix(t *testing.T) {
	tr := NewTransform(mgl32.Vec3{0.3, 1.1, 0}, mgl32.Vec3{4, -2, 7})
	id := tr.PointOfView().Mul4(tr.Matrix())
	if !id.ApproxEqualThreshold(mgl32.Ident4(), 1e-4) {
		t.Fatalf("view * model = %v, want identity", id)
	}
}

func TestMutatorsMarkDirty(t *testing.T) {
	tr := NewTransform(mgl32.Vec3{}, mgl32.Vec3{})
	for name, mutate := range map[string]func(){
		"translate": func() { tr.Translate(mgl32.Vec3{1, 0, 0}) },
		"displace":  func() { tr.DisplaceBy(mgl32.Vec3{0, 0, 1}) },
		"rotate":    func() { tr.Rotate(mgl32.Vec3{0, 0.1, 0}) },
	} {
		tr.Dirty = false
		mutate()
		if !tr.Dirty {
			t.Errorf("%s did not mark dirty", name)
		}
	}
}

func TestDisplaceByFollowsRotation(t *testing.T) {
	tr := NewTransform(mgl32.Vec3{0, mgl32.DegToRad(90), 0}, mgl32.Vec3{})
	tr.DisplaceBy(mgl32.Vec3{0, 0, -1})
	if !tr.Position.ApproxEqualThreshold(mgl32.Vec3{-1, 0, 0}, 1e-5) {
		t.Fatalf("position = %v, want [-1 0 0]", tr.Position)
	}
}
