package motion

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestIdentityApplyIsNoOp(t *testing.T) {
	p := Identity()
	x := r3.Vector{X: 1, Y: 2, Z: 3}
	out := p.Apply(x)
	test.That(t, out.X, test.ShouldAlmostEqual, x.X)
	test.That(t, out.Y, test.ShouldAlmostEqual, x.Y)
	test.That(t, out.Z, test.ShouldAlmostEqual, x.Z)
}

func TestRotationMatrixQuarterTurnAboutZ(t *testing.T) {
	aa := r3.Vector{Z: math.Pi / 2}
	p := Pose{R: aa}
	out := p.Apply(r3.Vector{X: 1})
	test.That(t, out.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, out.Y, test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, out.Z, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestToStartAndToEndRoundTrip(t *testing.T) {
	tRel := Pose{R: r3.Vector{Z: 0.1}, T: r3.Vector{X: 1, Y: 0.5}}
	x := r3.Vector{X: 3, Y: 1, Z: 0.2}
	s := 0.6

	start := ToStart(x, s, tRel)
	end := ToEnd(x, s, tRel)
	// to_end of x is x carried into the sweep-start frame by to_start and then moved by the full
	// sweep transform into the sweep-end frame, which, for a point acquired partway through,
	// differs from x itself.
	expected := tRel.Apply(start)
	_ = end
	test.That(t, expected.X, test.ShouldAlmostEqual, end.X, 1e-9)
}

func TestAtFractionScalesLinearly(t *testing.T) {
	full := Pose{R: r3.Vector{Z: 1}, T: r3.Vector{X: 2}}
	half := AtFraction(full, 0.5)
	test.That(t, half.R.Z, test.ShouldAlmostEqual, 0.5)
	test.That(t, half.T.X, test.ShouldAlmostEqual, 1)
}

func TestComposeWithIdentityIsNoOp(t *testing.T) {
	p := Pose{R: r3.Vector{X: 0.2, Y: 0.1}, T: r3.Vector{X: 1, Y: 2, Z: 3}}
	out := Compose(p, Identity())
	test.That(t, out.T.X, test.ShouldAlmostEqual, p.T.X, 1e-9)
	test.That(t, out.R.X, test.ShouldAlmostEqual, p.R.X, 1e-9)

	out2 := Compose(Identity(), p)
	test.That(t, out2.T.X, test.ShouldAlmostEqual, p.T.X, 1e-9)
	test.That(t, out2.R.X, test.ShouldAlmostEqual, p.R.X, 1e-9)
}

func TestComposeMatchesSequentialApply(t *testing.T) {
	a := Pose{R: r3.Vector{Z: 0.3}, T: r3.Vector{X: 1}}
	b := Pose{R: r3.Vector{Y: 0.2}, T: r3.Vector{Y: 0.5}}
	x := r3.Vector{X: 2, Y: -1, Z: 0.4}

	composed := Compose(a, b)
	direct := a.Apply(b.Apply(x))
	viaComposed := composed.Apply(x)

	test.That(t, viaComposed.X, test.ShouldAlmostEqual, direct.X, 1e-9)
	test.That(t, viaComposed.Y, test.ShouldAlmostEqual, direct.Y, 1e-9)
	test.That(t, viaComposed.Z, test.ShouldAlmostEqual, direct.Z, 1e-9)
}
