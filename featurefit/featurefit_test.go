package featurefit

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestNeighborsReturnsClosestK(t *testing.T) {
	query := r3.Vector{}
	candidates := []r3.Vector{
		{X: 5}, {X: 1}, {X: 3}, {X: 0.5},
	}
	out := Neighbors(query, candidates, 2)
	test.That(t, len(out), test.ShouldEqual, 2)
	test.That(t, out[0].X, test.ShouldEqual, 0.5)
	test.That(t, out[1].X, test.ShouldEqual, 1)
}

func TestNeighborsClampsKToCandidateCount(t *testing.T) {
	out := Neighbors(r3.Vector{}, []r3.Vector{{X: 1}}, 5)
	test.That(t, len(out), test.ShouldEqual, 1)
}

func TestFitLineAcceptsCollinearPoints(t *testing.T) {
	pts := []r3.Vector{{X: -1}, {X: 0}, {X: 1}, {X: 2}}
	p := Params{MaxDist: 10, FactorLine: 2}
	a, centroid, ok := FitLine(pts, p)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, centroid.X, test.ShouldAlmostEqual, 0.5, 1e-9)
	// a line's residual projector should zero out a point lying exactly on the fitted line.
	onLine := r3.Vector{X: 1.5}
	var out r3.Vector
	out = applyProjector(a, onLine.Sub(centroid))
	test.That(t, out.Norm(), test.ShouldAlmostEqual, 0, 1e-6)
}

func TestFitLineRejectsSpreadOutCluster(t *testing.T) {
	pts := []r3.Vector{{X: 1}, {Y: 1}, {Z: 1}, {X: -1, Y: -1, Z: -1}}
	p := Params{MaxDist: 10, FactorLine: 5}
	_, _, ok := FitLine(pts, p)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestFitLineRejectsFarNeighbor(t *testing.T) {
	pts := []r3.Vector{{X: -1}, {X: 0}, {X: 1}, {X: 100}}
	p := Params{MaxDist: 5, FactorLine: 2}
	_, _, ok := FitLine(pts, p)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestFitPlaneAcceptsCoplanarPoints(t *testing.T) {
	pts := []r3.Vector{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}
	p := Params{MaxDist: 10, Factor1Plane: 2, Factor2Plane: 5}
	a, centroid, ok := FitPlane(pts, p)
	test.That(t, ok, test.ShouldBeTrue)
	onPlane := r3.Vector{X: 0.5, Y: 0.5, Z: 0}
	out := applyProjector(a, onPlane.Sub(centroid))
	test.That(t, out.Norm(), test.ShouldAlmostEqual, 0, 1e-6)
}

func TestFitPlaneRejectsTooFewPoints(t *testing.T) {
	_, _, ok := FitPlane([]r3.Vector{{X: 0}, {X: 1}}, Params{MaxDist: 10})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestDistanceMeasuresProjectedOffsetFromFittedLine(t *testing.T) {
	pts := []r3.Vector{{X: -1}, {X: 0}, {X: 1}, {X: 2}}
	a, centroid, ok := FitLine(pts, Params{MaxDist: 10, FactorLine: 2})
	test.That(t, ok, test.ShouldBeTrue)

	test.That(t, Distance(a, centroid, r3.Vector{X: 1.5}), test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, Distance(a, centroid, r3.Vector{X: 0.5, Y: 2}), test.ShouldAlmostEqual, 2, 1e-6)
}

func applyProjector(a interface{ At(i, j int) float64 }, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: a.At(0, 0)*v.X + a.At(0, 1)*v.Y + a.At(0, 2)*v.Z,
		Y: a.At(1, 0)*v.X + a.At(1, 1)*v.Y + a.At(1, 2)*v.Z,
		Z: a.At(2, 0)*v.X + a.At(2, 1)*v.Y + a.At(2, 2)*v.Z,
	}
}
