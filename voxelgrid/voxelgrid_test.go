package voxelgrid

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func smallParams() Params {
	return Params{VoxelSize: 1, NVoxelsX: 3, NVoxelsY: 3, NVoxelsZ: 3, LeafSize: 0}
}

func TestInsertAndQueryFindsNearbyPoint(t *testing.T) {
	g := New(smallParams())
	g.Insert([]r3.Vector{{X: 0.1, Y: 0.1, Z: 0.1}})

	found := g.Query(r3.Vector{}, 1)
	test.That(t, len(found), test.ShouldEqual, 1)
}

func TestQueryIsVoxelGranularNotExactSphere(t *testing.T) {
	g := New(smallParams())
	// distance from origin is ~1.56, outside the radius-1 query, but Query enumerates whole
	// voxels rather than filtering by exact Euclidean distance, so it is returned as a candidate
	// for the caller's own k-NN pass to filter further.
	g.Insert([]r3.Vector{{X: 0.9, Y: 0.9, Z: 0.9}})

	found := g.Query(r3.Vector{}, 1)
	test.That(t, len(found), test.ShouldEqual, 1)
}

func TestQueryOutsideBoxFindsNothing(t *testing.T) {
	g := New(smallParams())
	g.Insert([]r3.Vector{{X: 0.1}})

	found := g.Query(r3.Vector{X: 5}, 1)
	test.That(t, len(found), test.ShouldEqual, 0)
}

func TestInsertDropsPointsOutsideBox(t *testing.T) {
	g := New(Params{VoxelSize: 1, NVoxelsX: 1, NVoxelsY: 1, NVoxelsZ: 1, LeafSize: 0})
	g.Insert([]r3.Vector{{X: 100}})
	found := g.Query(r3.Vector{X: 100}, 1)
	test.That(t, len(found), test.ShouldEqual, 0)
}

func TestDownsampleKeepsOnePointPerLeaf(t *testing.T) {
	g := New(Params{VoxelSize: 2, NVoxelsX: 3, NVoxelsY: 3, NVoxelsZ: 3, LeafSize: 1})
	g.Insert([]r3.Vector{{X: 0.1, Y: 0.1}, {X: 0.2, Y: 0.2}, {X: 0.9, Y: 0.9}})

	found := g.Query(r3.Vector{}, 2)
	test.That(t, len(found), test.ShouldEqual, 1)
}

func TestRollToShiftsOriginAndDropsStaleVoxels(t *testing.T) {
	g := New(Params{VoxelSize: 1, NVoxelsX: 1, NVoxelsY: 1, NVoxelsZ: 1, LeafSize: 0})
	g.Insert([]r3.Vector{{X: 0}})
	test.That(t, len(g.Query(r3.Vector{}, 1)), test.ShouldEqual, 1)

	g.RollTo(r3.Vector{X: 10})
	test.That(t, len(g.Query(r3.Vector{X: 0}, 1)), test.ShouldEqual, 0)
}

func TestResetEmptiesGrid(t *testing.T) {
	g := New(smallParams())
	g.Insert([]r3.Vector{{X: 0}})
	g.Reset()
	test.That(t, len(g.Query(r3.Vector{}, 5)), test.ShouldEqual, 0)
}
