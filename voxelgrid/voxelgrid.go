// Package voxelgrid implements the rolling voxel grid that stores the map and bounds memory: a
// fixed-extent axis-aligned box of cubic voxels that follows the sensor, with a leaf-voxel
// downsampling filter applied on insert.
package voxelgrid

import (
	"math"

	"github.com/golang/geo/r3"
)

// Coord is an integer voxel index.
type Coord struct{ I, J, K int }

// Params configures grid geometry.
type Params struct {
	VoxelSize float64
	NVoxelsX  int
	NVoxelsY  int
	NVoxelsZ  int
	LeafSize  float64
}

// Grid is a fixed-extent, sensor-following voxel structure. The grid owns its voxels exclusively
// and voxels own their point bag exclusively; no back-references are needed since every query
// starts from the grid root.
type Grid struct {
	params Params
	origin Coord // voxel coordinate currently anchoring the grid's inner box
	voxels map[Coord][]r3.Vector
}

// New creates an empty grid.
func New(p Params) *Grid {
	return &Grid{params: p, voxels: make(map[Coord][]r3.Vector)}
}

// Reset empties the grid and re-centers it at the origin.
func (g *Grid) Reset() {
	g.voxels = make(map[Coord][]r3.Vector)
	g.origin = Coord{}
}

func (g *Grid) coordOf(p r3.Vector) Coord {
	return Coord{
		I: int(math.Floor(p.X / g.params.VoxelSize)),
		J: int(math.Floor(p.Y / g.params.VoxelSize)),
		K: int(math.Floor(p.Z / g.params.VoxelSize)),
	}
}

func (g *Grid) half() Coord {
	return Coord{g.params.NVoxelsX / 2, g.params.NVoxelsY / 2, g.params.NVoxelsZ / 2}
}

// RollTo translates the grid, by an integer number of voxels per axis, so that center's voxel
// falls back inside the inner box. Slabs that fall off one face are discarded; new voxels on the
// opposite face start empty (implicitly, since the backing map only holds occupied voxels).
func (g *Grid) RollTo(center r3.Vector) {
	c := g.coordOf(center)
	half := g.half()

	dI := shiftNeeded(c.I-g.origin.I, half.I)
	dJ := shiftNeeded(c.J-g.origin.J, half.J)
	dK := shiftNeeded(c.K-g.origin.K, half.K)
	if dI == 0 && dJ == 0 && dK == 0 {
		return
	}

	g.origin = Coord{g.origin.I + dI, g.origin.J + dJ, g.origin.K + dK}
	newVoxels := make(map[Coord][]r3.Vector, len(g.voxels))
	for coord, pts := range g.voxels {
		rel := Coord{coord.I - g.origin.I, coord.J - g.origin.J, coord.K - g.origin.K}
		if abs(rel.I) > half.I || abs(rel.J) > half.J || abs(rel.K) > half.K {
			continue // slab fell off the working horizon
		}
		newVoxels[coord] = pts
	}
	g.voxels = newVoxels
}

// shiftNeeded returns the minimal translation of the grid's origin along one axis so that offset
// (a voxel coordinate relative to the current origin) falls back within [-half, half].
func shiftNeeded(offset, half int) int {
	if offset > half {
		return offset - half
	}
	if offset < -half {
		return offset + half
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Insert adds points to their voxels and applies leaf-voxel downsampling within each touched
// voxel. Points outside the grid's current box are silently dropped: they are beyond the working
// horizon.
func (g *Grid) Insert(points []r3.Vector) {
	half := g.half()
	touched := make(map[Coord]bool)
	for _, p := range points {
		c := g.coordOf(p)
		rel := Coord{c.I - g.origin.I, c.J - g.origin.J, c.K - g.origin.K}
		if abs(rel.I) > half.I || abs(rel.J) > half.J || abs(rel.K) > half.K {
			continue
		}
		g.voxels[c] = append(g.voxels[c], p)
		touched[c] = true
	}
	for c := range touched {
		g.voxels[c] = downsample(g.voxels[c], g.params.LeafSize)
	}
}

// downsample keeps one representative point per leaf-size sub-cell of a voxel.
func downsample(pts []r3.Vector, leaf float64) []r3.Vector {
	if leaf <= 0 {
		return pts
	}
	seen := make(map[Coord]r3.Vector, len(pts))
	for _, p := range pts {
		key := Coord{
			I: int(math.Floor(p.X / leaf)),
			J: int(math.Floor(p.Y / leaf)),
			K: int(math.Floor(p.Z / leaf)),
		}
		if _, ok := seen[key]; !ok {
			seen[key] = p
		}
	}
	out := make([]r3.Vector, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	return out
}

// Query collects all points from voxels intersecting the cube of side 2*radius centered on
// center.
func (g *Grid) Query(center r3.Vector, radius float64) []r3.Vector {
	c := g.coordOf(center)
	span := int(math.Ceil(radius / g.params.VoxelSize))
	var out []r3.Vector
	for di := -span; di <= span; di++ {
		for dj := -span; dj <= span; dj++ {
			for dk := -span; dk <= span; dk++ {
				out = append(out, g.voxels[Coord{c.I + di, c.J + dj, c.K + dk}]...)
			}
		}
	}
	return out
}
