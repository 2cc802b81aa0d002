// Package geom derives the wet domain of a raster: the cells with zmin < z <= zmax,
// and the polygons that bound them.
package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/raster"
)

type Geom struct {
	raster     *raster.Raster
	zmin, zmax float64

	mask []bool
	wet  int
	sat  []int32 // summed-area table of mask, (rows+1)*(cols+1)

	polys orb.MultiPolygon
	bound orb.Bound
}

type Option func(*Geom)

// WithZMin excludes cells at or below z.
func WithZMin(z float64) Option {
	return func(g *Geom) { g.zmin = z }
}

// New builds the domain of r bounded above by zmax.
func New(r *raster.Raster, zmax float64, opts ...Option) (*Geom, error) {
	g := &Geom{
		raster: r,
		zmin:   math.Inf(-1),
		zmax:   zmax,
	}
	for _, opt := range opts {
		opt(g)
	}
	if !(g.zmin < g.zmax) {
		return nil, domain.Degenerate("geom.new", "zmin %g must be below zmax %g", g.zmin, g.zmax)
	}

	g.mask = make([]bool, r.Rows*r.Cols)
	for row := 0; row < r.Rows; row++ {
		for col := 0; col < r.Cols; col++ {
			z, ok := r.At(row, col)
			if ok && z > g.zmin && z <= g.zmax {
				g.mask[row*r.Cols+col] = true
				g.wet++
			}
		}
	}
	if g.wet == 0 {
		return nil, domain.Degenerate("geom.new", "no raster cell with %g < z <= %g", g.zmin, g.zmax)
	}

	g.buildSAT()
	g.polys = trace(r, g.mask)
	g.bound = g.polys.Bound()
	return g, nil
}

func (g *Geom) Raster() *raster.Raster { return g.raster }

func (g *Geom) ZMax() float64 { return g.zmax }

// WetCells is the number of raster cells inside the domain.
func (g *Geom) WetCells() int { return g.wet }

// MultiPolygon returns the domain outline. Outer rings are counter-clockwise.
func (g *Geom) MultiPolygon() orb.MultiPolygon { return g.polys }

// Bound is the bounding box of the wet cells.
func (g *Geom) Bound() orb.Bound { return g.bound }

// Contains reports whether p falls in a wet cell.
func (g *Geom) Contains(p orb.Point) bool {
	row, col, ok := g.raster.Locate(p[0], p[1])
	if !ok {
		return false
	}
	return g.mask[row*g.raster.Cols+col]
}

// AnyWet reports whether any wet cell intersects the bound b.
func (g *Geom) AnyWet(b orb.Bound) bool {
	r := g.raster
	c0 := int(math.Floor((b.Min[0] - r.X0) / r.DX))
	c1 := int(math.Floor((b.Max[0] - r.X0) / r.DX))
	r0 := int(math.Floor((r.Y0 - b.Max[1]) / r.DY))
	r1 := int(math.Floor((r.Y0 - b.Min[1]) / r.DY))
	c0, c1 = max(c0, 0), min(c1, r.Cols-1)
	r0, r1 = max(r0, 0), min(r1, r.Rows-1)
	if c0 > c1 || r0 > r1 {
		return false
	}
	w := r.Cols + 1
	n := g.sat[(r1+1)*w+c1+1] - g.sat[r0*w+c1+1] - g.sat[(r1+1)*w+c0] + g.sat[r0*w+c0]
	return n > 0
}

// CoversRaster reports whether every raster cell is wet.
func (g *Geom) CoversRaster() bool {
	return g.wet == len(g.mask)
}

// Area is the planar area of the domain in coordinate units.
func (g *Geom) Area() float64 {
	return planar.Area(g.polys)
}

func (g *Geom) buildSAT() {
	r := g.raster
	w := r.Cols + 1
	g.sat = make([]int32, (r.Rows+1)*w)
	for row := 0; row < r.Rows; row++ {
		var acc int32
		for col := 0; col < r.Cols; col++ {
			if g.mask[row*r.Cols+col] {
				acc++
			}
			g.sat[(row+1)*w+col+1] = g.sat[row*w+col+1] + acc
		}
	}
}
