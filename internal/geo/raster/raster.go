// Package raster holds the in-memory, georeferenced elevation grid shared by every
// pipeline stage. A Raster is immutable once built; consumers only read it.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// CRS carries the pass-through coordinate reference of a raster.
type CRS struct {
	EPSG       int
	Geographic bool
}

// Raster is a north-up grid. Row 0 is the northern edge; Values are row-major.
type Raster struct {
	Path string

	Cols, Rows int
	X0, Y0     float64 // upper-left corner of the upper-left cell
	DX, DY     float64 // cell size, both positive

	Values    []float64
	NoData    float64
	HasNoData bool

	CRS CRS
}

// New validates the grid geometry and wraps values without copying them.
func New(cols, rows int, x0, y0, dx, dy float64, values []float64) (*Raster, error) {
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("raster: invalid size %dx%d", cols, rows)
	}
	if !(dx > 0) || !(dy > 0) {
		return nil, fmt.Errorf("raster: invalid cell size %gx%g", dx, dy)
	}
	if len(values) != cols*rows {
		return nil, fmt.Errorf("raster: expected %d values, got %d", cols*rows, len(values))
	}
	return &Raster{
		Cols:   cols,
		Rows:   rows,
		X0:     x0,
		Y0:     y0,
		DX:     dx,
		DY:     dy,
		Values: values,
	}, nil
}

// Bounds is the outer extent of the grid cells.
func (r *Raster) Bounds() orb.Bound {
	return orb.Bound{
		Min: orb.Point{r.X0, r.Y0 - float64(r.Rows)*r.DY},
		Max: orb.Point{r.X0 + float64(r.Cols)*r.DX, r.Y0},
	}
}

// Center returns the coordinates of a cell centre.
func (r *Raster) Center(row, col int) orb.Point {
	return orb.Point{
		r.X0 + (float64(col)+0.5)*r.DX,
		r.Y0 - (float64(row)+0.5)*r.DY,
	}
}

// At returns the cell value and whether it holds data.
func (r *Raster) At(row, col int) (float64, bool) {
	if row < 0 || row >= r.Rows || col < 0 || col >= r.Cols {
		return math.NaN(), false
	}
	v := r.Values[row*r.Cols+col]
	return v, r.valid(v)
}

func (r *Raster) valid(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if r.HasNoData && v == r.NoData {
		return false
	}
	return true
}

// Locate returns the cell containing (x, y).
func (r *Raster) Locate(x, y float64) (row, col int, ok bool) {
	fc := (x - r.X0) / r.DX
	fr := (r.Y0 - y) / r.DY
	if fc < 0 || fr < 0 || fc > float64(r.Cols) || fr > float64(r.Rows) {
		return 0, 0, false
	}
	col = min(int(fc), r.Cols-1)
	row = min(int(fr), r.Rows-1)
	return row, col, true
}

// Sample interpolates bilinearly between the four surrounding cell centres.
// Outside the centre lattice the nearest edge values are used. Neighbours without
// data are skipped and the remaining weights renormalised; with all four present the
// lerp form is used so a constant field samples to exactly its value.
func (r *Raster) Sample(x, y float64) (float64, bool) {
	if _, _, ok := r.Locate(x, y); !ok {
		return math.NaN(), false
	}

	fc := (x-r.X0)/r.DX - 0.5
	fr := (r.Y0-y)/r.DY - 0.5
	fc = clamp(fc, 0, float64(r.Cols-1))
	fr = clamp(fr, 0, float64(r.Rows-1))

	c0, r0 := int(math.Floor(fc)), int(math.Floor(fr))
	c1, r1 := min(c0+1, r.Cols-1), min(r0+1, r.Rows-1)
	tx, ty := fc-float64(c0), fr-float64(r0)

	v00, ok00 := r.At(r0, c0)
	v01, ok01 := r.At(r0, c1)
	v10, ok10 := r.At(r1, c0)
	v11, ok11 := r.At(r1, c1)
	if ok00 && ok01 && ok10 && ok11 {
		top := v00 + tx*(v01-v00)
		bottom := v10 + tx*(v11-v10)
		return top + ty*(bottom-top), true
	}

	var sum, wsum float64
	add := func(v float64, ok bool, w float64) {
		if ok && w != 0 {
			sum += v * w
			wsum += w
		}
	}
	add(v00, ok00, (1-tx)*(1-ty))
	add(v01, ok01, tx*(1-ty))
	add(v10, ok10, (1-tx)*ty)
	add(v11, ok11, tx*ty)

	if wsum == 0 {
		return math.NaN(), false
	}
	return sum / wsum, true
}

// Count returns how many valid cells satisfy keep.
func (r *Raster) Count(keep func(z float64) bool) int {
	n := 0
	for _, v := range r.Values {
		if r.valid(v) && keep(v) {
			n++
		}
	}
	return n
}

// Range returns the min and max of valid cells and how many there are.
func (r *Raster) Range() (lo, hi float64, n int) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range r.Values {
		if !r.valid(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		n++
	}
	return lo, hi, n
}

// SameGrid reports whether two rasters share size and georeferencing.
func (r *Raster) SameGrid(o *Raster) bool {
	if r == nil || o == nil {
		return false
	}
	const eps = 1e-9
	return r.Cols == o.Cols && r.Rows == o.Rows &&
		math.Abs(r.X0-o.X0) < eps && math.Abs(r.Y0-o.Y0) < eps &&
		math.Abs(r.DX-o.DX) < eps && math.Abs(r.DY-o.DY) < eps
}

// ErrEmpty is returned when a raster carries no valid cell at all.
var ErrEmpty = errors.New("raster has no valid cells")

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
