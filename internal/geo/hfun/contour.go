package hfun

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/aalvaropc/bathymesh/internal/domain"
)

// AddContour refines around the iso-line z = level. A cell at metric distance d from
// the line gets target + rate*target*d, combined by minimum.
func (h *Hfun) AddContour(level, rate, target float64) error {
	if !(target > 0) {
		return domain.Degenerate("hfun.contour", "target size must be positive, got %g", target)
	}
	if rate < 0 || math.IsNaN(rate) {
		return domain.Degenerate("hfun.contour", "expansion rate must be non-negative, got %g", rate)
	}

	pts := h.contourPoints(level)
	if len(pts) == 0 {
		return nil
	}
	tree := kdtree.New(pts, false)

	r := h.raster
	for row := 0; row < r.Rows; row++ {
		for col := 0; col < r.Cols; col++ {
			c := r.Center(row, col)
			q := kdtree.Point{c[0] * h.metric.MX, c[1] * h.metric.MY}
			_, d2 := tree.Nearest(q)
			d := math.Sqrt(d2)
			h.combineMin(row*r.Cols+col, target+rate*target*d)
		}
	}
	return nil
}

// contourPoints returns cells lying exactly on z = level plus the crossings between
// neighbouring cell centres, in metric coordinates.
func (h *Hfun) contourPoints(level float64) kdtree.Points {
	r := h.raster
	var pts kdtree.Points
	push := func(x, y float64) {
		pts = append(pts, kdtree.Point{x * h.metric.MX, y * h.metric.MY})
	}
	cross := func(r0, c0, r1, c1 int) {
		za, oka := r.At(r0, c0)
		zb, okb := r.At(r1, c1)
		if !oka || !okb {
			return
		}
		da, db := za-level, zb-level
		if da*db >= 0 {
			return
		}
		t := da / (da - db)
		a, b := r.Center(r0, c0), r.Center(r1, c1)
		push(a[0]+t*(b[0]-a[0]), a[1]+t*(b[1]-a[1]))
	}

	for row := 0; row < r.Rows; row++ {
		for col := 0; col < r.Cols; col++ {
			if z, ok := r.At(row, col); ok && z == level {
				c := r.Center(row, col)
				push(c[0], c[1])
			}
			cross(row, col, row, col+1)
			cross(row, col, row+1, col)
		}
	}
	return pts
}
