package jigsaw

import (
	"context"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// quad is a square in metric space, stored in raster coordinates.
type quad struct {
	x0, y0 float64
	sx, sy float64
}

func (q quad) bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{q.x0, q.y0},
		Max: orb.Point{q.x0 + q.sx, q.y0 + q.sy},
	}
}

func (q quad) center() orb.Point {
	return orb.Point{q.x0 + q.sx/2, q.y0 + q.sy/2}
}

// seed subdivides the domain bound until each quad is no larger than the target size
// sampled at its centre and corners, then keeps the centres that fall in the domain.
func (d *Driver) seed(ctx context.Context) ([]orb.Point, error) {
	b := d.geom.Bound()
	side := math.Max((b.Right()-b.Left())*d.metric.MX, (b.Top()-b.Bottom())*d.metric.MY)
	stack := []quad{{
		x0: b.Left(),
		y0: b.Bottom(),
		sx: side / d.metric.MX,
		sy: side / d.metric.MY,
	}}

	var out []orb.Point
	for n := 0; len(stack) > 0; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		q := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		bb := q.bound()
		if !d.geom.AnyWet(bb) {
			continue
		}
		c := q.center()
		target := minSize(d.hfun, c, bb.Min, bb.Max, bb.LeftTop(), bb.RightBottom())
		if q.sx*d.metric.MX > target {
			hx, hy := q.sx/2, q.sy/2
			// Reverse order so children pop south-west first.
			stack = append(stack,
				quad{q.x0 + hx, q.y0 + hy, hx, hy},
				quad{q.x0, q.y0 + hy, hx, hy},
				quad{q.x0 + hx, q.y0, hx, hy},
				quad{q.x0, q.y0, hx, hy},
			)
			continue
		}
		if d.geom.Contains(c) {
			out = append(out, c)
			if len(out) > d.opts.MaxNodes {
				return nil, errTooMany(d.opts.MaxNodes)
			}
		}
	}
	return out, nil
}

// resampleBoundary walks every ring and inserts points at the local target size.
// Ring vertices are always kept.
func (d *Driver) resampleBoundary() []orb.Point {
	var out []orb.Point
	for _, poly := range d.geom.MultiPolygon() {
		for _, ring := range poly {
			for i := 0; i+1 < len(ring); i++ {
				a, b := ring[i], ring[i+1]
				mid := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
				h := minSize(d.hfun, a, b, mid)
				n := max(1, int(math.Ceil(d.metric.Dist(a, b)/h)))
				for k := 0; k < n; k++ {
					t := float64(k) / float64(n)
					out = append(out, orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])})
				}
			}
		}
	}
	return out
}

// dropNearBoundary removes seeds closer than half the local size to the outline.
func (d *Driver) dropNearBoundary(boundary, seeds []orb.Point) []orb.Point {
	if len(boundary) == 0 || len(seeds) == 0 {
		return seeds
	}
	pts := make(kdtree.Points, len(boundary))
	for i, p := range boundary {
		pts[i] = d.metricPoint(p)
	}
	tree := kdtree.New(pts, false)

	out := seeds[:0]
	for _, p := range seeds {
		_, d2 := tree.Nearest(d.metricPoint(p))
		if math.Sqrt(d2) < 0.5*d.hfun.At(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (d *Driver) metricPoint(p orb.Point) kdtree.Point {
	return kdtree.Point{p[0] * d.metric.MX, p[1] * d.metric.MY}
}
