package geom

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/aalvaropc/bathymesh/internal/geo/raster"
)

// Boundary edges run between lattice corners with the wet cell on their left.
// Corner (i, j) is column line i and row line j; y decreases as j grows.
type edge struct {
	from, to int
	used     bool
}

type lattice struct {
	w     int // corners per row line
	edges []edge
	out   map[int][]int
}

func (l *lattice) add(fi, fj, ti, tj int) {
	from, to := fj*l.w+fi, tj*l.w+ti
	l.out[from] = append(l.out[from], len(l.edges))
	l.edges = append(l.edges, edge{from: from, to: to})
}

func trace(r *raster.Raster, mask []bool) orb.MultiPolygon {
	l := &lattice{w: r.Cols + 1, out: map[int][]int{}}
	wet := func(row, col int) bool {
		if row < 0 || row >= r.Rows || col < 0 || col >= r.Cols {
			return false
		}
		return mask[row*r.Cols+col]
	}

	for row := 0; row < r.Rows; row++ {
		for col := 0; col < r.Cols; col++ {
			if !wet(row, col) {
				continue
			}
			// counter-clockwise in map space: BL -> BR -> TR -> TL
			if !wet(row+1, col) {
				l.add(col, row+1, col+1, row+1)
			}
			if !wet(row, col+1) {
				l.add(col+1, row+1, col+1, row)
			}
			if !wet(row-1, col) {
				l.add(col+1, row, col, row)
			}
			if !wet(row, col-1) {
				l.add(col, row, col, row+1)
			}
		}
	}

	corner := func(v int) orb.Point {
		i, j := v%l.w, v/l.w
		return orb.Point{r.X0 + float64(i)*r.DX, r.Y0 - float64(j)*r.DY}
	}

	var outers, holes []orb.Ring
	for start := range l.edges {
		if l.edges[start].used {
			continue
		}
		ring := l.walk(start, corner)
		if len(ring) < 4 {
			continue
		}
		if ring.Orientation() == orb.CCW {
			outers = append(outers, ring)
		} else {
			holes = append(holes, ring)
		}
	}

	polys := make(orb.MultiPolygon, len(outers))
	for i, o := range outers {
		polys[i] = orb.Polygon{o}
	}

	// Smallest enclosing outer ring owns the hole.
	order := make([]int, len(outers))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return planar.Area(outers[order[a]]) < planar.Area(outers[order[b]])
	})
	for _, h := range holes {
		pt := insideHole(h, r)
		for _, i := range order {
			if planar.RingContains(outers[i], pt) {
				polys[i] = append(polys[i], h)
				break
			}
		}
	}
	return polys
}

// walk follows unused edges from start until the ring closes. At corners shared by
// two diagonal wet cells the leftmost turn is taken, which keeps diagonal cells in
// separate rings.
func (l *lattice) walk(start int, corner func(int) orb.Point) orb.Ring {
	var pts []int
	cur := start
	for {
		e := &l.edges[cur]
		e.used = true
		pts = append(pts, e.from)

		next := -1
		bestTurn := 3
		for _, cand := range l.out[e.to] {
			c := l.edges[cand]
			if c.used && cand != start {
				continue
			}
			t := turn(l.w, e.from, e.to, c.to)
			if t < bestTurn {
				bestTurn, next = t, cand
			}
		}
		if next == -1 || next == start {
			break
		}
		cur = next
	}

	ring := make(orb.Ring, 0, len(pts)+1)
	for i, v := range pts {
		prev := pts[(i+len(pts)-1)%len(pts)]
		nxt := pts[(i+1)%len(pts)]
		if collinear(l.w, prev, v, nxt) {
			continue
		}
		ring = append(ring, corner(v))
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return ring
}

// turn ranks the direction change a->b->c: 0 left, 1 straight, 2 right.
// Lattice j grows southwards, so the cross product sign is flipped.
func turn(w, a, b, c int) int {
	ax, ay := a%w, a/w
	bx, by := b%w, b/w
	cx, cy := c%w, c/w
	cross := (bx-ax)*(cy-by) - (by-ay)*(cx-bx)
	switch {
	case cross < 0:
		return 0
	case cross == 0:
		return 1
	default:
		return 2
	}
}

func collinear(w, a, b, c int) bool {
	return turn(w, a, b, c) == 1
}

// insideHole returns a point just to the right of the hole's first edge, which lies
// in the dry cell the hole encloses.
func insideHole(h orb.Ring, r *raster.Raster) orb.Point {
	a, b := h[0], h[1]
	dx, dy := b[0]-a[0], b[1]-a[1]
	n := orb.Point{dy, -dx}
	scale := 0.25 * min(r.DX, r.DY) / max(abs(n[0]), abs(n[1]))
	mid := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
	return orb.Point{mid[0] + n[0]*scale, mid[1] + n[1]*scale}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
