// Package jigsaw generates a triangular mesh over a Geom domain, with element sizes
// following an Hfun.
//
// Points are seeded by a size-driven quadtree, the domain outline is resampled at the
// local target size, and the union is Delaunay-triangulated in metric space. Elements
// outside the domain are discarded and interior nodes are optionally smoothed.
// Output is deterministic for identical inputs.
package jigsaw

import (
	"context"
	"log/slog"
	"math"

	"github.com/fogleman/delaunay"
	"github.com/paulmach/orb"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/geom"
	"github.com/aalvaropc/bathymesh/internal/geo/hfun"
	"github.com/aalvaropc/bathymesh/internal/geo/mesh"
	"github.com/aalvaropc/bathymesh/internal/geo/raster"
)

// DefaultMaxNodes caps the node count before triangulation.
const DefaultMaxNodes = 5_000_000

type Options struct {
	SmoothIterations int
	MaxNodes         int
}

// Driver composes a domain and a size function.
type Driver struct {
	geom   *geom.Geom
	hfun   *hfun.Hfun
	metric raster.Metric
	opts   Options
	log    *slog.Logger
}

func New(g *geom.Geom, h *hfun.Hfun, opts Options) *Driver {
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = DefaultMaxNodes
	}
	if opts.SmoothIterations < 0 {
		opts.SmoothIterations = 0
	}
	return &Driver{
		geom:   g,
		hfun:   h,
		metric: g.Raster().Metric(),
		opts:   opts,
		log:    slog.Default(),
	}
}

// WithLogger replaces the default logger.
func (d *Driver) WithLogger(l *slog.Logger) *Driver {
	if l != nil {
		d.log = l
	}
	return d
}

// Run builds the mesh. It honours ctx between phases and while seeding.
func (d *Driver) Run(ctx context.Context) (*mesh.Mesh, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	boundary := d.resampleBoundary()
	seeds, err := d.seed(ctx)
	if err != nil {
		return nil, err
	}
	seeds = d.dropNearBoundary(boundary, seeds)

	nodes, fixed := dedupe(boundary, seeds)
	if len(nodes) > d.opts.MaxNodes {
		return nil, errTooMany(d.opts.MaxNodes)
	}
	if len(nodes) < 3 {
		return nil, domain.Degenerate("jigsaw.run", "only %d nodes in the domain", len(nodes))
	}
	d.log.Debug("jigsaw.nodes", "boundary", len(boundary), "seeds", len(seeds), "nodes", len(nodes))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tris, err := d.triangulate(nodes)
	if err != nil {
		return nil, err
	}
	tris = d.keepInside(nodes, tris)
	if len(tris) == 0 {
		return nil, domain.Degenerate("jigsaw.run", "no element lies inside the domain")
	}

	m := compact(nodes, fixed, tris, d.geom.Raster().CRS)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.opts.SmoothIterations > 0 {
		smooth(m.mesh, m.fixed, d.geom, d.opts.SmoothIterations)
	}
	d.log.Debug("jigsaw.mesh", "nodes", len(m.mesh.Nodes), "elements", len(m.mesh.Triangles))
	return m.mesh, nil
}

func errTooMany(limit int) error {
	return domain.Degenerate("jigsaw.run", "size function needs more than %d nodes", limit)
}

func (d *Driver) triangulate(nodes []orb.Point) ([][3]int, error) {
	pts := make([]delaunay.Point, len(nodes))
	for i, p := range nodes {
		pts[i] = delaunay.Point{X: p[0] * d.metric.MX, Y: p[1] * d.metric.MY}
	}
	tr, err := delaunay.Triangulate(pts)
	if err != nil {
		return nil, domain.Degenerate("jigsaw.triangulate", "%v", err)
	}

	tris := make([][3]int, 0, len(tr.Triangles)/3)
	for i := 0; i+2 < len(tr.Triangles); i += 3 {
		t := [3]int{tr.Triangles[i], tr.Triangles[i+1], tr.Triangles[i+2]}
		a := signedArea(nodes[t[0]], nodes[t[1]], nodes[t[2]])
		switch {
		case a == 0:
			continue
		case a < 0:
			t[1], t[2] = t[2], t[1]
		}
		tris = append(tris, t)
	}
	return tris, nil
}

// keepInside drops elements whose centroid, or a point just inside any edge, is dry.
func (d *Driver) keepInside(nodes []orb.Point, tris [][3]int) [][3]int {
	out := tris[:0]
	for _, t := range tris {
		a, b, c := nodes[t[0]], nodes[t[1]], nodes[t[2]]
		ctr := orb.Point{(a[0] + b[0] + c[0]) / 3, (a[1] + b[1] + c[1]) / 3}
		if !d.geom.Contains(ctr) {
			continue
		}
		if !d.geom.Contains(nudge(a, b, ctr)) || !d.geom.Contains(nudge(b, c, ctr)) || !d.geom.Contains(nudge(c, a, ctr)) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// nudge is the midpoint of a-b moved slightly towards the centroid.
func nudge(a, b, ctr orb.Point) orb.Point {
	const f = 0.01
	mx, my := (a[0]+b[0])/2, (a[1]+b[1])/2
	return orb.Point{mx + f*(ctr[0]-mx), my + f*(ctr[1]-my)}
}

func signedArea(a, b, c orb.Point) float64 {
	return ((b[0]-a[0])*(c[1]-a[1]) - (c[0]-a[0])*(b[1]-a[1])) / 2
}

// dedupe merges identical points. Boundary points come first and are marked fixed.
func dedupe(boundary, seeds []orb.Point) ([]orb.Point, []bool) {
	idx := make(map[orb.Point]struct{}, len(boundary)+len(seeds))
	nodes := make([]orb.Point, 0, len(boundary)+len(seeds))
	fixed := make([]bool, 0, cap(nodes))
	add := func(p orb.Point, f bool) {
		if _, ok := idx[p]; ok {
			return
		}
		idx[p] = struct{}{}
		nodes = append(nodes, p)
		fixed = append(fixed, f)
	}
	for _, p := range boundary {
		add(p, true)
	}
	for _, p := range seeds {
		add(p, false)
	}
	return nodes, fixed
}

type compacted struct {
	mesh  *mesh.Mesh
	fixed []bool
}

// compact drops nodes no element references and renumbers the rest in order.
func compact(nodes []orb.Point, fixed []bool, tris [][3]int, crs raster.CRS) compacted {
	remap := make([]int, len(nodes))
	for i := range remap {
		remap[i] = -1
	}
	for _, t := range tris {
		for _, v := range t {
			remap[v] = 0
		}
	}

	var kept []orb.Point
	var keptFixed []bool
	for i, r := range remap {
		if r < 0 {
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, nodes[i])
		keptFixed = append(keptFixed, fixed[i])
	}

	out := make([][3]int, len(tris))
	for i, t := range tris {
		out[i] = [3]int{remap[t[0]], remap[t[1]], remap[t[2]]}
	}
	return compacted{mesh: mesh.New(kept, out, crs), fixed: keptFixed}
}

func minSize(h *hfun.Hfun, pts ...orb.Point) float64 {
	s := math.Inf(1)
	for _, p := range pts {
		s = math.Min(s, h.At(p))
	}
	return s
}

// Backend runs the driver for a pipeline.
type Backend struct {
	MaxNodes int
	Logger   *slog.Logger
}

func (b Backend) Mesh(ctx context.Context, g *geom.Geom, h *hfun.Hfun, spec domain.DriverSpec) (*mesh.Mesh, error) {
	d := New(g, h, Options{
		SmoothIterations: spec.SmoothIterations,
		MaxNodes:         b.MaxNodes,
	})
	return d.WithLogger(b.Logger).Run(ctx)
}
