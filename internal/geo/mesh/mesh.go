// Package mesh holds the unstructured triangular mesh produced by the driver and the
// per-node values interpolated onto it.
package mesh

import (
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/raster"
)

// Mesh is a set of nodes and counter-clockwise triangles indexing them.
// Values holds one entry per node; NaN marks a node without a value.
type Mesh struct {
	Nodes     []orb.Point
	Triangles [][3]int
	Values    []float64

	CRS raster.CRS
}

// New wraps nodes and triangles; every node starts without a value.
func New(nodes []orb.Point, tris [][3]int, crs raster.CRS) *Mesh {
	vals := make([]float64, len(nodes))
	for i := range vals {
		vals[i] = math.NaN()
	}
	return &Mesh{
		Nodes:     nodes,
		Triangles: tris,
		Values:    vals,
		CRS:       crs,
	}
}

// Validate checks indices, orientation and that no node is orphaned.
func (m *Mesh) Validate() error {
	if len(m.Triangles) == 0 {
		return domain.Degenerate("mesh.validate", "mesh has no elements")
	}
	if len(m.Values) != len(m.Nodes) {
		return fmt.Errorf("mesh: %d values for %d nodes", len(m.Values), len(m.Nodes))
	}

	used := make([]bool, len(m.Nodes))
	for i, t := range m.Triangles {
		for _, v := range t {
			if v < 0 || v >= len(m.Nodes) {
				return fmt.Errorf("mesh: element %d references node %d of %d", i, v, len(m.Nodes))
			}
			used[v] = true
		}
		if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
			return fmt.Errorf("mesh: element %d repeats a node", i)
		}
		if m.SignedArea(i) <= 0 {
			return fmt.Errorf("mesh: element %d is not counter-clockwise", i)
		}
	}
	for i, ok := range used {
		if !ok {
			return fmt.Errorf("mesh: node %d belongs to no element", i)
		}
	}
	return nil
}

// SignedArea is positive for counter-clockwise elements.
func (m *Mesh) SignedArea(i int) float64 {
	t := m.Triangles[i]
	return signedArea(m.Nodes[t[0]], m.Nodes[t[1]], m.Nodes[t[2]])
}

func signedArea(a, b, c orb.Point) float64 {
	return ((b[0]-a[0])*(c[1]-a[1]) - (c[0]-a[0])*(b[1]-a[1])) / 2
}

// Bound is the extent of the nodes.
func (m *Mesh) Bound() orb.Bound {
	return orb.MultiPoint(m.Nodes).Bound()
}

// Interpolate samples each raster in turn onto the nodes; the first raster covering
// a node wins. Nodes outside every raster keep their current value. It returns how
// many nodes received a value.
func (m *Mesh) Interpolate(rasters ...*raster.Raster) int {
	n := 0
	for i, p := range m.Nodes {
		for _, r := range rasters {
			if r == nil {
				continue
			}
			if v, ok := r.Sample(p[0], p[1]); ok {
				m.Values[i] = v
				n++
				break
			}
		}
	}
	return n
}

// Edges returns each undirected edge once, as (lo, hi) node pairs in first-seen order.
func (m *Mesh) Edges() [][2]int {
	seen := make(map[[2]int]struct{}, len(m.Triangles)*3/2)
	var out [][2]int
	for _, t := range m.Triangles {
		for k := 0; k < 3; k++ {
			e := edgeKey(t[k], t[(k+1)%3])
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// BoundaryEdges are the directed edges used by exactly one element, so the domain
// lies on their left.
func (m *Mesh) BoundaryEdges() [][2]int {
	count := make(map[[2]int]int, len(m.Triangles)*3/2)
	for _, t := range m.Triangles {
		for k := 0; k < 3; k++ {
			count[edgeKey(t[k], t[(k+1)%3])]++
		}
	}
	var out [][2]int
	for _, t := range m.Triangles {
		for k := 0; k < 3; k++ {
			a, b := t[k], t[(k+1)%3]
			if count[edgeKey(a, b)] == 1 {
				out = append(out, [2]int{a, b})
			}
		}
	}
	return out
}

func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// Stats summarises node values and edge lengths. Edge lengths use metric when the
// coordinates are geographic.
func (m *Mesh) Stats(metric raster.Metric) domain.MeshStats {
	s := domain.MeshStats{
		Nodes:    len(m.Nodes),
		Elements: len(m.Triangles),
	}

	valued := make([]float64, 0, len(m.Values))
	for _, v := range m.Values {
		if math.IsNaN(v) {
			s.Unvalued++
			continue
		}
		valued = append(valued, v)
	}
	if len(valued) > 0 {
		s.MinValue = slices.Min(valued)
		s.MaxValue = slices.Max(valued)
	}

	edges := m.Edges()
	if len(edges) > 0 {
		var sum float64
		for _, e := range edges {
			sum += metric.Dist(m.Nodes[e[0]], m.Nodes[e[1]])
		}
		s.MeanEdge = sum / float64(len(edges))
	}
	return s
}
