package jigsaw

import (
	"github.com/paulmach/orb"

	"github.com/aalvaropc/bathymesh/internal/geo/geom"
	"github.com/aalvaropc/bathymesh/internal/geo/mesh"
)

// smooth moves each free node to the average of its neighbours, in index order.
// A move is rejected when it leaves the domain, inverts an incident element or
// pushes an element's centroid onto a dry cell.
// Nodes on the mesh boundary or the resampled outline never move.
func smooth(m *mesh.Mesh, fixed []bool, g *geom.Geom, iterations int) {
	n := len(m.Nodes)
	pinned := make([]bool, n)
	copy(pinned, fixed)
	for _, e := range m.BoundaryEdges() {
		pinned[e[0]] = true
		pinned[e[1]] = true
	}

	neighbours := make([][]int, n)
	for _, e := range m.Edges() {
		neighbours[e[0]] = append(neighbours[e[0]], e[1])
		neighbours[e[1]] = append(neighbours[e[1]], e[0])
	}
	incident := make([][]int, n)
	for i, t := range m.Triangles {
		for _, v := range t {
			incident[v] = append(incident[v], i)
		}
	}

	for it := 0; it < iterations; it++ {
		for i := 0; i < n; i++ {
			if pinned[i] || len(neighbours[i]) == 0 {
				continue
			}
			var p orb.Point
			for _, j := range neighbours[i] {
				p[0] += m.Nodes[j][0]
				p[1] += m.Nodes[j][1]
			}
			k := float64(len(neighbours[i]))
			p[0] /= k
			p[1] /= k
			if !g.Contains(p) {
				continue
			}

			old := m.Nodes[i]
			m.Nodes[i] = p
			for _, ti := range incident[i] {
				if m.SignedArea(ti) <= 0 || !g.Contains(centroid(m, ti)) {
					m.Nodes[i] = old
					break
				}
			}
		}
	}
}

func centroid(m *mesh.Mesh, i int) orb.Point {
	t := m.Triangles[i]
	a, b, c := m.Nodes[t[0]], m.Nodes[t[1]], m.Nodes[t[2]]
	return orb.Point{(a[0] + b[0] + c[0]) / 3, (a[1] + b[1] + c[1]) / 3}
}
