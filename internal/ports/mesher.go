package ports

import (
	"context"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/geom"
	"github.com/aalvaropc/bathymesh/internal/geo/hfun"
	"github.com/aalvaropc/bathymesh/internal/geo/mesh"
)

// Mesher generates a mesh over a domain following a size function.
type Mesher interface {
	Mesh(ctx context.Context, g *geom.Geom, h *hfun.Hfun, spec domain.DriverSpec) (*mesh.Mesh, error)
}

// MeshWriter serialises a mesh and returns the path actually written.
type MeshWriter interface {
	WriteMesh(m *mesh.Mesh, out domain.OutputSpec) (string, error)
}

// GeomWriter exports the domain outline.
type GeomWriter interface {
	WriteGeom(g *geom.Geom, path string, overwrite bool) error
}
