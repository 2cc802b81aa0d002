package meshio

import (
	"io"

	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/aalvaropc/bathymesh/internal/geo/geom"
	"github.com/aalvaropc/bathymesh/internal/ports"
)

// GeoJSONWriter exports a domain outline as a FeatureCollection, one feature per polygon.
type GeoJSONWriter struct{}

var _ ports.GeomWriter = GeoJSONWriter{}

func (GeoJSONWriter) WriteGeom(g *geom.Geom, path string, overwrite bool) error {
	fc := geojson.NewFeatureCollection()
	for i, poly := range g.MultiPolygon() {
		f := geojson.NewFeature(poly)
		f.Properties["index"] = i
		f.Properties["holes"] = len(poly) - 1
		f.Properties["area"] = planar.Area(poly)
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{"zmax": g.ZMax()}

	b, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return atomicWrite(path, overwrite, func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	})
}
