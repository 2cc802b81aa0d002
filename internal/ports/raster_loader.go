package ports

import (
	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/raster"
)

// RasterLoader reads an elevation grid from disk.
type RasterLoader interface {
	LoadRaster(path string) (*raster.Raster, error)
}

// InputFingerprinter identifies an input file by content.
type InputFingerprinter interface {
	Fingerprint(path string) (domain.InputFingerprint, error)
}
