// Package rasterio reads elevation rasters from disk: GeoTIFF and ESRI ASCII grids,
// optionally gzip-compressed.
package rasterio

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/blake3"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/raster"
	"github.com/aalvaropc/bathymesh/internal/ports"
)

type Loader struct{}

func NewLoader() *Loader { return &Loader{} }

var (
	_ ports.RasterLoader       = (*Loader)(nil)
	_ ports.InputFingerprinter = (*Loader)(nil)
)

// LoadRaster picks the decoder from the file extension, looking through a .gz suffix.
func (l *Loader) LoadRaster(path string) (*raster.Raster, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		kind := domain.KindExecution
		if errors.Is(err, fs.ErrNotExist) {
			kind = domain.KindNotFound
		}
		return nil, &domain.OpError{Op: "rasterio.load", Kind: kind, Path: path, Err: err}
	}

	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".gz") {
		name = strings.TrimSuffix(name, ".gz")
		b, err = gunzip(b)
		if err != nil {
			return nil, &domain.OpError{Op: "rasterio.gunzip", Kind: domain.KindInvalidConfig, Path: path, Err: err}
		}
	}

	var r *raster.Raster
	switch filepath.Ext(name) {
	case ".tif", ".tiff":
		r, err = decodeGeoTIFF(b)
	case ".asc":
		r, err = decodeASCII(bytes.NewReader(b))
	default:
		err = fmt.Errorf("unsupported raster extension %q", filepath.Ext(name))
	}
	if err != nil {
		return nil, &domain.OpError{Op: "rasterio.decode", Kind: domain.KindInvalidConfig, Path: path, Err: err}
	}

	if r.CRS == (raster.CRS{}) {
		r.CRS.Geographic = prjGeographic(path)
	}
	if _, _, n := r.Range(); n == 0 {
		return nil, &domain.OpError{Op: "rasterio.load", Kind: domain.KindDegenerate, Path: path, Err: raster.ErrEmpty}
	}
	r.Path = path
	return r, nil
}

// Fingerprint hashes the raw file bytes with BLAKE3.
func (l *Loader) Fingerprint(path string) (domain.InputFingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.InputFingerprint{}, &domain.OpError{Op: "rasterio.fingerprint", Kind: domain.KindNotFound, Path: path, Err: err}
	}
	defer f.Close()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return domain.InputFingerprint{}, &domain.OpError{Op: "rasterio.fingerprint", Kind: domain.KindExecution, Path: path, Err: err}
	}
	return domain.InputFingerprint{
		Path:   path,
		Size:   n,
		BLAKE3: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// prjGeographic reports whether a .prj sidecar next to path holds a geographic WKT.
// Rasters without a sidecar or a declared CRS are read as projected metres.
func prjGeographic(path string) bool {
	base := strings.TrimSuffix(path, ".gz")
	base = strings.TrimSuffix(base, filepath.Ext(base))

	for _, ext := range []string{".prj", ".PRJ"} {
		b, err := os.ReadFile(base + ext)
		if err != nil {
			continue
		}
		wkt := strings.ToUpper(strings.TrimSpace(string(b)))
		return strings.HasPrefix(wkt, "GEOGCS[") || strings.HasPrefix(wkt, "GEOGCRS[")
	}
	return false
}

func gunzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
