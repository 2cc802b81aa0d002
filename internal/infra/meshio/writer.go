// Package meshio serialises meshes (SMS 2dm, ADCIRC grd) and domain outlines (GeoJSON).
package meshio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/mesh"
	"github.com/aalvaropc/bathymesh/internal/ports"
)

// NoValue is written for nodes that no raster covered.
const NoValue = -99999

type Writer struct {
	title string
}

type Option func(*Writer)

// WithTitle sets the grd header line.
func WithTitle(title string) Option {
	return func(w *Writer) { w.title = title }
}

func NewWriter(opts ...Option) *Writer {
	w := &Writer{title: "bathymesh"}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var _ ports.MeshWriter = (*Writer)(nil)

// ResolvePath appends the format extension when the path has none.
func ResolvePath(out domain.OutputSpec) string {
	return out.ResolvedPath()
}

// WriteMesh writes m and returns the resolved path.
func (w *Writer) WriteMesh(m *mesh.Mesh, out domain.OutputSpec) (string, error) {
	if strings.TrimSpace(out.Path) == "" {
		return "", &domain.OpError{Op: "meshio.write", Kind: domain.KindInvalidConfig, Err: errors.New("output path is empty")}
	}
	format := out.Format
	if format == "" {
		format = domain.Format2DM
	}

	var encode func(io.Writer, *mesh.Mesh) error
	switch format {
	case domain.Format2DM:
		encode = write2DM
	case domain.FormatGRD:
		encode = func(bw io.Writer, m *mesh.Mesh) error { return writeGRD(bw, m, w.title) }
	default:
		return "", &domain.OpError{
			Op:   "meshio.write",
			Kind: domain.KindInvalidConfig,
			Path: out.Path,
			Err:  fmt.Errorf("unknown mesh format %q", format),
		}
	}

	path := ResolvePath(out)
	if err := atomicWrite(path, out.Overwrite, func(f io.Writer) error { return encode(f, m) }); err != nil {
		return "", err
	}
	return path, nil
}

// atomicWrite refuses an existing path unless overwrite is set, then writes through a
// temp file in the same directory and renames it into place.
func atomicWrite(path string, overwrite bool, fill func(io.Writer) error) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return &domain.OpError{Op: "meshio.write", Kind: domain.KindAlreadyExists, Path: path, Err: domain.ErrAlreadyExists}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return &domain.OpError{Op: "meshio.stat", Kind: domain.KindExecution, Path: path, Err: err}
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &domain.OpError{Op: "meshio.mkdir", Kind: domain.KindExecution, Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &domain.OpError{Op: "meshio.write", Kind: domain.KindExecution, Path: path, Err: err}
	}
	bw := bufio.NewWriter(tmp)
	err = fill(bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return &domain.OpError{Op: "meshio.write", Kind: domain.KindExecution, Path: path, Err: err}
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return &domain.OpError{Op: "meshio.rename", Kind: domain.KindExecution, Path: path, Err: err}
	}
	return nil
}

func write2DM(w io.Writer, m *mesh.Mesh) error {
	if _, err := io.WriteString(w, "MESH2D\n"); err != nil {
		return err
	}
	for i, t := range m.Triangles {
		if _, err := fmt.Fprintf(w, "E3T %d %d %d %d 1\n", i+1, t[0]+1, t[1]+1, t[2]+1); err != nil {
			return err
		}
	}
	for i, p := range m.Nodes {
		if _, err := fmt.Fprintf(w, "ND %d %s %s %s\n", i+1, num(p[0]), num(p[1]), num(value(m, i))); err != nil {
			return err
		}
	}
	return nil
}

// writeGRD writes ADCIRC fort.14 with depth positive down.
func writeGRD(w io.Writer, m *mesh.Mesh, title string) error {
	if _, err := fmt.Fprintf(w, "%s\n%d %d\n", title, len(m.Triangles), len(m.Nodes)); err != nil {
		return err
	}
	for i, p := range m.Nodes {
		depth := value(m, i)
		if depth != NoValue {
			depth = -depth
		}
		if _, err := fmt.Fprintf(w, "%d %s %s %s\n", i+1, num(p[0]), num(p[1]), num(depth)); err != nil {
			return err
		}
	}
	for i, t := range m.Triangles {
		if _, err := fmt.Fprintf(w, "%d 3 %d %d %d\n", i+1, t[0]+1, t[1]+1, t[2]+1); err != nil {
			return err
		}
	}
	return nil
}

func value(m *mesh.Mesh, i int) float64 {
	if i >= len(m.Values) || math.IsNaN(m.Values[i]) {
		return NoValue
	}
	return m.Values[i]
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
