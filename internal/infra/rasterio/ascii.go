package rasterio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aalvaropc/bathymesh/internal/geo/raster"
)

// decodeASCII reads an ESRI ASCII grid. Rows are listed north to south.
func decodeASCII(r io.Reader) (*raster.Raster, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<26)
	sc.Split(bufio.ScanWords)

	hdr := map[string]float64{}
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = key
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("ascii grid: header %q has no value", key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("ascii grid: header %q: %w", key, err)
		}
		hdr[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	cols, rows := int(hdr["ncols"]), int(hdr["nrows"])
	dx, dy := hdr["cellsize"], hdr["cellsize"]
	if v, ok := hdr["dx"]; ok {
		dx = v
	}
	if v, ok := hdr["dy"]; ok {
		dy = v
	}

	var x0, ybottom float64
	switch {
	case has(hdr, "xllcorner"):
		x0 = hdr["xllcorner"]
	case has(hdr, "xllcenter"):
		x0 = hdr["xllcenter"] - dx/2
	default:
		return nil, fmt.Errorf("ascii grid: missing xllcorner")
	}
	switch {
	case has(hdr, "yllcorner"):
		ybottom = hdr["yllcorner"]
	case has(hdr, "yllcenter"):
		ybottom = hdr["yllcenter"] - dy/2
	default:
		return nil, fmt.Errorf("ascii grid: missing yllcorner")
	}
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("ascii grid: invalid size %dx%d", cols, rows)
	}

	values := make([]float64, 0, cols*rows)
	if first != "" {
		v, _ := strconv.ParseFloat(first, 64)
		values = append(values, v)
	}
	for len(values) < cols*rows && sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("ascii grid: value %d: %w", len(values), err)
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(values) != cols*rows {
		return nil, fmt.Errorf("ascii grid: expected %d values, got %d", cols*rows, len(values))
	}

	out, err := raster.New(cols, rows, x0, ybottom+float64(rows)*dy, dx, dy, values)
	if err != nil {
		return nil, err
	}
	if v, ok := hdr["nodata_value"]; ok {
		out.NoData = v
		out.HasNoData = true
	}
	return out, nil
}

func has(m map[string]float64, k string) bool {
	_, ok := m[k]
	return ok
}
