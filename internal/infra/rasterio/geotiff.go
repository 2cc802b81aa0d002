package rasterio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"

	"github.com/aalvaropc/bathymesh/internal/geo/raster"
)

// TIFF tags read by the decoder.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339

	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGDALNoData          = 42113
)

const (
	compressionNone     = 1
	compressionLZW      = 5
	compressionDeflate  = 8
	compressionDeflate2 = 32946

	predictorNone       = 1
	predictorHorizontal = 2
	predictorFloat      = 3

	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

// GeoKeys.
const (
	keyModelType      = 1024
	keyRasterType     = 1025
	keyGeographicType = 2048
	keyProjectedType  = 3072

	modelProjected  = 1
	modelGeographic = 2
	rasterPixelIsPt = 2
)

var errNotTIFF = errors.New("not a TIFF file")

// field sizes per TIFF data type.
var typeSize = map[uint16]int{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8,
}

type ifdEntry struct {
	typ   uint16
	count uint32
	raw   []byte
}

type tiffReader struct {
	data  []byte
	order binary.ByteOrder
	tags  map[uint16]ifdEntry
}

// decodeGeoTIFF reads band 1 of the first image in a classic TIFF.
func decodeGeoTIFF(data []byte) (*raster.Raster, error) {
	t, err := parseTIFF(data)
	if err != nil {
		return nil, err
	}

	width, err := t.uint(tagImageWidth)
	if err != nil {
		return nil, err
	}
	height, err := t.uint(tagImageLength)
	if err != nil {
		return nil, err
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("tiff: empty image %dx%d", width, height)
	}

	l := layout{
		width:       int(width),
		height:      int(height),
		bits:        int(t.uintOr(tagBitsPerSample, 1)),
		format:      int(t.uintOr(tagSampleFormat, sampleUint)),
		spp:         int(t.uintOr(tagSamplesPerPixel, 1)),
		planar:      int(t.uintOr(tagPlanarConfig, 1)),
		compression: int(t.uintOr(tagCompression, compressionNone)),
		predictor:   int(t.uintOr(tagPredictor, predictorNone)),
		order:       t.order,
	}
	if err := l.check(); err != nil {
		return nil, err
	}

	values := make([]float64, l.width*l.height)
	if _, tiled := t.tags[tagTileOffsets]; tiled {
		err = t.readTiles(l, values)
	} else {
		err = t.readStrips(l, values)
	}
	if err != nil {
		return nil, err
	}

	r, err := t.georeference(l.width, l.height, values)
	if err != nil {
		return nil, err
	}
	if e, ok := t.tags[tagGDALNoData]; ok {
		s := strings.TrimRight(string(e.raw), "\x00 ")
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			r.NoData = v
			r.HasNoData = true
		}
	}
	return r, nil
}

func parseTIFF(data []byte) (*tiffReader, error) {
	if len(data) < 8 {
		return nil, errNotTIFF
	}
	t := &tiffReader{data: data, tags: map[uint16]ifdEntry{}}
	switch string(data[:2]) {
	case "II":
		t.order = binary.LittleEndian
	case "MM":
		t.order = binary.BigEndian
	default:
		return nil, errNotTIFF
	}
	switch t.order.Uint16(data[2:4]) {
	case 42:
	case 43:
		return nil, errors.New("tiff: BigTIFF is not supported")
	default:
		return nil, errNotTIFF
	}

	off := int(t.order.Uint32(data[4:8]))
	if off+2 > len(data) {
		return nil, fmt.Errorf("tiff: IFD offset %d out of range", off)
	}
	n := int(t.order.Uint16(data[off:]))
	if off+2+12*n > len(data) {
		return nil, errors.New("tiff: truncated IFD")
	}
	for i := 0; i < n; i++ {
		p := off + 2 + 12*i
		tag := t.order.Uint16(data[p:])
		typ := t.order.Uint16(data[p+2:])
		count := t.order.Uint32(data[p+4:])
		size, ok := typeSize[typ]
		if !ok {
			continue
		}
		total := size * int(count)
		var raw []byte
		if total <= 4 {
			raw = data[p+8 : p+8+total]
		} else {
			vo := int(t.order.Uint32(data[p+8:]))
			if vo < 0 || vo+total > len(data) {
				return nil, fmt.Errorf("tiff: tag %d data out of range", tag)
			}
			raw = data[vo : vo+total]
		}
		t.tags[tag] = ifdEntry{typ: typ, count: count, raw: raw}
	}
	return t, nil
}

// uints decodes integer-typed tag values.
func (t *tiffReader) uints(tag uint16) ([]uint64, error) {
	e, ok := t.tags[tag]
	if !ok {
		return nil, fmt.Errorf("tiff: missing tag %d", tag)
	}
	out := make([]uint64, e.count)
	for i := range out {
		switch e.typ {
		case 1, 6, 7:
			out[i] = uint64(e.raw[i])
		case 3, 8:
			out[i] = uint64(t.order.Uint16(e.raw[2*i:]))
		case 4, 9:
			out[i] = uint64(t.order.Uint32(e.raw[4*i:]))
		default:
			return nil, fmt.Errorf("tiff: tag %d has non-integer type %d", tag, e.typ)
		}
	}
	return out, nil
}

func (t *tiffReader) uint(tag uint16) (uint64, error) {
	v, err := t.uints(tag)
	if err != nil {
		return 0, err
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("tiff: tag %d is empty", tag)
	}
	return v[0], nil
}

func (t *tiffReader) uintOr(tag uint16, def uint64) uint64 {
	v, err := t.uint(tag)
	if err != nil {
		return def
	}
	return v
}

func (t *tiffReader) doubles(tag uint16) ([]float64, bool) {
	e, ok := t.tags[tag]
	if !ok || e.typ != 12 {
		return nil, false
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(t.order.Uint64(e.raw[8*i:]))
	}
	return out, true
}

type layout struct {
	width, height int
	bits, format  int
	spp, planar   int
	compression   int
	predictor     int
	order         binary.ByteOrder
}

func (l layout) check() error {
	switch l.bits {
	case 8, 16, 32, 64:
	default:
		return fmt.Errorf("tiff: unsupported bits per sample %d", l.bits)
	}
	switch l.format {
	case sampleUint, sampleInt:
	case sampleFloat:
		if l.bits != 32 && l.bits != 64 {
			return fmt.Errorf("tiff: unsupported float width %d", l.bits)
		}
	default:
		return fmt.Errorf("tiff: unsupported sample format %d", l.format)
	}
	switch l.compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflate2:
	default:
		return fmt.Errorf("tiff: unsupported compression %d", l.compression)
	}
	switch l.predictor {
	case predictorNone, predictorHorizontal, predictorFloat:
	default:
		return fmt.Errorf("tiff: unsupported predictor %d", l.predictor)
	}
	if l.spp < 1 {
		return fmt.Errorf("tiff: invalid samples per pixel %d", l.spp)
	}
	return nil
}

// stride is the number of interleaved samples per pixel in a chunk.
func (l layout) stride() int {
	if l.planar == 2 {
		return 1
	}
	return l.spp
}

func (t *tiffReader) readStrips(l layout, values []float64) error {
	offsets, err := t.uints(tagStripOffsets)
	if err != nil {
		return err
	}
	counts, err := t.uints(tagStripByteCounts)
	if err != nil {
		return err
	}
	rps := int(t.uintOr(tagRowsPerStrip, uint64(l.height)))
	if rps <= 0 || rps > l.height {
		rps = l.height
	}
	strips := (l.height + rps - 1) / rps
	if len(offsets) < strips || len(counts) < strips {
		return fmt.Errorf("tiff: %d strips declared, %d expected", len(offsets), strips)
	}

	for s := 0; s < strips; s++ {
		rows := min(rps, l.height-s*rps)
		buf, err := t.chunk(l, offsets[s], counts[s], l.width, rows)
		if err != nil {
			return fmt.Errorf("tiff: strip %d: %w", s, err)
		}
		for r := 0; r < rows; r++ {
			dst := values[(s*rps+r)*l.width:]
			for c := 0; c < l.width; c++ {
				dst[c] = sampleAt(l, buf, r*l.width+c)
			}
		}
	}
	return nil
}

func (t *tiffReader) readTiles(l layout, values []float64) error {
	tw, err := t.uint(tagTileWidth)
	if err != nil {
		return err
	}
	th, err := t.uint(tagTileLength)
	if err != nil {
		return err
	}
	offsets, err := t.uints(tagTileOffsets)
	if err != nil {
		return err
	}
	counts, err := t.uints(tagTileByteCounts)
	if err != nil {
		return err
	}
	tileW, tileH := int(tw), int(th)
	if tileW == 0 || tileH == 0 {
		return errors.New("tiff: zero tile size")
	}
	across := (l.width + tileW - 1) / tileW
	down := (l.height + tileH - 1) / tileH
	if len(offsets) < across*down || len(counts) < across*down {
		return fmt.Errorf("tiff: %d tiles declared, %d expected", len(offsets), across*down)
	}

	for ty := 0; ty < down; ty++ {
		for tx := 0; tx < across; tx++ {
			i := ty*across + tx
			buf, err := t.chunk(l, offsets[i], counts[i], tileW, tileH)
			if err != nil {
				return fmt.Errorf("tiff: tile %d: %w", i, err)
			}
			for r := 0; r < tileH; r++ {
				row := ty*tileH + r
				if row >= l.height {
					break
				}
				for c := 0; c < tileW; c++ {
					col := tx*tileW + c
					if col >= l.width {
						break
					}
					values[row*l.width+col] = sampleAt(l, buf, r*tileW+c)
				}
			}
		}
	}
	return nil
}

// chunk decompresses one strip or tile and undoes the predictor.
func (t *tiffReader) chunk(l layout, off, n uint64, width, rows int) ([]byte, error) {
	if off+n > uint64(len(t.data)) {
		return nil, errors.New("data out of range")
	}
	src := t.data[off : off+n]

	var buf []byte
	var err error
	switch l.compression {
	case compressionNone:
		buf = src
	case compressionLZW:
		rc := lzw.NewReader(bytes.NewReader(src), lzw.MSB, 8)
		buf, err = io.ReadAll(rc)
		rc.Close()
	case compressionDeflate, compressionDeflate2:
		var zr io.ReadCloser
		zr, err = zlib.NewReader(bytes.NewReader(src))
		if err == nil {
			buf, err = io.ReadAll(zr)
			zr.Close()
		}
	}
	if err != nil && !(errors.Is(err, io.ErrUnexpectedEOF) && len(buf) > 0) {
		return nil, err
	}

	bps := l.bits / 8
	rowBytes := width * l.stride() * bps
	if len(buf) < rowBytes*rows {
		return nil, fmt.Errorf("short chunk: %d bytes, want %d", len(buf), rowBytes*rows)
	}
	if l.predictor != predictorNone {
		buf = bytes.Clone(buf[:rowBytes*rows])
	}

	switch l.predictor {
	case predictorHorizontal:
		undoHorizontal(l, buf, rowBytes, rows)
	case predictorFloat:
		buf = undoFloat(l, buf, width, rows)
	}
	return buf, nil
}

// undoHorizontal integrates per-row sample differences.
func undoHorizontal(l layout, buf []byte, rowBytes, rows int) {
	bps := l.bits / 8
	st := l.stride()
	for r := 0; r < rows; r++ {
		row := buf[r*rowBytes : (r+1)*rowBytes]
		n := rowBytes / bps
		for i := st; i < n; i++ {
			switch bps {
			case 1:
				row[i] += row[i-st]
			case 2:
				v := l.order.Uint16(row[2*i:]) + l.order.Uint16(row[2*(i-st):])
				l.order.PutUint16(row[2*i:], v)
			case 4:
				v := l.order.Uint32(row[4*i:]) + l.order.Uint32(row[4*(i-st):])
				l.order.PutUint32(row[4*i:], v)
			case 8:
				v := l.order.Uint64(row[8*i:]) + l.order.Uint64(row[8*(i-st):])
				l.order.PutUint64(row[8*i:], v)
			}
		}
	}
}

// undoFloat reverses the floating point predictor: byte differencing over the row,
// then the byte planes are reassembled into big-endian words. The result is rewritten
// in the file byte order so sampleAt can read it uniformly.
func undoFloat(l layout, buf []byte, width, rows int) []byte {
	bps := l.bits / 8
	st := l.stride()
	n := width * st
	rowBytes := n * bps
	out := make([]byte, len(buf))
	word := make([]byte, bps)
	for r := 0; r < rows; r++ {
		row := buf[r*rowBytes : (r+1)*rowBytes]
		for i := st; i < rowBytes; i++ {
			row[i] += row[i-st]
		}
		dst := out[r*rowBytes:]
		for i := 0; i < n; i++ {
			for b := 0; b < bps; b++ {
				word[b] = row[b*n+i]
			}
			switch bps {
			case 4:
				l.order.PutUint32(dst[4*i:], binary.BigEndian.Uint32(word))
			case 8:
				l.order.PutUint64(dst[8*i:], binary.BigEndian.Uint64(word))
			}
		}
	}
	return out
}

// sampleAt decodes band 1 of pixel i in a chunk.
func sampleAt(l layout, buf []byte, i int) float64 {
	bps := l.bits / 8
	p := buf[i*l.stride()*bps:]
	switch l.format {
	case sampleFloat:
		if bps == 4 {
			return float64(math.Float32frombits(l.order.Uint32(p)))
		}
		return math.Float64frombits(l.order.Uint64(p))
	case sampleInt:
		switch bps {
		case 1:
			return float64(int8(p[0]))
		case 2:
			return float64(int16(l.order.Uint16(p)))
		case 4:
			return float64(int32(l.order.Uint32(p)))
		default:
			return float64(int64(l.order.Uint64(p)))
		}
	default:
		switch bps {
		case 1:
			return float64(p[0])
		case 2:
			return float64(l.order.Uint16(p))
		case 4:
			return float64(l.order.Uint32(p))
		default:
			return float64(l.order.Uint64(p))
		}
	}
}

// georeference builds the raster from ModelTransformation or ModelPixelScale and
// ModelTiepoint, with the CRS from the GeoKey directory.
func (t *tiffReader) georeference(width, height int, values []float64) (*raster.Raster, error) {
	var x0, y0, dx, dy float64
	if m, ok := t.doubles(tagModelTransformation); ok && len(m) >= 16 {
		if m[1] != 0 || m[4] != 0 {
			return nil, errors.New("geotiff: rotated rasters are not supported")
		}
		x0, y0, dx, dy = m[3], m[7], m[0], -m[5]
	} else {
		scale, ok1 := t.doubles(tagModelPixelScale)
		tie, ok2 := t.doubles(tagModelTiepoint)
		if !ok1 || !ok2 || len(scale) < 2 || len(tie) < 6 {
			return nil, errors.New("geotiff: no georeferencing tags")
		}
		dx, dy = scale[0], scale[1]
		x0 = tie[3] - tie[0]*dx
		y0 = tie[4] + tie[1]*dy
	}

	keys := t.geoKeys()
	if keys[keyRasterType] == rasterPixelIsPt {
		x0 -= dx / 2
		y0 += dy / 2
	}

	r, err := raster.New(width, height, x0, y0, dx, dy, values)
	if err != nil {
		return nil, err
	}
	switch {
	case keys[keyProjectedType] != 0 && keys[keyProjectedType] != 32767:
		r.CRS = raster.CRS{EPSG: keys[keyProjectedType]}
	case keys[keyGeographicType] != 0 && keys[keyGeographicType] != 32767:
		r.CRS = raster.CRS{EPSG: keys[keyGeographicType], Geographic: true}
	}
	switch keys[keyModelType] {
	case modelGeographic:
		r.CRS.Geographic = true
	case modelProjected:
		r.CRS.Geographic = false
	}
	return r, nil
}

// geoKeys returns the inline (short-valued) entries of the GeoKey directory.
func (t *tiffReader) geoKeys() map[int]int {
	out := map[int]int{}
	v, err := t.uints(tagGeoKeyDirectory)
	if err != nil || len(v) < 4 {
		return out
	}
	n := int(v[3])
	for i := 0; i < n && 4+4*i+3 < len(v); i++ {
		k := v[4+4*i:]
		if k[1] == 0 {
			out[int(k[0])] = int(k[3])
		}
	}
	return out
}
