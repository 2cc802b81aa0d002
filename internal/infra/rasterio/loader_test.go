package rasterio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/raster"
)

// tiffBuilder assembles a single-IFD classic TIFF: header, pixel bytes, IFD, tag data.
type tiffBuilder struct {
	order binary.ByteOrder
	tags  []tiffTag
}

type tiffTag struct {
	id    uint16
	typ   uint16
	count uint32
	data  []byte
}

func (b *tiffBuilder) short(id uint16, vals ...uint16) {
	d := make([]byte, 2*len(vals))
	for i, v := range vals {
		b.order.PutUint16(d[2*i:], v)
	}
	b.tags = append(b.tags, tiffTag{id, 3, uint32(len(vals)), d})
}

func (b *tiffBuilder) long(id uint16, vals ...uint32) {
	d := make([]byte, 4*len(vals))
	for i, v := range vals {
		b.order.PutUint32(d[4*i:], v)
	}
	b.tags = append(b.tags, tiffTag{id, 4, uint32(len(vals)), d})
}

func (b *tiffBuilder) double(id uint16, vals ...float64) {
	d := make([]byte, 8*len(vals))
	for i, v := range vals {
		b.order.PutUint64(d[8*i:], math.Float64bits(v))
	}
	b.tags = append(b.tags, tiffTag{id, 12, uint32(len(vals)), d})
}

func (b *tiffBuilder) ascii(id uint16, s string) {
	d := append([]byte(s), 0)
	b.tags = append(b.tags, tiffTag{id, 2, uint32(len(d)), d})
}

func (b *tiffBuilder) build(pixels []byte) []byte {
	var out bytes.Buffer
	if b.order == binary.LittleEndian {
		out.WriteString("II")
	} else {
		out.WriteString("MM")
	}
	pad := len(pixels) % 2
	ifdOff := 8 + len(pixels) + pad
	hdr := make([]byte, 6)
	b.order.PutUint16(hdr, 42)
	b.order.PutUint32(hdr[2:], uint32(ifdOff))
	out.Write(hdr)
	out.Write(pixels)
	if pad == 1 {
		out.WriteByte(0)
	}

	tags := slices.Clone(b.tags)
	slices.SortFunc(tags, func(x, y tiffTag) int { return int(x.id) - int(y.id) })
	extra := ifdOff + 2 + 12*len(tags) + 4

	var tail bytes.Buffer
	n := make([]byte, 2)
	b.order.PutUint16(n, uint16(len(tags)))
	out.Write(n)
	for _, tg := range tags {
		e := make([]byte, 12)
		b.order.PutUint16(e, tg.id)
		b.order.PutUint16(e[2:], tg.typ)
		b.order.PutUint32(e[4:], tg.count)
		if len(tg.data) <= 4 {
			copy(e[8:], tg.data)
		} else {
			b.order.PutUint32(e[8:], uint32(extra+tail.Len()))
			tail.Write(tg.data)
			if tail.Len()%2 == 1 {
				tail.WriteByte(0)
			}
		}
		out.Write(e)
	}
	out.Write(make([]byte, 4))
	out.Write(tail.Bytes())
	return out.Bytes()
}

func deflate(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(b)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDecodeGeoTIFF_Int16StripWithNoData(t *testing.T) {
	le := binary.LittleEndian
	vals := []int16{-5, 10, -32768, 7, -1, 3}
	pix := make([]byte, 2*len(vals))
	for i, v := range vals {
		le.PutUint16(pix[2*i:], uint16(v))
	}

	b := &tiffBuilder{order: le}
	b.short(tagImageWidth, 3)
	b.short(tagImageLength, 2)
	b.short(tagBitsPerSample, 16)
	b.short(tagCompression, compressionNone)
	b.long(tagStripOffsets, 8)
	b.short(tagSamplesPerPixel, 1)
	b.short(tagRowsPerStrip, 2)
	b.long(tagStripByteCounts, uint32(len(pix)))
	b.short(tagSampleFormat, sampleInt)
	b.double(tagModelPixelScale, 0.5, 0.25, 0)
	b.double(tagModelTiepoint, 0, 0, 0, -74.5, 13.5, 0)
	b.short(tagGeoKeyDirectory, 1, 1, 0, 2, keyModelType, 0, 1, modelGeographic, keyGeographicType, 0, 1, 4326)
	b.ascii(tagGDALNoData, "-32768")

	r, err := decodeGeoTIFF(b.build(pix))
	require.NoError(t, err)

	assert.Equal(t, 3, r.Cols)
	assert.Equal(t, 2, r.Rows)
	assert.Equal(t, []float64{-5, 10, -32768, 7, -1, 3}, r.Values)
	assert.Equal(t, -74.5, r.X0)
	assert.Equal(t, 13.5, r.Y0)
	assert.Equal(t, 0.5, r.DX)
	assert.Equal(t, 0.25, r.DY)
	assert.Equal(t, raster.CRS{EPSG: 4326, Geographic: true}, r.CRS)

	require.True(t, r.HasNoData)
	_, ok := r.At(0, 2)
	assert.False(t, ok)
}

func TestDecodeGeoTIFF_TiledDeflateHorizontalPredictor(t *testing.T) {
	be := binary.BigEndian
	const w, h, tw, th = 3, 3, 2, 2
	value := func(row, col int) uint16 { return uint16(10*row + col) }

	var pix []byte
	var offsets, counts []uint32
	for ty := 0; ty < 2; ty++ {
		for tx := 0; tx < 2; tx++ {
			raw := make([]byte, 2*tw*th)
			for r := 0; r < th; r++ {
				var prev uint16
				for c := 0; c < tw; c++ {
					row, col := ty*th+r, tx*tw+c
					var v uint16
					if row < h && col < w {
						v = value(row, col)
					}
					be.PutUint16(raw[2*(r*tw+c):], v-prev)
					prev = v
				}
			}
			z := deflate(t, raw)
			offsets = append(offsets, uint32(8+len(pix)))
			counts = append(counts, uint32(len(z)))
			pix = append(pix, z...)
		}
	}

	b := &tiffBuilder{order: be}
	b.short(tagImageWidth, w)
	b.short(tagImageLength, h)
	b.short(tagBitsPerSample, 16)
	b.short(tagCompression, compressionDeflate)
	b.short(tagPredictor, predictorHorizontal)
	b.short(tagTileWidth, tw)
	b.short(tagTileLength, th)
	b.long(tagTileOffsets, offsets...)
	b.long(tagTileByteCounts, counts...)
	b.double(tagModelTransformation, 10, 0, 0, 1000, 0, -10, 0, 2000, 0, 0, 0, 0, 0, 0, 0, 1)
	b.short(tagGeoKeyDirectory, 1, 1, 0, 2, keyModelType, 0, 1, modelProjected, keyProjectedType, 0, 1, 32633)

	r, err := decodeGeoTIFF(b.build(pix))
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1, 2, 10, 11, 12, 20, 21, 22}, r.Values)
	assert.Equal(t, raster.CRS{EPSG: 32633}, r.CRS)
	assert.Equal(t, 1000.0, r.X0)
	assert.Equal(t, 2000.0, r.Y0)
	assert.Equal(t, 10.0, r.DY)
}

func TestDecodeGeoTIFF_FloatPredictorAndPixelIsPoint(t *testing.T) {
	le := binary.LittleEndian
	vals := []float32{-12.5, 3.25, 0, 1e6}
	n := len(vals)

	// Byte planes, most significant first, then byte differencing.
	row := make([]byte, 4*n)
	for i, v := range vals {
		var word [4]byte
		binary.BigEndian.PutUint32(word[:], math.Float32bits(v))
		for k := 0; k < 4; k++ {
			row[k*n+i] = word[k]
		}
	}
	for i := len(row) - 1; i >= 1; i-- {
		row[i] -= row[i-1]
	}
	pix := deflate(t, row)

	b := &tiffBuilder{order: le}
	b.short(tagImageWidth, uint16(n))
	b.short(tagImageLength, 1)
	b.short(tagBitsPerSample, 32)
	b.short(tagCompression, compressionDeflate2)
	b.short(tagPredictor, predictorFloat)
	b.short(tagSampleFormat, sampleFloat)
	b.long(tagStripOffsets, 8)
	b.long(tagStripByteCounts, uint32(len(pix)))
	b.double(tagModelPixelScale, 2, 2, 0)
	b.double(tagModelTiepoint, 0, 0, 0, 100, 200, 0)
	b.short(tagGeoKeyDirectory, 1, 1, 0, 1, keyRasterType, 0, 1, rasterPixelIsPt)

	r, err := decodeGeoTIFF(b.build(pix))
	require.NoError(t, err)

	assert.Equal(t, []float64{-12.5, 3.25, 0, 1e6}, r.Values)
	assert.Equal(t, 99.0, r.X0)
	assert.Equal(t, 201.0, r.Y0)
}

func TestDecodeGeoTIFF_Rejects(t *testing.T) {
	_, err := decodeGeoTIFF([]byte("GIF89a.."))
	assert.ErrorIs(t, err, errNotTIFF)

	b := &tiffBuilder{order: binary.LittleEndian}
	b.short(tagImageWidth, 1)
	b.short(tagImageLength, 1)
	b.short(tagBitsPerSample, 16)
	b.short(tagCompression, 7) // JPEG
	b.long(tagStripOffsets, 8)
	b.long(tagStripByteCounts, 2)
	_, err = decodeGeoTIFF(b.build([]byte{0, 0}))
	assert.ErrorContains(t, err, "compression 7")

	b = &tiffBuilder{order: binary.LittleEndian}
	b.short(tagImageWidth, 1)
	b.short(tagImageLength, 1)
	b.short(tagBitsPerSample, 16)
	b.long(tagStripOffsets, 8)
	b.long(tagStripByteCounts, 2)
	_, err = decodeGeoTIFF(b.build([]byte{0, 0}))
	assert.ErrorContains(t, err, "georeferencing")
}

const asciiGrid = `ncols 3
nrows 2
xllcenter 0.5
yllcenter 0.5
cellsize 1
NODATA_value -9999
-1 -2 -3
-4 -9999 -6
`

func TestDecodeASCII(t *testing.T) {
	r, err := decodeASCII(strings.NewReader(asciiGrid))
	require.NoError(t, err)

	assert.Equal(t, 0.0, r.X0)
	assert.Equal(t, 2.0, r.Y0)
	assert.Equal(t, []float64{-1, -2, -3, -4, -9999, -6}, r.Values)
	_, ok := r.At(1, 1)
	assert.False(t, ok)
}

func TestDecodeASCII_ShortData(t *testing.T) {
	_, err := decodeASCII(strings.NewReader("ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2 3\n"))
	assert.ErrorContains(t, err, "expected 4 values")
}

func TestLoader_GzippedASCII(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "grid.asc.gz")

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(asciiGrid))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))

	r, err := NewLoader().LoadRaster(p)
	require.NoError(t, err)

	assert.Equal(t, p, r.Path)
	assert.False(t, r.CRS.Geographic, "no declared CRS reads as projected")
	assert.Equal(t, 3, r.Cols)
}

func TestLoader_CRSFromPrjSidecar(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader()

	local := filepath.Join(dir, "local.asc")
	require.NoError(t, os.WriteFile(local, []byte(asciiGrid), 0o644))
	r, err := l.LoadRaster(local)
	require.NoError(t, err)
	assert.False(t, r.CRS.Geographic)
	assert.Equal(t, 1.0, r.Metric().MX, "metre grid near the origin keeps unit scale")

	lonlat := filepath.Join(dir, "lonlat.asc")
	require.NoError(t, os.WriteFile(lonlat, []byte(asciiGrid), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lonlat.prj"),
		[]byte(`GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]]]`), 0o644))
	r, err = l.LoadRaster(lonlat)
	require.NoError(t, err)
	assert.True(t, r.CRS.Geographic)

	utm := filepath.Join(dir, "utm.asc")
	require.NoError(t, os.WriteFile(utm, []byte(asciiGrid), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "utm.prj"),
		[]byte(`PROJCS["WGS 84 / UTM zone 18N",GEOGCS["WGS 84"]]`), 0o644))
	r, err = l.LoadRaster(utm)
	require.NoError(t, err)
	assert.False(t, r.CRS.Geographic)
}

func TestLoader_Errors(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader()

	_, err := l.LoadRaster(filepath.Join(dir, "missing.tif"))
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	bad := filepath.Join(dir, "grid.nc")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o644))
	_, err = l.LoadRaster(bad)
	assert.True(t, domain.IsKind(err, domain.KindInvalidConfig))

	empty := filepath.Join(dir, "empty.asc")
	require.NoError(t, os.WriteFile(empty, []byte("ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nnodata_value -1\n-1\n"), 0o644))
	_, err = l.LoadRaster(empty)
	assert.True(t, domain.IsKind(err, domain.KindDegenerate))
}

func TestLoader_Fingerprint(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.asc")
	b := filepath.Join(dir, "b.asc")
	require.NoError(t, os.WriteFile(a, []byte(asciiGrid), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(asciiGrid+"\n"), 0o644))

	l := NewLoader()
	fa, err := l.Fingerprint(a)
	require.NoError(t, err)
	fa2, err := l.Fingerprint(a)
	require.NoError(t, err)
	fb, err := l.Fingerprint(b)
	require.NoError(t, err)

	assert.Len(t, fa.BLAKE3, 64)
	assert.Equal(t, fa, fa2)
	assert.NotEqual(t, fa.BLAKE3, fb.BLAKE3)
	assert.Equal(t, int64(len(asciiGrid)), fa.Size)

	_, err = l.Fingerprint(filepath.Join(dir, "nope"))
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}
