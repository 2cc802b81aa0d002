package raster

import (
	"math"

	"github.com/im7mortal/UTM"
	"github.com/paulmach/orb"
)

// Metric converts coordinate units to metres along each axis.
type Metric struct {
	MX, MY float64
}

// Unit is the identity metric used for projected rasters.
var Unit = Metric{MX: 1, MY: 1}

// Dist is the metric distance between two points.
func (m Metric) Dist(a, b orb.Point) float64 {
	return math.Hypot((a[0]-b[0])*m.MX, (a[1]-b[1])*m.MY)
}

// Metric returns the local metres-per-unit scale at the raster centre.
// Projected rasters are assumed to be in metres already.
func (r *Raster) Metric() Metric {
	if !r.CRS.Geographic {
		return Unit
	}
	c := r.Bounds().Center()
	return MetresPerDegree(c[1], c[0])
}

// MetresPerDegree measures a small UTM displacement around (lat, lon).
// Outside the UTM latitude band a spherical approximation is used.
func MetresPerDegree(lat, lon float64) Metric {
	const h = 0.01

	northern := lat >= 0
	e0, n0, zone, _, err := UTM.FromLatLon(lat, lon, northern)
	if err != nil {
		return spherical(lat)
	}

	mx, ok := utmStep(lat, lon, 0, h, northern, zone, e0, n0)
	if !ok {
		mx, ok = utmStep(lat, lon, 0, -h, northern, zone, e0, n0)
	}
	my, ok2 := utmStep(lat, lon, h, 0, northern, zone, e0, n0)
	if !ok2 {
		my, ok2 = utmStep(lat, lon, -h, 0, northern, zone, e0, n0)
	}
	if !ok || !ok2 {
		return spherical(lat)
	}
	return Metric{MX: mx, MY: my}
}

func utmStep(lat, lon, dlat, dlon float64, northern bool, zone int, e0, n0 float64) (float64, bool) {
	e, n, z, _, err := UTM.FromLatLon(lat+dlat, lon+dlon, northern)
	if err != nil || z != zone {
		return 0, false
	}
	return math.Hypot(e-e0, n-n0) / math.Abs(dlat+dlon), true
}

func spherical(lat float64) Metric {
	const perDeg = 6371008.8 * math.Pi / 180
	return Metric{MX: perDeg * math.Cos(lat*math.Pi/180), MY: perDeg}
}
