package hfun

import "math"

// FlowLimiter configures AddSubtidalFlowLimiter. Zero HMin/HMax fall back to the
// Hfun bounds. Cells are refined when LowerBound <= z <= UpperBound.
type FlowLimiter struct {
	HMin, HMax             float64
	LowerBound, UpperBound float64
}

// DefaultFlowLimiter applies to every elevation, like the library default.
func DefaultFlowLimiter() FlowLimiter {
	return FlowLimiter{
		LowerBound: math.Inf(-1),
		UpperBound: math.Inf(1),
	}
}

// AddSubtidalFlowLimiter sizes cells as |z| / (3 |grad z|), so elements shrink where
// the bottom is steep relative to depth.
func (h *Hfun) AddSubtidalFlowLimiter(fl FlowLimiter) {
	r := h.raster
	lo, hi := h.hmin, h.hmax
	if fl.HMin > 0 {
		lo = fl.HMin
	}
	if fl.HMax > 0 {
		hi = fl.HMax
	}
	dx := r.DX * h.metric.MX
	dy := r.DY * h.metric.MY

	for row := 0; row < r.Rows; row++ {
		for col := 0; col < r.Cols; col++ {
			z, ok := r.At(row, col)
			if !ok || z < fl.LowerBound || z > fl.UpperBound {
				continue
			}
			gx, okx := h.derivative(row, col, 0, 1, dx)
			gy, oky := h.derivative(row, col, 1, 0, dy)
			if !okx && !oky {
				continue
			}
			grad := math.Hypot(gx, gy)
			if grad == 0 {
				continue
			}
			size := math.Abs(z) / (3 * grad)
			size = math.Max(lo, math.Min(hi, size))
			h.combineMin(row*r.Cols+col, size)
		}
	}
}

// derivative is a central difference where both neighbours exist, one-sided otherwise.
func (h *Hfun) derivative(row, col, dr, dc int, step float64) (float64, bool) {
	r := h.raster
	z0, _ := r.At(row, col)
	zp, okp := r.At(row+dr, col+dc)
	zm, okm := r.At(row-dr, col-dc)
	switch {
	case okp && okm:
		return (zp - zm) / (2 * step), true
	case okp:
		return (zp - z0) / step, true
	case okm:
		return (z0 - zm) / step, true
	default:
		return 0, false
	}
}
