// Package hfun builds the target edge-length field that drives mesh density.
//
// The field lives on the raster grid it was built from and is expressed in metres.
// Refinements mutate it in call order; constant values assign while the flow limiter
// and contours take the minimum, so reordering calls changes the result.
package hfun

import (
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/stat"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/raster"
)

type Hfun struct {
	raster     *raster.Raster
	metric     raster.Metric
	hmin, hmax float64

	field *raster.Raster
}

// New initialises the field to hmax over the whole raster.
func New(r *raster.Raster, hmin, hmax float64) (*Hfun, error) {
	if !(hmin > 0) {
		return nil, domain.Degenerate("hfun.new", "hmin must be positive, got %g", hmin)
	}
	if !(hmax >= hmin) {
		return nil, domain.Degenerate("hfun.new", "hmax %g below hmin %g", hmax, hmin)
	}

	vals := make([]float64, len(r.Values))
	for i := range vals {
		vals[i] = hmax
	}
	field, err := raster.New(r.Cols, r.Rows, r.X0, r.Y0, r.DX, r.DY, vals)
	if err != nil {
		return nil, err
	}
	field.CRS = r.CRS

	return &Hfun{
		raster: r,
		metric: r.Metric(),
		hmin:   hmin,
		hmax:   hmax,
		field:  field,
	}, nil
}

func (h *Hfun) HMin() float64 { return h.hmin }
func (h *Hfun) HMax() float64 { return h.hmax }

func (h *Hfun) Raster() *raster.Raster { return h.raster }

// Metric converts raster coordinate units to metres.
func (h *Hfun) Metric() raster.Metric { return h.metric }

// At returns the target edge length in metres at p, clamped to [hmin, hmax].
// Points off the grid get hmax.
func (h *Hfun) At(p orb.Point) float64 {
	v, ok := h.field.Sample(p[0], p[1])
	if !ok {
		return h.hmax
	}
	return h.clamp(v)
}

// Cell returns the stored size of one grid cell.
func (h *Hfun) Cell(row, col int) float64 {
	return h.field.Values[row*h.field.Cols+col]
}

// Values returns a copy of the field, row-major.
func (h *Hfun) Values() []float64 {
	return slices.Clone(h.field.Values)
}

// Apply dispatches a configured refinement.
func (h *Hfun) Apply(r domain.Refinement) error {
	switch r.Kind {
	case domain.RefineFlowLimiter:
		fl := DefaultFlowLimiter()
		if r.HMin != nil {
			fl.HMin = *r.HMin
		}
		if r.HMax != nil {
			fl.HMax = *r.HMax
		}
		if r.LowerBound != nil {
			fl.LowerBound = *r.LowerBound
		}
		if r.UpperBound != nil {
			fl.UpperBound = *r.UpperBound
		}
		h.AddSubtidalFlowLimiter(fl)
		return nil
	case domain.RefineConstantValue:
		lo, hi := r.Bounds()
		return h.AddConstantValue(r.Value, lo, hi)
	case domain.RefineContour:
		return h.AddContour(r.Level, r.ExpansionRate, r.TargetSize)
	default:
		return fmt.Errorf("hfun: unknown refinement %q: %w", r.Kind, domain.ErrInvalidConfig)
	}
}

// AddConstantValue assigns value to every cell with lower < z < upper.
func (h *Hfun) AddConstantValue(value, lower, upper float64) error {
	if !(value > 0) {
		return domain.Degenerate("hfun.constant_value", "value must be positive, got %g", value)
	}
	v := h.clamp(value)
	for i, z := range h.raster.Values {
		if !h.valid(z) {
			continue
		}
		if z > lower && z < upper {
			h.field.Values[i] = v
		}
	}
	return nil
}

// Summary describes the distribution of the field.
type Summary struct {
	Min, Max, Mean, Median float64
}

func (h *Hfun) Summary() Summary {
	vals := h.Values()
	slices.Sort(vals)
	return Summary{
		Min:    vals[0],
		Max:    vals[len(vals)-1],
		Mean:   stat.Mean(vals, nil),
		Median: stat.Quantile(0.5, stat.Empirical, vals, nil),
	}
}

func (h *Hfun) valid(z float64) bool {
	if math.IsNaN(z) {
		return false
	}
	return !(h.raster.HasNoData && z == h.raster.NoData)
}

func (h *Hfun) clamp(v float64) float64 {
	return math.Max(h.hmin, math.Min(h.hmax, v))
}

// combineMin lowers cell i to v, respecting the global bounds.
func (h *Hfun) combineMin(i int, v float64) {
	h.field.Values[i] = math.Min(h.field.Values[i], h.clamp(v))
}
