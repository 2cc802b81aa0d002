package hfun

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/raster"
)

// ramp builds a projected raster, 100 m cells, with z depending on the column only.
func ramp(t *testing.T, cols, rows int, z func(col int) float64) *raster.Raster {
	t.Helper()
	vals := make([]float64, 0, cols*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			vals = append(vals, z(col))
		}
	}
	r, err := raster.New(cols, rows, 0, float64(rows)*100, 100, 100, vals)
	require.NoError(t, err)
	return r
}

func uniform(t *testing.T, z float64) *raster.Raster {
	return ramp(t, 10, 10, func(int) float64 { return z })
}

func TestNew_Validation(t *testing.T) {
	r := uniform(t, -5)

	_, err := New(r, 0, 8000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDegenerate))

	_, err = New(r, 100, 50)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindDegenerate))

	h, err := New(r, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, 100.0, h.Cell(0, 0))
}

func TestReferenceRefinements_UniformDepthKeepsHMax(t *testing.T) {
	h, err := New(uniform(t, -5), 100, 8000)
	require.NoError(t, err)

	for _, ref := range domain.DefaultPipeline().Hfun.Refinements {
		require.NoError(t, h.Apply(ref))
	}

	s := h.Summary()
	assert.Equal(t, 8000.0, s.Min)
	assert.Equal(t, 8000.0, s.Max)
	assert.Equal(t, 8000.0, s.Median)
	for _, v := range h.Values() {
		assert.GreaterOrEqual(t, v, 100.0)
		assert.LessOrEqual(t, v, 8000.0)
	}
}

func TestAddContour_SmallerNearLevels(t *testing.T) {
	// z = 20 at col 0, 0 at col 100, -10 at col 150.
	r := ramp(t, 201, 3, func(col int) float64 { return float64(100-col) / 5 })
	h, err := New(r, 100, 8000)
	require.NoError(t, err)

	require.NoError(t, h.AddContour(0, 0.001, 100))
	require.NoError(t, h.AddContour(-10, 0.001, 200))

	assert.InDelta(t, 100, h.Cell(1, 100), 1e-9)
	assert.Less(t, h.Cell(1, 100), h.Cell(1, 90))
	assert.Less(t, h.Cell(1, 100), h.Cell(1, 110))

	assert.InDelta(t, 200, h.Cell(1, 150), 1e-9)
	assert.Less(t, h.Cell(1, 150), h.Cell(1, 140))
	assert.Less(t, h.Cell(1, 150), h.Cell(1, 160))

	// 10 km from the shoreline: 100 + 0.1*10000.
	assert.InDelta(t, 1100, h.Cell(1, 0), 1e-6)
}

func TestAddContour_NoCrossingIsNoop(t *testing.T) {
	h, err := New(uniform(t, -5), 100, 8000)
	require.NoError(t, err)

	require.NoError(t, h.AddContour(0, 0.001, 100))

	assert.Equal(t, 8000.0, h.Summary().Min)
}

func TestAddContour_Validation(t *testing.T) {
	h, err := New(uniform(t, -5), 100, 8000)
	require.NoError(t, err)

	assert.True(t, errors.Is(h.AddContour(0, 0.001, 0), domain.ErrDegenerate))
	assert.True(t, errors.Is(h.AddContour(0, -1, 100), domain.ErrDegenerate))
}

func TestAddConstantValue_AssignsInsideWindow(t *testing.T) {
	r := ramp(t, 4, 1, func(col int) float64 { return []float64{-2, -1, 1, 2}[col] })
	h, err := New(r, 10, 8000)
	require.NoError(t, err)

	require.NoError(t, h.AddConstantValue(500, 0, math.Inf(1)))
	assert.Equal(t, []float64{8000, 8000, 500, 500}, h.Values())

	// Assignment raises cells a previous call lowered.
	require.NoError(t, h.AddConstantValue(50, -1.5, 1.5))
	require.NoError(t, h.AddConstantValue(900, -1.5, 1.5))
	assert.Equal(t, []float64{8000, 900, 900, 500}, h.Values())

	assert.Error(t, h.AddConstantValue(0, 0, 1))
}

func TestAddSubtidalFlowLimiter_SteepSlope(t *testing.T) {
	// 0.05 m/m slope; at z = -45 the limiter asks for 45/0.15 = 300 m.
	r := ramp(t, 20, 3, func(col int) float64 { return float64(50 - 5*col) })
	h, err := New(r, 10, 8000)
	require.NoError(t, err)

	h.AddSubtidalFlowLimiter(DefaultFlowLimiter())
	assert.InDelta(t, 300, h.Cell(1, 19), 1e-6)
	assert.InDelta(t, 100, h.Cell(1, 7), 1e-6)

	g, err := New(r, 10, 8000)
	require.NoError(t, err)
	g.AddSubtidalFlowLimiter(FlowLimiter{LowerBound: math.Inf(-1), UpperBound: 0})
	assert.Equal(t, 8000.0, g.Cell(1, 7), "land cells are outside the window")
	assert.InDelta(t, 300, g.Cell(1, 19), 1e-6)
}

func TestAddSubtidalFlowLimiter_FlatBottomUnchanged(t *testing.T) {
	h, err := New(uniform(t, -30), 100, 8000)
	require.NoError(t, err)

	h.AddSubtidalFlowLimiter(DefaultFlowLimiter())

	assert.Equal(t, 8000.0, h.Summary().Min)
}

func TestApply_OrderMatters(t *testing.T) {
	// Steep coast: z = 5 at col 9, 0 at col 10.
	r := ramp(t, 20, 3, func(col int) float64 { return float64(50 - 5*col) })
	refs := domain.DefaultPipeline().Hfun.Refinements

	documented, err := New(r, 50, 8000)
	require.NoError(t, err)
	for _, ref := range refs {
		require.NoError(t, documented.Apply(ref))
	}

	reordered, err := New(r, 50, 8000)
	require.NoError(t, err)
	for _, i := range []int{2, 3, 1, 0} {
		require.NoError(t, reordered.Apply(refs[i]))
	}

	assert.NotEqual(t, documented.Values(), reordered.Values())
	assert.Equal(t, 100.0, documented.Cell(1, 9), "constant value overrides the limiter")
	assert.Equal(t, 50.0, reordered.Cell(1, 9), "limiter lowers the constant value")
}

func TestApply_UnknownKind(t *testing.T) {
	h, err := New(uniform(t, -5), 100, 8000)
	require.NoError(t, err)

	err = h.Apply(domain.Refinement{Kind: "bogus"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
}

func TestApply_FlowLimiterWindow(t *testing.T) {
	r := ramp(t, 20, 3, func(col int) float64 { return float64(50 - 5*col) })
	h, err := New(r, 10, 8000)
	require.NoError(t, err)

	upper := 0.0
	require.NoError(t, h.Apply(domain.Refinement{Kind: domain.RefineFlowLimiter, UpperBound: &upper}))

	assert.Equal(t, 8000.0, h.Cell(1, 0))
	assert.Less(t, h.Cell(1, 19), 8000.0)
}

func TestAt_SamplesAndFallsBack(t *testing.T) {
	h, err := New(uniform(t, -5), 100, 8000)
	require.NoError(t, err)
	require.NoError(t, h.AddConstantValue(300, math.Inf(-1), math.Inf(1)))

	assert.InDelta(t, 300, h.At(orb.Point{500, 500}), 1e-9)
	assert.Equal(t, 8000.0, h.At(orb.Point{-5000, 500}))
	assert.Equal(t, raster.Unit, h.Metric())
}

func TestSummary(t *testing.T) {
	r := ramp(t, 4, 1, func(col int) float64 { return float64(col) })
	h, err := New(r, 100, 8000)
	require.NoError(t, err)
	require.NoError(t, h.AddConstantValue(200, 1.5, math.Inf(1)))

	s := h.Summary()
	assert.Equal(t, 200.0, s.Min)
	assert.Equal(t, 8000.0, s.Max)
	assert.InDelta(t, 4100, s.Mean, 1e-9)
}
