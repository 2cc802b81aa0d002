package domain

import (
	"math"
	"path/filepath"
)

// DefaultRaster is the GEBCO 2024 tile the reference workflow was written against.
const DefaultRaster = "gebco_2024_n13.6794_s12.2594_w74.3307_e75.3223.tif"

// MeshFormat selects the serialization used by a mesh writer.
type MeshFormat string

const (
	Format2DM MeshFormat = "2dm"
	FormatGRD MeshFormat = "grd"
)

// Extension returns the file extension for the format, including the dot.
func (f MeshFormat) Extension() string {
	return "." + string(f)
}

func (f MeshFormat) Valid() bool {
	switch f {
	case Format2DM, FormatGRD:
		return true
	}
	return false
}

// RefinementKind names an Hfun refinement rule.
type RefinementKind string

const (
	RefineFlowLimiter   RefinementKind = "flow_limiter"
	RefineConstantValue RefinementKind = "constant_value"
	RefineContour       RefinementKind = "contour"
)

// Refinement is one entry of the ordered Hfun refinement list.
// Which fields are meaningful depends on Kind.
type Refinement struct {
	Kind RefinementKind

	// flow_limiter: optional size clamp and elevation window.
	// constant_value: Value plus the elevation window it applies to.
	Value      float64
	HMin       *float64
	HMax       *float64
	LowerBound *float64
	UpperBound *float64

	// contour
	Level         float64
	ExpansionRate float64
	TargetSize    float64
}

// GeomSpec bounds the wet domain: cells with ZMin < z <= ZMax.
type GeomSpec struct {
	ZMax float64
	ZMin *float64
}

// HfunSpec describes the size function and its refinements, applied in order.
type HfunSpec struct {
	HMin        float64
	HMax        float64
	Refinements []Refinement
}

// DriverSpec tunes the mesh generator.
type DriverSpec struct {
	SmoothIterations int
}

type OutputSpec struct {
	Path      string
	Format    MeshFormat
	Overwrite bool

	// GeomPath optionally receives the domain boundary as GeoJSON.
	GeomPath string
}

// ResolvedPath is Path with the format extension appended when it has none.
func (o OutputSpec) ResolvedPath() string {
	format := o.Format
	if format == "" {
		format = Format2DM
	}
	if filepath.Ext(o.Path) == "" {
		return o.Path + format.Extension()
	}
	return o.Path
}

// RasterCRS tells how to read the coordinates of rasters that carry no EPSG code.
type RasterCRS string

const (
	// CRSDeclared keeps whatever the raster file or its .prj sidecar says.
	CRSDeclared   RasterCRS = ""
	CRSGeographic RasterCRS = "geographic"
	CRSProjected  RasterCRS = "projected"
)

func (c RasterCRS) Valid() bool {
	switch c {
	case CRSDeclared, CRSGeographic, CRSProjected:
		return true
	}
	return false
}

// PipelineSpec is the full configuration of one meshing run.
type PipelineSpec struct {
	Name string

	GeomRaster   string
	HfunRaster   string
	InterpRaster []string
	RasterCRS    RasterCRS

	Geom   GeomSpec
	Hfun   HfunSpec
	Driver DriverSpec
	Output OutputSpec
}

// DefaultPipeline reproduces the reference workflow's literals.
func DefaultPipeline() PipelineSpec {
	return PipelineSpec{
		Name:         "default",
		GeomRaster:   DefaultRaster,
		HfunRaster:   DefaultRaster,
		InterpRaster: []string{DefaultRaster},
		Geom: GeomSpec{
			ZMax: 20,
		},
		Hfun: HfunSpec{
			HMin: 100,
			HMax: 8000,
			Refinements: []Refinement{
				FlowLimiter(),
				ConstantValue(100, 0),
				Contour(0, 0.001, 100),
				Contour(-10, 0.001, 200),
			},
		},
		Driver: DriverSpec{
			SmoothIterations: 2,
		},
		Output: OutputSpec{
			Path:      "newmesh8",
			Format:    Format2DM,
			Overwrite: true,
		},
	}
}

// FlowLimiter returns a subtidal flow limiter with library defaults.
func FlowLimiter() Refinement {
	return Refinement{Kind: RefineFlowLimiter}
}

// ConstantValue pins value on cells whose elevation is above lowerBound.
func ConstantValue(value, lowerBound float64) Refinement {
	lb := lowerBound
	return Refinement{Kind: RefineConstantValue, Value: value, LowerBound: &lb}
}

func Contour(level, rate, target float64) Refinement {
	return Refinement{Kind: RefineContour, Level: level, ExpansionRate: rate, TargetSize: target}
}

// Bounds resolves the optional elevation window, defaulting to (-inf, +inf).
func (r Refinement) Bounds() (lower, upper float64) {
	lower, upper = math.Inf(-1), math.Inf(1)
	if r.LowerBound != nil {
		lower = *r.LowerBound
	}
	if r.UpperBound != nil {
		upper = *r.UpperBound
	}
	return lower, upper
}

// PipelineRef points to a pipeline file in a workspace.
type PipelineRef struct {
	Name string
	Path string
}
