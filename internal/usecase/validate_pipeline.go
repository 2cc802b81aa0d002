package usecase

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/aalvaropc/bathymesh/internal/app/template"
	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/raster"
	"github.com/aalvaropc/bathymesh/internal/ports"
)

// ValidationReport lists non-fatal findings about a pipeline.
type ValidationReport struct {
	Pipeline domain.PipelineSpec
	Warnings []string
}

type ValidatePipeline struct {
	pipelines ports.PipelineLoader
	rasters   ports.RasterLoader
}

// NewValidatePipeline wires the usecase. rasters may be nil when rasters are never checked.
func NewValidatePipeline(pl ports.PipelineLoader, rl ports.RasterLoader) *ValidatePipeline {
	return &ValidatePipeline{pipelines: pl, rasters: rl}
}

// Execute loads and validates a pipeline without meshing. With checkRasters the
// rasters are read and compared; spatial mismatches are warnings, unreadable
// rasters and an empty domain are errors.
func (uc *ValidatePipeline) Execute(ctx context.Context, pipelinePath string, checkRasters bool) (ValidationReport, error) {
	spec, err := uc.pipelines.LoadPipeline(pipelinePath)
	if err != nil {
		return ValidationReport{}, err
	}
	rep := ValidationReport{Pipeline: spec}

	out, err := RenderOutput(spec, "validate", time.Now())
	if err != nil {
		return rep, err
	}
	if !out.Overwrite && !template.HasPlaceholders(spec.Output.Path) {
		if _, err := os.Stat(out.ResolvedPath()); err == nil {
			rep.warn("output %s exists and overwrite is false: the run will fail", out.ResolvedPath())
		}
	}
	if len(spec.Hfun.Refinements) == 0 {
		rep.warn("no hfun refinements: the mesh will use hmax=%g everywhere", spec.Hfun.HMax)
	}

	if !checkRasters {
		return rep, nil
	}
	if uc.rasters == nil {
		return rep, fmt.Errorf("raster checks requested but no raster loader configured")
	}

	loaded := map[string]*raster.Raster{}
	load := func(p string) (*raster.Raster, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r, ok := loaded[p]; ok {
			return r, nil
		}
		r, err := uc.rasters.LoadRaster(p)
		if err != nil {
			return nil, err
		}
		applyRasterCRS(r, spec.RasterCRS)
		loaded[p] = r
		return r, nil
	}

	geomR, err := load(spec.GeomRaster)
	if err != nil {
		return rep, &domain.StageError{Stage: domain.StageRasterGeom, Err: err}
	}
	hfunR, err := load(spec.HfunRaster)
	if err != nil {
		return rep, &domain.StageError{Stage: domain.StageRasterHfun, Err: err}
	}
	for _, p := range spec.InterpRaster {
		r, err := load(p)
		if err != nil {
			return rep, &domain.StageError{Stage: domain.StageRasterInterp, Err: err}
		}
		if !r.Bounds().Intersects(geomR.Bounds()) {
			rep.warn("interpolation raster %s does not overlap the geom raster", p)
		}
	}

	zmin := math.Inf(-1)
	if spec.Geom.ZMin != nil {
		zmin = *spec.Geom.ZMin
	}
	_, _, total := geomR.Range()
	wet := geomR.Count(func(z float64) bool { return z > zmin && z <= spec.Geom.ZMax })
	if wet == 0 {
		return rep, domain.Degenerate("validate.geom", "no cell has %g < z <= %g", zmin, spec.Geom.ZMax)
	}
	if wet == total {
		rep.warn("every cell is within (%g, %g]: the domain is the full raster extent", zmin, spec.Geom.ZMax)
	}

	if geomR != hfunR && !geomR.SameGrid(hfunR) {
		if geomR.Bounds() != hfunR.Bounds() {
			rep.warn("geom and hfun rasters cover different extents")
		} else {
			rep.warn("geom and hfun rasters use different grids")
		}
	}

	hlo, hhi, _ := hfunR.Range()
	for _, r := range spec.Hfun.Refinements {
		if r.Kind == domain.RefineContour && (r.Level < hlo || r.Level > hhi) {
			rep.warn("%s: level outside hfun raster range [%g, %g], refinement has no effect", RefinementStage(r), hlo, hhi)
		}
	}
	return rep, nil
}

func (r *ValidationReport) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
