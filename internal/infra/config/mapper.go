package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aalvaropc/bathymesh/internal/domain"
)

// MapPipeline applies dto on top of domain.DefaultPipeline and validates the result.
// Relative raster and output paths are joined to baseDir when it is set.
func MapPipeline(path string, dto PipelineDTO, baseDir string) (domain.PipelineSpec, error) {
	p := domain.DefaultPipeline()

	p.Name = strings.TrimSpace(dto.Name)
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if r := strings.TrimSpace(dto.Raster); r != "" {
		p.GeomRaster, p.HfunRaster, p.InterpRaster = r, r, []string{r}
	}
	if r := strings.TrimSpace(dto.Rasters.Geom); r != "" {
		p.GeomRaster = r
	}
	if r := strings.TrimSpace(dto.Rasters.Hfun); r != "" {
		p.HfunRaster = r
	}
	if len(dto.Rasters.Interpolate) > 0 {
		p.InterpRaster = nil
		for i, r := range dto.Rasters.Interpolate {
			if strings.TrimSpace(r) == "" {
				return domain.PipelineSpec{}, invalidField(path, fmt.Sprintf("rasters.interpolate[%d]", i), "raster path is empty")
			}
			p.InterpRaster = append(p.InterpRaster, strings.TrimSpace(r))
		}
	}

	p.RasterCRS = domain.RasterCRS(strings.ToLower(strings.TrimSpace(dto.RasterCRS)))
	if !p.RasterCRS.Valid() {
		return domain.PipelineSpec{}, invalidField(path, "raster_crs", fmt.Sprintf("unsupported crs %q (expected geographic|projected)", dto.RasterCRS))
	}

	if dto.Geom.ZMax != nil {
		p.Geom.ZMax = *dto.Geom.ZMax
	}
	p.Geom.ZMin = dto.Geom.ZMin
	if p.Geom.ZMin != nil && !(*p.Geom.ZMin < p.Geom.ZMax) {
		return domain.PipelineSpec{}, invalidField(path, "geom.zmin", "must be below zmax")
	}

	if dto.Hfun.HMin != nil {
		p.Hfun.HMin = *dto.Hfun.HMin
	}
	if dto.Hfun.HMax != nil {
		p.Hfun.HMax = *dto.Hfun.HMax
	}
	if !(p.Hfun.HMin > 0) {
		return domain.PipelineSpec{}, invalidField(path, "hfun.hmin", "must be positive")
	}
	if !(p.Hfun.HMax >= p.Hfun.HMin) {
		return domain.PipelineSpec{}, invalidField(path, "hfun.hmax", "must not be below hmin")
	}
	if dto.Hfun.Refinements != nil {
		refs, err := mapRefinements(path, dto.Hfun.Refinements)
		if err != nil {
			return domain.PipelineSpec{}, err
		}
		p.Hfun.Refinements = refs
	}

	if dto.Driver.SmoothIterations != nil {
		if *dto.Driver.SmoothIterations < 0 {
			return domain.PipelineSpec{}, invalidField(path, "driver.smooth_iterations", "must not be negative")
		}
		p.Driver.SmoothIterations = *dto.Driver.SmoothIterations
	}

	if o := strings.TrimSpace(dto.Output.Path); o != "" {
		p.Output.Path = o
	}
	if f := strings.TrimSpace(dto.Output.Format); f != "" {
		p.Output.Format = domain.MeshFormat(strings.ToLower(f))
	}
	if !p.Output.Format.Valid() {
		return domain.PipelineSpec{}, invalidField(path, "output.format", fmt.Sprintf("unsupported format %q (expected 2dm|grd)", p.Output.Format))
	}
	if dto.Output.Overwrite != nil {
		p.Output.Overwrite = *dto.Output.Overwrite
	}
	p.Output.GeomPath = strings.TrimSpace(dto.Output.GeoJSON)

	if baseDir != "" {
		p.GeomRaster = resolve(baseDir, p.GeomRaster)
		p.HfunRaster = resolve(baseDir, p.HfunRaster)
		for i := range p.InterpRaster {
			p.InterpRaster[i] = resolve(baseDir, p.InterpRaster[i])
		}
		p.Output.Path = resolve(baseDir, p.Output.Path)
		p.Output.GeomPath = resolve(baseDir, p.Output.GeomPath)
	}
	return p, nil
}

var refinementKinds = []domain.RefinementKind{
	domain.RefineFlowLimiter,
	domain.RefineConstantValue,
	domain.RefineContour,
}

func mapRefinements(path string, in []map[string]RefinementDTO) ([]domain.Refinement, error) {
	out := make([]domain.Refinement, 0, len(in))
	for i, entry := range in {
		prefix := fmt.Sprintf("hfun.refinements[%d]", i)
		if len(entry) != 1 {
			return nil, invalidField(path, prefix, fmt.Sprintf("expected exactly one refinement kind, got %d", len(entry)))
		}

		var kind string
		var d RefinementDTO
		for k, v := range entry {
			kind, d = k, v
		}
		prefix += "." + kind

		r := domain.Refinement{Kind: domain.RefinementKind(kind)}
		switch r.Kind {
		case domain.RefineFlowLimiter:
			r.HMin, r.HMax = d.HMin, d.HMax
			r.LowerBound, r.UpperBound = d.LowerBound, d.UpperBound
			if r.HMin != nil && !(*r.HMin > 0) {
				return nil, invalidField(path, prefix+".hmin", "must be positive")
			}
		case domain.RefineConstantValue:
			if d.Value == nil {
				return nil, invalidField(path, prefix+".value", "value is required")
			}
			if !(*d.Value > 0) {
				return nil, invalidField(path, prefix+".value", "must be positive")
			}
			r.Value = *d.Value
			r.LowerBound, r.UpperBound = d.LowerBound, d.UpperBound
		case domain.RefineContour:
			if d.Level == nil {
				return nil, invalidField(path, prefix+".level", "level is required")
			}
			if d.TargetSize == nil || !(*d.TargetSize > 0) {
				return nil, invalidField(path, prefix+".target_size", "must be positive")
			}
			if d.ExpansionRate == nil || *d.ExpansionRate < 0 {
				return nil, invalidField(path, prefix+".expansion_rate", "must be zero or positive")
			}
			r.Level, r.TargetSize, r.ExpansionRate = *d.Level, *d.TargetSize, *d.ExpansionRate
		default:
			return nil, invalidField(path, prefix, fmt.Sprintf("unknown refinement (expected one of %v)", refinementKinds))
		}
		if lo, hi := r.Bounds(); !(lo < hi) {
			return nil, invalidField(path, prefix+".lower_bound", "must be below upper_bound")
		}
		out = append(out, r)
	}
	return out, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func invalidField(path, field, msg string) error {
	return &domain.OpError{
		Op:   "config.map",
		Kind: domain.KindInvalidConfig,
		Path: path,
		Err:  fmt.Errorf("field %s: %s: %w", field, msg, domain.ErrInvalidConfig),
	}
}
