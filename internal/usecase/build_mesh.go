package usecase

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aalvaropc/bathymesh/internal/app/template"
	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/geom"
	"github.com/aalvaropc/bathymesh/internal/geo/hfun"
	"github.com/aalvaropc/bathymesh/internal/geo/mesh"
	"github.com/aalvaropc/bathymesh/internal/geo/raster"
	"github.com/aalvaropc/bathymesh/internal/ports"
)

// MeshDeps are the adapters a meshing run needs. Fingerprints and GeomWriter are optional.
type MeshDeps struct {
	Pipelines    ports.PipelineLoader
	Rasters      ports.RasterLoader
	Fingerprints ports.InputFingerprinter
	Mesher       ports.Mesher
	Writer       ports.MeshWriter
	GeomWriter   ports.GeomWriter
}

// BuildMesh runs a pipeline: raster, geom, hfun and refinements, mesh, interpolate, write.
type BuildMesh struct {
	deps  MeshDeps
	store ports.ArtifactStore

	log      *slog.Logger
	observer func(domain.StageEvent)
	now      func() time.Time
	newID    func() string
}

type BuildOption func(*BuildMesh)

func WithLogger(l *slog.Logger) BuildOption {
	return func(uc *BuildMesh) {
		if l != nil {
			uc.log = l
		}
	}
}

// WithObserver receives a running event before each stage and a done/failed event after it.
// It is called on the goroutine executing the pipeline.
func WithObserver(fn func(domain.StageEvent)) BuildOption {
	return func(uc *BuildMesh) { uc.observer = fn }
}

// WithClock is useful for tests.
func WithClock(now func() time.Time) BuildOption {
	return func(uc *BuildMesh) { uc.now = now }
}

func WithIDGenerator(fn func() string) BuildOption {
	return func(uc *BuildMesh) { uc.newID = fn }
}

// NewBuildMesh wires the usecase. A nil store disables artifact persistence.
func NewBuildMesh(deps MeshDeps, store ports.ArtifactStore, opts ...BuildOption) *BuildMesh {
	uc := &BuildMesh{
		deps:     deps,
		store:    store,
		log:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		observer: func(domain.StageEvent) {},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute loads the pipeline at path and runs it.
func (uc *BuildMesh) Execute(ctx context.Context, pipelinePath string) (domain.RunResult, string, error) {
	spec, err := uc.deps.Pipelines.LoadPipeline(pipelinePath)
	if err != nil {
		return domain.RunResult{}, "", err
	}
	return uc.ExecuteSpec(ctx, spec, pipelinePath)
}

// ExecuteSpec runs an already loaded pipeline. The artifact is saved whether or not
// the run succeeds; a pipeline error takes precedence over a store error.
func (uc *BuildMesh) ExecuteSpec(ctx context.Context, spec domain.PipelineSpec, pipelinePath string) (domain.RunResult, string, error) {
	run := domain.RunResult{
		ID:           uc.newID(),
		PipelineName: spec.Name,
		PipelinePath: pipelinePath,
		StartedAt:    uc.now(),
	}
	log := uc.log.With("run_id", run.ID, "pipeline", spec.Name)
	log.Info("run.start", "path", pipelinePath)

	runErr := uc.run(ctx, spec, &run, log)

	run.EndedAt = uc.now()
	if runErr != nil {
		run.Error = runErr.Error()
		log.Error("run.failed", "err", runErr)
	} else {
		log.Info("run.done",
			"output", run.OutputPath,
			"nodes", run.Mesh.Nodes,
			"elements", run.Mesh.Elements,
			"duration", run.Total().String(),
		)
	}

	var id string
	if uc.store != nil {
		var saveErr error
		id, saveErr = uc.store.SaveRun(run)
		if saveErr != nil {
			log.Error("run.save_failed", "err", saveErr)
			if runErr == nil {
				return run, "", saveErr
			}
			id = ""
		}
	}
	return run, id, runErr
}

func (uc *BuildMesh) run(ctx context.Context, spec domain.PipelineSpec, run *domain.RunResult, log *slog.Logger) error {
	out, err := RenderOutput(spec, run.ID, run.StartedAt)
	if err != nil {
		return err
	}

	s := &sequencer{ctx: ctx, run: run, log: log, observer: uc.observer}
	cache := &rasterCache{loader: uc.deps.Rasters, fp: uc.deps.Fingerprints, crs: spec.RasterCRS, run: run, log: log}

	var (
		geomRaster, hfunRaster *raster.Raster
		g                      *geom.Geom
		h                      *hfun.Hfun
		m                      *mesh.Mesh
		interp                 []*raster.Raster
	)

	if err := s.stage(domain.StageRasterGeom, func() (err error) {
		geomRaster, err = cache.load(spec.GeomRaster)
		return err
	}); err != nil {
		return err
	}

	if err := s.stage(domain.StageGeom, func() (err error) {
		var opts []geom.Option
		if spec.Geom.ZMin != nil {
			opts = append(opts, geom.WithZMin(*spec.Geom.ZMin))
		}
		g, err = geom.New(geomRaster, spec.Geom.ZMax, opts...)
		if err == nil {
			log.Debug("geom.built", "wet_cells", g.WetCells(), "polygons", len(g.MultiPolygon()))
		}
		return err
	}); err != nil {
		return err
	}

	if err := s.stage(domain.StageRasterHfun, func() (err error) {
		hfunRaster, err = cache.load(spec.HfunRaster)
		return err
	}); err != nil {
		return err
	}

	if err := s.stage(domain.StageHfun, func() (err error) {
		h, err = hfun.New(hfunRaster, spec.Hfun.HMin, spec.Hfun.HMax)
		return err
	}); err != nil {
		return err
	}

	for _, r := range spec.Hfun.Refinements {
		if err := s.stage(RefinementStage(r), func() error {
			if err := h.Apply(r); err != nil {
				return err
			}
			if log.Enabled(ctx, slog.LevelDebug) {
				sum := h.Summary()
				log.Debug("hfun.refined", "kind", string(r.Kind), "min", sum.Min, "median", sum.Median)
			}
			return nil
		}); err != nil {
			return err
		}
	}

	if err := s.stage(domain.StageMesh, func() (err error) {
		m, err = uc.deps.Mesher.Mesh(ctx, g, h, spec.Driver)
		return err
	}); err != nil {
		return err
	}

	if err := s.stage(domain.StageRasterInterp, func() error {
		for _, p := range spec.InterpRaster {
			r, err := cache.load(p)
			if err != nil {
				return err
			}
			interp = append(interp, r)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := s.stage(domain.StageInterpolate, func() error {
		n := m.Interpolate(interp...)
		run.Mesh = m.Stats(geomRaster.Metric())
		if n < len(m.Nodes) {
			log.Warn("interpolate.unvalued", "nodes", len(m.Nodes)-n)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := s.stage(domain.StageWrite, func() error {
		path, err := uc.deps.Writer.WriteMesh(m, out)
		if err != nil {
			return err
		}
		run.OutputPath = path
		return nil
	}); err != nil {
		return err
	}

	if out.GeomPath != "" && uc.deps.GeomWriter != nil {
		if err := s.stage(domain.StageWriteGeom, func() error {
			if err := uc.deps.GeomWriter.WriteGeom(g, out.GeomPath, out.Overwrite); err != nil {
				return err
			}
			run.GeomPath = out.GeomPath
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// PlannedStages lists the stages a successful run of spec goes through, in order.
func PlannedStages(spec domain.PipelineSpec) []string {
	out := []string{domain.StageRasterGeom, domain.StageGeom, domain.StageRasterHfun, domain.StageHfun}
	for _, r := range spec.Hfun.Refinements {
		out = append(out, RefinementStage(r))
	}
	out = append(out, domain.StageMesh, domain.StageRasterInterp, domain.StageInterpolate, domain.StageWrite)
	if spec.Output.GeomPath != "" {
		out = append(out, domain.StageWriteGeom)
	}
	return out
}

// RefinementStage names the stage of a refinement, e.g. "hfun.contour[-10]".
func RefinementStage(r domain.Refinement) string {
	name := domain.StageHfun + "." + string(r.Kind)
	if r.Kind == domain.RefineContour {
		name += "[" + strconv.FormatFloat(r.Level, 'g', -1, 64) + "]"
	}
	return name
}

// RenderOutput expands {{pipeline}}, {{format}}, {{date}} and {{run}} in the output paths.
func RenderOutput(spec domain.PipelineSpec, runID string, at time.Time) (domain.OutputSpec, error) {
	out := spec.Output
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	vars := map[string]string{
		"pipeline": spec.Name,
		"format":   string(out.Format),
		"date":     at.UTC().Format("20060102"),
		"run":      short,
	}

	var err error
	if out.Path, err = template.RenderString(out.Path, vars); err != nil {
		return out, err
	}
	if out.GeomPath, err = template.RenderString(out.GeomPath, vars); err != nil {
		return out, err
	}
	return out, nil
}

// sequencer runs stages in order, timing and reporting each one.
type sequencer struct {
	ctx      context.Context
	run      *domain.RunResult
	log      *slog.Logger
	observer func(domain.StageEvent)
	next     int
}

func (s *sequencer) stage(name string, fn func() error) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}

	idx := s.next
	s.next++
	s.observer(domain.StageEvent{Index: idx, Name: name, Status: domain.StageRunning})
	s.log.Debug("stage.start", "stage", name)

	start := time.Now()
	err := fn()
	d := time.Since(start)

	res := domain.StageResult{Name: name, DurationMS: float64(d.Microseconds()) / 1000}
	if err != nil {
		res.Error = err.Error()
		s.run.Stages = append(s.run.Stages, res)
		s.observer(domain.StageEvent{Index: idx, Name: name, Status: domain.StageFailed, Duration: d, Err: err})
		s.log.Error("stage.failed", "stage", name, "duration_ms", res.DurationMS, "err", err)
		return &domain.StageError{Stage: name, Err: err}
	}

	s.run.Stages = append(s.run.Stages, res)
	s.observer(domain.StageEvent{Index: idx, Name: name, Status: domain.StageDone, Duration: d})
	s.log.Info("stage.done", "stage", name, "duration_ms", res.DurationMS)
	return nil
}

// rasterCache loads each distinct path once and records its fingerprint.
type rasterCache struct {
	loader ports.RasterLoader
	fp     ports.InputFingerprinter
	crs    domain.RasterCRS
	run    *domain.RunResult
	log    *slog.Logger
	loaded map[string]*raster.Raster
}

func (c *rasterCache) load(path string) (*raster.Raster, error) {
	if r, ok := c.loaded[path]; ok {
		c.log.Debug("raster.cached", "path", path)
		return r, nil
	}

	r, err := c.loader.LoadRaster(path)
	if err != nil {
		return nil, err
	}
	applyRasterCRS(r, c.crs)
	if c.fp != nil {
		fp, err := c.fp.Fingerprint(path)
		if err != nil {
			return nil, err
		}
		c.run.Inputs = append(c.run.Inputs, fp)
	}

	lo, hi, n := r.Range()
	c.log.Info("raster.loaded", "path", path, "cols", r.Cols, "rows", r.Rows, "valid", n, "zmin", lo, "zmax", hi,
		"epsg", r.CRS.EPSG, "geographic", r.CRS.Geographic)

	if c.loaded == nil {
		c.loaded = map[string]*raster.Raster{}
	}
	c.loaded[path] = r
	return r, nil
}

// applyRasterCRS overrides the coordinate kind of a freshly loaded raster that has
// no EPSG code. Rasters with an EPSG code keep it.
func applyRasterCRS(r *raster.Raster, crs domain.RasterCRS) {
	if r.CRS.EPSG != 0 {
		return
	}
	switch crs {
	case domain.CRSGeographic:
		r.CRS.Geographic = true
	case domain.CRSProjected:
		r.CRS.Geographic = false
	}
}
