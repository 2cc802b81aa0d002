package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/geom"
	"github.com/aalvaropc/bathymesh/internal/geo/hfun"
	"github.com/aalvaropc/bathymesh/internal/geo/mesh"
	"github.com/aalvaropc/bathymesh/internal/geo/raster"
	"github.com/aalvaropc/bathymesh/internal/ports"
)

// --- fakes ---

type fakePipelineLoader struct {
	spec domain.PipelineSpec
	err  error
}

func (f fakePipelineLoader) LoadPipeline(_ string) (domain.PipelineSpec, error) {
	return f.spec, f.err
}
func (f fakePipelineLoader) ListPipelines(_ string) ([]domain.PipelineRef, error) {
	return nil, nil
}

type fakeRasterLoader struct {
	rasters map[string]*raster.Raster
	calls   map[string]int
}

func newRasterLoader(rasters map[string]*raster.Raster) *fakeRasterLoader {
	return &fakeRasterLoader{rasters: rasters, calls: map[string]int{}}
}

func (f *fakeRasterLoader) LoadRaster(path string) (*raster.Raster, error) {
	f.calls[path]++
	r, ok := f.rasters[path]
	if !ok {
		return nil, &domain.OpError{Op: "fake.load", Kind: domain.KindNotFound, Path: path, Err: domain.ErrNotFound}
	}
	return r, nil
}

type fakeFingerprinter struct{}

func (fakeFingerprinter) Fingerprint(path string) (domain.InputFingerprint, error) {
	return domain.InputFingerprint{Path: path, Size: 1, BLAKE3: "00"}, nil
}

type fakeMesher struct {
	err   error
	calls int
	spec  domain.DriverSpec
}

func (f *fakeMesher) Mesh(_ context.Context, _ *geom.Geom, _ *hfun.Hfun, spec domain.DriverSpec) (*mesh.Mesh, error) {
	f.calls++
	f.spec = spec
	if f.err != nil {
		return nil, f.err
	}
	return mesh.New(
		[]orb.Point{{50, 50}, {350, 50}, {350, 350}},
		[][3]int{{0, 1, 2}},
		raster.CRS{},
	), nil
}

type fakeWriter struct {
	err error
	got domain.OutputSpec
	m   *mesh.Mesh
}

func (f *fakeWriter) WriteMesh(m *mesh.Mesh, out domain.OutputSpec) (string, error) {
	f.got, f.m = out, m
	if f.err != nil {
		return "", f.err
	}
	return out.ResolvedPath(), nil
}

type fakeGeomWriter struct {
	path string
}

func (f *fakeGeomWriter) WriteGeom(_ *geom.Geom, path string, _ bool) error {
	f.path = path
	return nil
}

type fakeStore struct {
	saved bool
	last  domain.RunResult
}

func (s *fakeStore) SaveRun(run domain.RunResult) (string, error) {
	s.saved = true
	s.last = run
	return "run-123", nil
}

// errStore always fails SaveRun.
type errStore struct{ err error }

func (s *errStore) SaveRun(_ domain.RunResult) (string, error) { return "", s.err }

var (
	_ ports.PipelineLoader     = fakePipelineLoader{}
	_ ports.RasterLoader       = (*fakeRasterLoader)(nil)
	_ ports.InputFingerprinter = fakeFingerprinter{}
	_ ports.Mesher             = (*fakeMesher)(nil)
	_ ports.MeshWriter         = (*fakeWriter)(nil)
	_ ports.GeomWriter         = (*fakeGeomWriter)(nil)
)

// --- helpers ---

func flat(t *testing.T, z float64) *raster.Raster {
	t.Helper()
	vals := make([]float64, 16)
	for i := range vals {
		vals[i] = z
	}
	r, err := raster.New(4, 4, 0, 400, 100, 100, vals)
	if err != nil {
		t.Fatalf("raster: %v", err)
	}
	return r
}

func testSpec() domain.PipelineSpec {
	p := domain.DefaultPipeline()
	p.Name = "demo"
	p.GeomRaster, p.HfunRaster, p.InterpRaster = "a.tif", "a.tif", []string{"a.tif"}
	return p
}

type harness struct {
	rasters *fakeRasterLoader
	mesher  *fakeMesher
	writer  *fakeWriter
	geomW   *fakeGeomWriter
	events  []domain.StageEvent
}

func newHarness(t *testing.T) *harness {
	return &harness{
		rasters: newRasterLoader(map[string]*raster.Raster{"a.tif": flat(t, -5)}),
		mesher:  &fakeMesher{},
		writer:  &fakeWriter{},
		geomW:   &fakeGeomWriter{},
	}
}

func (h *harness) usecase(spec domain.PipelineSpec, store ports.ArtifactStore, opts ...BuildOption) *BuildMesh {
	deps := MeshDeps{
		Pipelines:    fakePipelineLoader{spec: spec},
		Rasters:      h.rasters,
		Fingerprints: fakeFingerprinter{},
		Mesher:       h.mesher,
		Writer:       h.writer,
		GeomWriter:   h.geomW,
	}
	opts = append([]BuildOption{
		WithObserver(func(ev domain.StageEvent) { h.events = append(h.events, ev) }),
		WithIDGenerator(func() string { return "0f8fad5b-d9cb-469f-a165-70867728950e" }),
	}, opts...)
	return NewBuildMesh(deps, store, opts...)
}

func stageNames(run domain.RunResult) []string {
	out := make([]string, 0, len(run.Stages))
	for _, s := range run.Stages {
		out = append(out, s.Name)
	}
	return out
}

// --- tests ---

func TestBuildMesh_RunsStagesInOrder(t *testing.T) {
	h := newHarness(t)
	store := &fakeStore{}

	run, id, err := h.usecase(testSpec(), store).Execute(context.Background(), "pipelines/demo.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "run-123" || !store.saved {
		t.Fatalf("expected run saved, id=%q saved=%v", id, store.saved)
	}

	want := []string{
		"raster.geom", "geom", "raster.hfun", "hfun",
		"hfun.flow_limiter", "hfun.constant_value", "hfun.contour[0]", "hfun.contour[-10]",
		"mesh", "raster.interp", "interpolate", "write",
	}
	got := stageNames(run)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected stages:\n got %v\nwant %v", got, want)
	}
	if planned := PlannedStages(testSpec()); strings.Join(planned, ",") != strings.Join(want, ",") {
		t.Fatalf("planned stages disagree with the run: %v", planned)
	}

	if len(h.events) != 2*len(want) {
		t.Fatalf("expected %d events, got %d", 2*len(want), len(h.events))
	}
	for i, name := range want {
		start, end := h.events[2*i], h.events[2*i+1]
		if start.Name != name || start.Status != domain.StageRunning || start.Index != i {
			t.Fatalf("event %d: unexpected start %+v", i, start)
		}
		if end.Name != name || end.Status != domain.StageDone {
			t.Fatalf("event %d: unexpected end %+v", i, end)
		}
	}

	if h.rasters.calls["a.tif"] != 1 {
		t.Fatalf("expected the shared raster loaded once, got %d", h.rasters.calls["a.tif"])
	}
	if len(run.Inputs) != 1 || run.Inputs[0].Path != "a.tif" {
		t.Fatalf("expected one fingerprint, got %+v", run.Inputs)
	}
	if h.mesher.spec.SmoothIterations != 2 {
		t.Fatalf("expected driver spec forwarded, got %+v", h.mesher.spec)
	}

	if run.OutputPath != "newmesh8.2dm" || !h.writer.got.Overwrite {
		t.Fatalf("unexpected output %q %+v", run.OutputPath, h.writer.got)
	}
	if run.Mesh.Nodes != 3 || run.Mesh.Elements != 1 || run.Mesh.Unvalued != 0 {
		t.Fatalf("unexpected stats %+v", run.Mesh)
	}
	if run.Mesh.MinValue != -5 || run.Mesh.MaxValue != -5 {
		t.Fatalf("expected interpolated values of -5, got %+v", run.Mesh)
	}
	if run.PipelineName != "demo" || run.PipelinePath != "pipelines/demo.yaml" || run.ID == "" {
		t.Fatalf("unexpected run header %+v", run)
	}
	if run.EndedAt.Before(run.StartedAt) || run.Failed() {
		t.Fatalf("unexpected run state %+v", run)
	}
}

func TestBuildMesh_DistinctRastersLoadedSeparately(t *testing.T) {
	h := newHarness(t)
	h.rasters.rasters["b.tif"] = flat(t, -7)
	h.rasters.rasters["c.tif"] = flat(t, -9)

	spec := testSpec()
	spec.HfunRaster = "b.tif"
	spec.InterpRaster = []string{"c.tif", "a.tif"}

	run, _, err := h.usecase(spec, nil).Execute(context.Background(), "p.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range []string{"a.tif", "b.tif", "c.tif"} {
		if h.rasters.calls[p] != 1 {
			t.Fatalf("expected %s loaded once, got %d", p, h.rasters.calls[p])
		}
	}
	if len(run.Inputs) != 3 {
		t.Fatalf("expected 3 fingerprints, got %d", len(run.Inputs))
	}
	// first interpolation raster wins
	if run.Mesh.MinValue != -9 || run.Mesh.MaxValue != -9 {
		t.Fatalf("expected values from c.tif, got %+v", run.Mesh)
	}
}

func TestBuildMesh_StoreNil(t *testing.T) {
	h := newHarness(t)

	run, id, err := h.usecase(testSpec(), nil).Execute(context.Background(), "p.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty id when store is nil, got %q", id)
	}
	if run.PipelineName != "demo" {
		t.Fatalf("expected PipelineName=demo, got %q", run.PipelineName)
	}
}

func TestBuildMesh_StageErrorKeepsCause(t *testing.T) {
	h := newHarness(t)
	h.mesher.err = domain.Degenerate("jigsaw.run", "fewer than 3 nodes")
	store := &fakeStore{}

	run, id, err := h.usecase(testSpec(), store).Execute(context.Background(), "p.yaml")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrDegenerate) || !domain.IsKind(err, domain.KindDegenerate) {
		t.Fatalf("expected degenerate cause, got %v", err)
	}
	if stage, ok := domain.FailedStage(err); !ok || stage != domain.StageMesh {
		t.Fatalf("expected failing stage mesh, got %q", stage)
	}

	// The failed run is still persisted.
	if !store.saved || id != "run-123" {
		t.Fatalf("expected failed run saved, id=%q", id)
	}
	if !run.Failed() || !strings.HasPrefix(run.Error, "stage mesh: ") {
		t.Fatalf("unexpected run error %q", run.Error)
	}
	last := run.Stages[len(run.Stages)-1]
	if last.Name != domain.StageMesh || last.Error == "" {
		t.Fatalf("expected last stage to be the failed mesh stage, got %+v", last)
	}
	if h.writer.m != nil {
		t.Fatal("writer must not run after a failed stage")
	}
	if ev := h.events[len(h.events)-1]; ev.Status != domain.StageFailed || ev.Err == nil {
		t.Fatalf("expected failed event, got %+v", ev)
	}
}

func TestBuildMesh_EmptyDomainFailsAtGeom(t *testing.T) {
	h := newHarness(t)
	h.rasters.rasters["a.tif"] = flat(t, 50)

	_, _, err := h.usecase(testSpec(), nil).Execute(context.Background(), "p.yaml")
	if stage, _ := domain.FailedStage(err); stage != domain.StageGeom {
		t.Fatalf("expected geom failure, got %v", err)
	}
	if !domain.IsKind(err, domain.KindDegenerate) {
		t.Fatalf("expected degenerate kind, got %v", err)
	}
	if h.mesher.calls != 0 {
		t.Fatal("mesher must not run")
	}
}

func TestBuildMesh_MissingRaster(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	spec.InterpRaster = []string{"missing.tif"}

	_, _, err := h.usecase(spec, nil).Execute(context.Background(), "p.yaml")
	if stage, _ := domain.FailedStage(err); stage != domain.StageRasterInterp {
		t.Fatalf("expected raster.interp failure, got %v", err)
	}
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestBuildMesh_WriteRefused(t *testing.T) {
	h := newHarness(t)
	h.writer.err = &domain.OpError{Op: "meshio.write", Kind: domain.KindAlreadyExists, Err: domain.ErrAlreadyExists}

	run, _, err := h.usecase(testSpec(), nil).Execute(context.Background(), "p.yaml")
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if stage, _ := domain.FailedStage(err); stage != domain.StageWrite {
		t.Fatalf("expected write failure, got %v", err)
	}
	if run.OutputPath != "" {
		t.Fatalf("expected no output path, got %q", run.OutputPath)
	}
}

func TestBuildMesh_ErrorLoadingPipeline(t *testing.T) {
	loadErr := errors.New("pipeline not found")
	store := &fakeStore{}
	uc := NewBuildMesh(MeshDeps{Pipelines: fakePipelineLoader{err: loadErr}}, store)

	_, _, err := uc.Execute(context.Background(), "p.yaml")
	if !errors.Is(err, loadErr) {
		t.Fatalf("expected loadErr, got %v", err)
	}
	if store.saved {
		t.Fatal("nothing ran, nothing should be saved")
	}
}

func TestBuildMesh_ContextCancelledBeforeFirstStage(t *testing.T) {
	h := newHarness(t)
	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, _, err := h.usecase(testSpec(), store).Execute(ctx, "p.yaml")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(run.Stages) != 0 || len(h.events) != 0 {
		t.Fatalf("expected no stage to run, got %v", stageNames(run))
	}
	if run.StartedAt.IsZero() || run.EndedAt.IsZero() {
		t.Fatal("expected timestamps set")
	}
	if !store.saved {
		t.Fatal("expected cancelled run saved")
	}
}

func TestBuildMesh_ContextCancelledBetweenStages(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	uc := h.usecase(testSpec(), nil, WithObserver(func(ev domain.StageEvent) {
		if ev.Name == domain.StageHfun && ev.Status == domain.StageDone {
			cancel()
		}
	}))

	run, _, err := uc.Execute(ctx, "p.yaml")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := stageNames(run); len(got) != 4 || got[3] != domain.StageHfun {
		t.Fatalf("expected run to stop after hfun, got %v", got)
	}
	if h.mesher.calls != 0 {
		t.Fatal("mesher must not run after cancellation")
	}
}

func TestBuildMesh_StoreSaveError(t *testing.T) {
	h := newHarness(t)
	saveErr := errors.New("store unavailable")

	run, id, err := h.usecase(testSpec(), &errStore{err: saveErr}).Execute(context.Background(), "p.yaml")
	if !errors.Is(err, saveErr) {
		t.Fatalf("expected saveErr, got %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty id on store error, got %q", id)
	}
	// run should still be returned so caller can inspect results.
	if run.OutputPath == "" {
		t.Fatal("expected output path even on store error")
	}
}

func TestBuildMesh_StageErrorWinsOverStoreError(t *testing.T) {
	h := newHarness(t)
	h.mesher.err = errors.New("boom")

	_, _, err := h.usecase(testSpec(), &errStore{err: errors.New("disk full")}).Execute(context.Background(), "p.yaml")
	if stage, ok := domain.FailedStage(err); !ok || stage != domain.StageMesh {
		t.Fatalf("expected mesh stage error, got %v", err)
	}
}

func TestBuildMesh_OutputTemplateAndGeoJSON(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	spec.Output.Path = "out/{{pipeline}}_{{date}}_{{run}}"
	spec.Output.GeomPath = "out/{{pipeline}}.geojson"

	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	run, _, err := h.usecase(spec, nil, WithClock(func() time.Time { return at })).Execute(context.Background(), "p.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.writer.got.Path != "out/demo_20261016_0f8fad5b" {
		t.Fatalf("unexpected rendered path %q", h.writer.got.Path)
	}
	if run.OutputPath != "out/demo_20261016_0f8fad5b.2dm" {
		t.Fatalf("unexpected output %q", run.OutputPath)
	}
	if h.geomW.path != "out/demo.geojson" || run.GeomPath != "out/demo.geojson" {
		t.Fatalf("unexpected geojson path %q", h.geomW.path)
	}
	if got := stageNames(run); got[len(got)-1] != domain.StageWriteGeom {
		t.Fatalf("expected write.geom last, got %v", got)
	}
}

func TestBuildMesh_BadOutputTemplate(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	spec.Output.Path = "out/{{nope}}"

	run, _, err := h.usecase(spec, nil).Execute(context.Background(), "p.yaml")
	if !domain.IsKind(err, domain.KindInvalidConfig) {
		t.Fatalf("expected invalid_config, got %v", err)
	}
	if len(run.Stages) != 0 {
		t.Fatalf("expected failure before any stage, got %v", stageNames(run))
	}
}

func TestRefinementStage(t *testing.T) {
	cases := map[string]domain.Refinement{
		"hfun.flow_limiter":   domain.FlowLimiter(),
		"hfun.constant_value": domain.ConstantValue(100, 0),
		"hfun.contour[0]":     domain.Contour(0, 0.001, 100),
		"hfun.contour[-10]":   domain.Contour(-10, 0.001, 200),
		"hfun.contour[-2.5]":  domain.Contour(-2.5, 0, 50),
	}
	for want, r := range cases {
		if got := RefinementStage(r); got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestApplyRasterCRS(t *testing.T) {
	r := flat(t, -5)
	applyRasterCRS(r, domain.CRSDeclared)
	if r.CRS.Geographic {
		t.Fatal("declared CRS must leave the raster projected")
	}

	applyRasterCRS(r, domain.CRSGeographic)
	if !r.CRS.Geographic {
		t.Fatal("expected geographic override")
	}

	applyRasterCRS(r, domain.CRSProjected)
	if r.CRS.Geographic {
		t.Fatal("expected projected override")
	}

	r.CRS = raster.CRS{EPSG: 32618}
	applyRasterCRS(r, domain.CRSGeographic)
	if r.CRS.Geographic {
		t.Fatal("a raster with an EPSG code keeps its CRS")
	}
}

func TestBuildMesh_RasterCRSAppliedOnLoad(t *testing.T) {
	spec := testSpec()
	spec.RasterCRS = domain.CRSGeographic
	vals := make([]float64, 16)
	for i := range vals {
		vals[i] = -5
	}
	r, err := raster.New(4, 4, -74.5, 12.5, 0.01, 0.01, vals)
	if err != nil {
		t.Fatalf("raster: %v", err)
	}
	h := newHarness(t)
	h.rasters = newRasterLoader(map[string]*raster.Raster{"a.tif": r})

	if _, _, err := h.usecase(spec, nil).Execute(context.Background(), "p.yaml"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.CRS.Geographic {
		t.Fatalf("expected raster marked geographic before meshing, got %+v", r.CRS)
	}
}
