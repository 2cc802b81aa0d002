package domain

import "time"

// Stage names used by the pipeline. Refinement stages are suffixed, e.g. "hfun.contour[-10]".
const (
	StageRasterGeom   = "raster.geom"
	StageGeom         = "geom"
	StageRasterHfun   = "raster.hfun"
	StageHfun         = "hfun"
	StageMesh         = "mesh"
	StageRasterInterp = "raster.interp"
	StageInterpolate  = "interpolate"
	StageWrite        = "write"
	StageWriteGeom    = "write.geom"
)

// StageStatus is the lifecycle state of a pipeline stage.
type StageStatus string

const (
	StageRunning StageStatus = "running"
	StageDone    StageStatus = "done"
	StageFailed  StageStatus = "failed"
)

// StageEvent is emitted when a stage starts and when it ends.
type StageEvent struct {
	Index    int
	Name     string
	Status   StageStatus
	Duration time.Duration
	Err      error
}

// StageResult records the outcome of a single stage.
type StageResult struct {
	Name       string
	DurationMS float64
	Error      string `json:",omitempty"`
}

// MeshStats summarises a generated mesh.
type MeshStats struct {
	Nodes    int
	Elements int
	MinValue float64
	MaxValue float64
	MeanEdge float64
	Unvalued int
}

// InputFingerprint identifies a raster input by content.
type InputFingerprint struct {
	Path   string
	Size   int64
	BLAKE3 string
}

// RunResult is the outcome of one pipeline execution.
type RunResult struct {
	ID           string
	PipelineName string
	PipelinePath string

	StartedAt time.Time
	EndedAt   time.Time

	Stages     []StageResult
	Mesh       MeshStats
	Inputs     []InputFingerprint
	OutputPath string
	GeomPath   string `json:",omitempty"`
	Error      string `json:",omitempty"`
}

// Failed reports whether any stage failed.
func (r RunResult) Failed() bool {
	if r.Error != "" {
		return true
	}
	for _, s := range r.Stages {
		if s.Error != "" {
			return true
		}
	}
	return false
}

// Total is the wall-clock duration of the run, or 0 if it never ran.
func (r RunResult) Total() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
