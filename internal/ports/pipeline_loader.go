package ports

import "github.com/aalvaropc/bathymesh/internal/domain"

// PipelineLoader loads pipeline definitions from a source (e.g., filesystem).
type PipelineLoader interface {
	LoadPipeline(path string) (domain.PipelineSpec, error)
	ListPipelines(root string) ([]domain.PipelineRef, error)
}
