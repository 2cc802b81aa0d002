package yamlpipeline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/infra/config"
	"github.com/aalvaropc/bathymesh/internal/ports"
)

// Loader reads pipeline files from a workspace's pipelines directory.
type Loader struct {
	pipelinesDir string
	baseDir      string
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{pipelinesDir: "pipelines"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type Option func(*Loader)

func WithPipelinesDir(dir string) Option {
	return func(l *Loader) { l.pipelinesDir = dir }
}

// WithBaseDir resolves relative raster and output paths against dir
// (usually the workspace root) instead of leaving them as written.
func WithBaseDir(dir string) Option {
	return func(l *Loader) { l.baseDir = dir }
}

var _ ports.PipelineLoader = (*Loader)(nil)

func (l *Loader) LoadPipeline(path string) (domain.PipelineSpec, error) {
	return config.LoadPipeline(path, l.baseDir)
}

func (l *Loader) ListPipelines(root string) ([]domain.PipelineRef, error) {
	dir := filepath.Join(root, l.pipelinesDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &domain.OpError{
			Op:   "yamlpipeline.list",
			Kind: domain.KindNotFound,
			Path: dir,
			Err:  err,
		}
	}

	var refs []domain.PipelineRef
	for _, e := range entries {
		if e.IsDir() || !IsPipelineFile(e.Name()) {
			continue
		}

		p := filepath.Join(dir, e.Name())
		n := ""
		if dto, err := config.ReadPipelineDTO(p); err == nil {
			n = strings.TrimSpace(dto.Name)
		}
		if n == "" {
			n = strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		}

		refs = append(refs, domain.PipelineRef{Name: n, Path: p})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// IsPipelineFile reports whether name has a YAML or TOML extension.
func IsPipelineFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".toml":
		return true
	}
	return false
}
