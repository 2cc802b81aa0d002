package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/jigsaw"
	"github.com/aalvaropc/bathymesh/internal/infra/logger"
	"github.com/aalvaropc/bathymesh/internal/infra/meshio"
	"github.com/aalvaropc/bathymesh/internal/infra/rasterio"
	"github.com/aalvaropc/bathymesh/internal/infra/runstore"
	"github.com/aalvaropc/bathymesh/internal/infra/workspacefinder"
	"github.com/aalvaropc/bathymesh/internal/infra/yamlpipeline"
	"github.com/aalvaropc/bathymesh/internal/ports"
	"github.com/aalvaropc/bathymesh/internal/usecase"
)

type workspaceCtx struct {
	root string
	cfg  domain.Config

	pipelines ports.PipelineLoader
	rasters   *rasterio.Loader
	store     ports.ArtifactStore
}

func loadWorkspace(workspaceFlag string) (*workspaceCtx, error) {
	root, err := resolveWorkspaceRoot(workspaceFlag)
	if err != nil {
		return nil, err
	}

	cfg, err := workspacefinder.LoadConfig(root)
	if err != nil {
		return nil, err
	}

	pipelines := yamlpipeline.NewLoader(
		yamlpipeline.WithPipelinesDir(cfg.Paths.PipelinesDir),
		yamlpipeline.WithBaseDir(root),
	)

	return &workspaceCtx{
		root:      root,
		cfg:       cfg,
		pipelines: pipelines,
		rasters:   rasterio.NewLoader(),
		store:     runstore.NewJSONStore(root, cfg, runstore.WithIndex(true)),
	}, nil
}

// meshDeps wires the concrete adapters used by run.
func (ws *workspaceCtx) meshDeps() usecase.MeshDeps {
	return usecase.MeshDeps{
		Pipelines:    ws.pipelines,
		Rasters:      ws.rasters,
		Fingerprints: ws.rasters,
		Mesher:       jigsaw.Backend{Logger: logger.L()},
		Writer:       meshio.NewWriter(),
		GeomWriter:   meshio.GeoJSONWriter{},
	}
}

func resolveWorkspaceRoot(workspaceFlag string) (string, error) {
	w := strings.TrimSpace(workspaceFlag)
	if w != "" {
		abs, err := filepath.Abs(w)
		if err != nil {
			return "", fmt.Errorf("invalid workspace path: %w", err)
		}
		return abs, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	locator := workspacefinder.NewFinder()
	root, err := locator.FindRoot(wd)
	if err != nil {
		return "", fmt.Errorf("workspace not found from %q (tip: run `bathymesh init`): %w", wd, err)
	}
	return root, nil
}

// resolvePipelinePath maps a --pipeline argument to a file. An empty argument
// selects the workspace default pipeline.
func resolvePipelinePath(ws *workspaceCtx, arg string) (string, error) {
	in := strings.TrimSpace(arg)
	if in == "" {
		in = strings.TrimSpace(ws.cfg.Defaults.Pipeline)
	}
	if in == "" {
		return "", fmt.Errorf("pipeline is required (use --pipeline or -p, or set bathymesh.defaults.pipeline)")
	}

	if looksLikePath(in) {
		p := in
		if !filepath.IsAbs(p) {
			p = filepath.Join(ws.root, p)
		}
		return filepath.Clean(p), nil
	}

	pipelinesDir := filepath.Join(ws.root, ws.cfg.Paths.PipelinesDir)

	// "coastal.yaml" is a file under the pipelines dir.
	if hasPipelineExt(in) {
		p := filepath.Join(pipelinesDir, in)
		if fileExists(p) {
			return p, nil
		}
	}

	for _, ext := range []string{".yaml", ".yml", ".toml"} {
		p := filepath.Join(pipelinesDir, in+ext)
		if fileExists(p) {
			return p, nil
		}
	}

	// Last resort: match the pipeline "name" field.
	refs, err := ws.pipelines.ListPipelines(ws.root)
	if err == nil {
		for _, r := range refs {
			if strings.EqualFold(r.Name, in) {
				return r.Path, nil
			}
		}
	}

	return "", fmt.Errorf("pipeline %q not found in %q", in, pipelinesDir)
}

func looksLikePath(s string) bool {
	return strings.Contains(s, "/") || strings.Contains(s, string(filepath.Separator))
}

func hasYAMLExt(s string) bool {
	ext := strings.ToLower(filepath.Ext(s))
	return ext == ".yaml" || ext == ".yml"
}

func hasPipelineExt(s string) bool {
	return hasYAMLExt(s) || strings.EqualFold(filepath.Ext(s), ".toml")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
