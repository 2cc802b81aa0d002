package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/aalvaropc/bathymesh/internal/domain"
)

// LoadPipeline reads a YAML or TOML pipeline (by extension) and maps it.
func LoadPipeline(path, baseDir string) (domain.PipelineSpec, error) {
	dto, err := ReadPipelineDTO(path)
	if err != nil {
		return domain.PipelineSpec{}, err
	}
	return MapPipeline(path, dto, baseDir)
}

// ReadPipelineDTO decodes a pipeline file without validating it.
func ReadPipelineDTO(path string) (PipelineDTO, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return PipelineDTO{}, &domain.OpError{
			Op:   "config.load_pipeline",
			Kind: domain.KindNotFound,
			Path: path,
			Err:  err,
		}
	}

	var dto PipelineDTO
	if IsTOML(path) {
		err = toml.Unmarshal(b, &dto)
	} else {
		err = yaml.Unmarshal(b, &dto)
	}
	if err != nil {
		return PipelineDTO{}, &domain.OpError{
			Op:   "config.load_pipeline",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}
	return dto, nil
}

func IsTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
