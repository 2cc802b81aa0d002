package workspacefinder

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"gopkg.in/yaml.v3"
)

// ConfigFile marks the root of a workspace.
const ConfigFile = "bathymesh.yaml"

// LoadConfig loads bathymesh.yaml from the workspace root and applies defaults.
func LoadConfig(root string) (domain.Config, error) {
	cfg := domain.DefaultConfig()

	path := filepath.Join(root, ConfigFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, &domain.OpError{
			Op:   "workspacefinder.loadconfig",
			Kind: domain.KindNotFound,
			Path: path,
			Err:  err,
		}
	}

	var y yamlConfig
	if err := yaml.Unmarshal(b, &y); err != nil {
		return cfg, &domain.OpError{
			Op:   "workspacefinder.loadconfig",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}

	// Apply parsed values on top of defaults.
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Defaults.Pipeline, y.Bathymesh.Defaults.Pipeline)
	set(&cfg.Paths.PipelinesDir, y.Bathymesh.Paths.PipelinesDir)
	set(&cfg.Paths.RunsDir, y.Bathymesh.Paths.RunsDir)
	set(&cfg.Paths.OutputsDir, y.Bathymesh.Paths.OutputsDir)

	return cfg, nil
}

type yamlConfig struct {
	Bathymesh struct {
		Defaults struct {
			Pipeline string `yaml:"pipeline"`
		} `yaml:"defaults"`

		Paths struct {
			PipelinesDir string `yaml:"pipelines_dir"`
			RunsDir      string `yaml:"runs_dir"`
			OutputsDir   string `yaml:"outputs_dir"`
		} `yaml:"paths"`
	} `yaml:"bathymesh"`
}
