package domain

// Config represents the workspace configuration loaded from bathymesh.yaml.
type Config struct {
	Defaults DefaultsConfig
	Paths    PathsConfig
}

type DefaultsConfig struct {
	Pipeline string
}

type PathsConfig struct {
	PipelinesDir string
	RunsDir      string
	OutputsDir   string
}

// DefaultConfig provides sane defaults if bathymesh.yaml is partially missing.
func DefaultConfig() Config {
	return Config{
		Defaults: DefaultsConfig{
			Pipeline: "default",
		},
		Paths: PathsConfig{
			PipelinesDir: "pipelines",
			RunsDir:      "runs",
			OutputsDir:   "outputs",
		},
	}
}
