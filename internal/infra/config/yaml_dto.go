package config

// PipelineDTO is the on-disk shape of a pipeline, shared by YAML and TOML files.
type PipelineDTO struct {
	Name string `yaml:"name" toml:"name"`

	// Raster feeds every stage unless Rasters overrides it.
	Raster  string     `yaml:"raster" toml:"raster"`
	Rasters RastersDTO `yaml:"rasters" toml:"rasters"`
	// RasterCRS overrides the CRS of rasters without an EPSG code: geographic|projected.
	RasterCRS string `yaml:"raster_crs" toml:"raster_crs"`

	Geom   GeomDTO   `yaml:"geom" toml:"geom"`
	Hfun   HfunDTO   `yaml:"hfun" toml:"hfun"`
	Driver DriverDTO `yaml:"driver" toml:"driver"`
	Output OutputDTO `yaml:"output" toml:"output"`
}

type RastersDTO struct {
	Geom        string   `yaml:"geom" toml:"geom"`
	Hfun        string   `yaml:"hfun" toml:"hfun"`
	Interpolate []string `yaml:"interpolate" toml:"interpolate"`
}

type GeomDTO struct {
	ZMax *float64 `yaml:"zmax" toml:"zmax"`
	ZMin *float64 `yaml:"zmin" toml:"zmin"`
}

type HfunDTO struct {
	HMin *float64 `yaml:"hmin" toml:"hmin"`
	HMax *float64 `yaml:"hmax" toml:"hmax"`

	// Each entry holds exactly one key naming the refinement kind.
	// A nil list keeps the default refinements; an empty one disables them.
	Refinements []map[string]RefinementDTO `yaml:"refinements" toml:"refinements"`
}

type RefinementDTO struct {
	Value      *float64 `yaml:"value" toml:"value"`
	HMin       *float64 `yaml:"hmin" toml:"hmin"`
	HMax       *float64 `yaml:"hmax" toml:"hmax"`
	LowerBound *float64 `yaml:"lower_bound" toml:"lower_bound"`
	UpperBound *float64 `yaml:"upper_bound" toml:"upper_bound"`

	Level         *float64 `yaml:"level" toml:"level"`
	ExpansionRate *float64 `yaml:"expansion_rate" toml:"expansion_rate"`
	TargetSize    *float64 `yaml:"target_size" toml:"target_size"`
}

type DriverDTO struct {
	SmoothIterations *int `yaml:"smooth_iterations" toml:"smooth_iterations"`
}

type OutputDTO struct {
	Path      string `yaml:"path" toml:"path"`
	Format    string `yaml:"format" toml:"format"`
	Overwrite *bool  `yaml:"overwrite" toml:"overwrite"`
	GeoJSON   string `yaml:"geojson" toml:"geojson"`
}
