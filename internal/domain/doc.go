// Package domain contains the core domain model for bathymesh.
//
// The domain is format- and persistence-agnostic: it does not depend on YAML parsing,
// raster decoding, or the filesystem. Infra/adapters map into/from these types.
package domain
