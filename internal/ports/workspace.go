package ports

import "github.com/aalvaropc/bathymesh/internal/domain"

type WorkspaceInitializer interface {
	Init(spec domain.WorkspaceSpec, force bool) error
}
