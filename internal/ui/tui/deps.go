package tui

import (
	"context"
	"log/slog"

	"github.com/aalvaropc/bathymesh/internal/domain"
)

// StartFunc runs the pipeline, reporting each stage through observe.
type StartFunc func(ctx context.Context, observe func(domain.StageEvent)) (domain.RunResult, string, error)

type Deps struct {
	Pipeline string
	Stages   []string
	Start    StartFunc

	Logger *slog.Logger
}
