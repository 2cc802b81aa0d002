package tui

import "github.com/aalvaropc/bathymesh/internal/domain"

type stageEventMsg domain.StageEvent

type runnerDoneMsg struct {
	run domain.RunResult
	id  string
	err error
}
