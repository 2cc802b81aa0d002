package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aalvaropc/bathymesh/internal/domain"
)

func listenRunner(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return runnerDoneMsg{err: errors.New("runner channel closed")}
		}
		return msg
	}
}

// startRunAsync runs the pipeline on its own goroutine. Stage events and the final
// result arrive on the returned channel, in order.
func startRunAsync(ctx context.Context, deps Deps) (chan tea.Msg, tea.Cmd) {
	ch := make(chan tea.Msg, 64)

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	go func() {
		defer close(ch)
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic.recovered", "where", "tui.runner", "panic", fmt.Sprint(r))
				ch <- runnerDoneMsg{err: fmt.Errorf("runner panic: %v", r)}
			}
		}()

		if deps.Start == nil {
			ch <- runnerDoneMsg{err: errors.New("no pipeline to run")}
			return
		}

		observe := func(ev domain.StageEvent) {
			select {
			case ch <- stageEventMsg(ev):
			case <-ctx.Done():
			}
		}

		run, id, err := deps.Start(ctx, observe)
		if err != nil {
			log.Error("tui.run.failed", "err", err, "saved_id", id)
		} else {
			log.Info("tui.run.ok", "saved_id", id, "output", run.OutputPath)
		}
		ch <- runnerDoneMsg{run: run, id: id, err: err}
	}()

	return ch, listenRunner(ch)
}
