package tui

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	tea "github.com/charmbracelet/bubbletea"
)

// safeModel keeps a panic in the progress view from killing the terminal mid-run.
// A panic during Update cancels the pipeline and fails the stage that was running;
// the runner's final message then ends the program normally.
type safeModel struct {
	m   model
	log *slog.Logger
}

var errViewPanic = errors.New("progress view crashed (see logs)")

func wrapSafe(m model, log *slog.Logger) safeModel {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return safeModel{m: m, log: log}
}

func (s safeModel) Init() tea.Cmd {
	return s.m.Init()
}

func (s safeModel) Update(msg tea.Msg) (tm tea.Model, cmd tea.Cmd) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic.recovered",
				"where", "tui.update",
				"msg", fmt.Sprintf("%T", msg),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)

			tm, cmd = s.recoverUpdate()
		}
	}()

	inner, c := s.m.Update(msg)

	if mm, ok := inner.(model); ok {
		s.m = mm
	} else if sm, ok := inner.(safeModel); ok {
		s = sm
	}

	return s, c
}

// recoverUpdate cancels the run and fails the stage in flight. It keeps listening
// so the runner's done message still reaches the model and quits the program.
func (s safeModel) recoverUpdate() (safeModel, tea.Cmd) {
	s.m.abortRunning(errViewPanic)
	if s.m.cancel != nil {
		s.m.cancel()
	}
	s.m.toast = "Unexpected error (see logs), cancelling…"
	if s.m.runCh == nil {
		return s, nil
	}
	return s, listenRunner(s.m.runCh)
}

func (s safeModel) View() (out string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic.recovered",
				"where", "tui.view",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			out = "Unexpected error (see logs)"
		}
	}()
	return s.m.View()
}

var _ tea.Model = (*safeModel)(nil)
