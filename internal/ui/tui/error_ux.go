package tui

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aalvaropc/bathymesh/internal/domain"
)

var reLine = regexp.MustCompile(`(?i)\bline\s+(\d+)\b`)

// userMessage turns a run error into one short line for the summary card.
func userMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "Run cancelled"
	}

	msg := kindMessage(err)
	if stage, ok := domain.FailedStage(err); ok {
		return msg + " (stage " + stage + ")"
	}
	return msg
}

func kindMessage(err error) string {
	var oe *domain.OpError
	if !errors.As(err, &oe) {
		if looksLikeYAMLProblem(err.Error()) {
			if line := extractLine(err.Error()); line != "" {
				return "Invalid YAML line " + line
			}
			return "Invalid YAML"
		}
		return "Unexpected error (see logs)"
	}

	base := ""
	if strings.TrimSpace(oe.Path) != "" {
		base = filepath.Base(oe.Path)
	}

	switch oe.Kind {
	case domain.KindNotFound:
		if strings.Contains(oe.Op, "workspacefinder") {
			return "Workspace not found"
		}
		if base != "" {
			return "File not found: " + base
		}
		return "Not found"

	case domain.KindInvalidConfig:
		if base == "" {
			base = "config"
		}
		if line := extractLine(err.Error()); line != "" {
			return "Invalid config at " + base + " line " + line
		}
		return "Invalid config at " + base

	case domain.KindDegenerate:
		return "Nothing to mesh: " + oe.Err.Error()

	case domain.KindAlreadyExists:
		if base == "" {
			base = "output"
		}
		return base + " already exists (set output.overwrite: true)"

	default:
		return "Unexpected error (see logs)"
	}
}

func looksLikeYAMLProblem(s string) bool {
	ls := strings.ToLower(s)
	return strings.Contains(ls, "yaml:") || strings.Contains(ls, "did not find expected") || strings.Contains(ls, "cannot unmarshal")
}

func extractLine(s string) string {
	m := reLine.FindStringSubmatch(s)
	if len(m) == 2 {
		return m[1]
	}
	return ""
}
