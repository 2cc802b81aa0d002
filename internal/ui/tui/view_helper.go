package tui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/aalvaropc/bathymesh/internal/domain"
)

func clampString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))

	n := 0
	for _, r := range s {
		if n >= maxLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String() + "…"
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func renderSummary(run domain.RunResult, id string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Pipeline: %s\n", run.PipelineName)
	if run.OutputPath != "" {
		fmt.Fprintf(&b, "Output:   %s\n", run.OutputPath)
	}
	if run.GeomPath != "" {
		fmt.Fprintf(&b, "Domain:   %s\n", run.GeomPath)
	}
	if run.Mesh.Nodes > 0 {
		fmt.Fprintf(&b, "Mesh:     %s nodes, %s elements\n",
			humanize.Comma(int64(run.Mesh.Nodes)), humanize.Comma(int64(run.Mesh.Elements)))
		fmt.Fprintf(&b, "Values:   %s .. %s (mean edge %s m)\n",
			humanize.FormatFloat("#,###.##", run.Mesh.MinValue),
			humanize.FormatFloat("#,###.##", run.Mesh.MaxValue),
			humanize.FormatFloat("#,###.#", run.Mesh.MeanEdge))
		if run.Mesh.Unvalued > 0 {
			fmt.Fprintf(&b, "Unvalued: %s nodes\n", humanize.Comma(int64(run.Mesh.Unvalued)))
		}
	}
	for _, in := range run.Inputs {
		fmt.Fprintf(&b, "Input:    %s (%s)\n", in.Path, humanize.IBytes(uint64(in.Size)))
	}
	if total := run.Total(); total > 0 {
		fmt.Fprintf(&b, "Took:     %s\n", formatDuration(total))
	}
	if id != "" {
		fmt.Fprintf(&b, "Saved:    %s\n", id)
	}
	return strings.TrimRight(b.String(), "\n")
}
