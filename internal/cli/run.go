package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/infra/logger"
	"github.com/aalvaropc/bathymesh/internal/ports"
	"github.com/aalvaropc/bathymesh/internal/ui/tui"
	"github.com/aalvaropc/bathymesh/internal/usecase"
)

func runCmd() *cobra.Command {
	var workspace string
	var pipeline string
	var noSave bool
	var format string
	var interactive bool
	var overwrite bool

	c := &cobra.Command{
		Use:   "run",
		Short: "Run a mesh pipeline from a bathymesh workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "pretty" && format != "json" && format != "" {
				return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
			}

			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			pipelinePath, err := resolvePipelinePath(ws, pipeline)
			if err != nil {
				return err
			}

			spec, err := ws.pipelines.LoadPipeline(pipelinePath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("overwrite") {
				spec.Output.Overwrite = overwrite
			}

			var store ports.ArtifactStore = ws.store
			if noSave {
				store = nil
			}

			start := func(ctx context.Context, observe func(domain.StageEvent)) (domain.RunResult, string, error) {
				uc := usecase.NewBuildMesh(ws.meshDeps(), store,
					usecase.WithLogger(logger.L()),
					usecase.WithObserver(observe),
				)
				return uc.ExecuteSpec(ctx, spec, pipelinePath)
			}

			if interactive {
				_, _, err := tui.Run(tui.Deps{
					Pipeline: spec.Name,
					Stages:   usecase.PlannedStages(spec),
					Start:    start,
					Logger:   logger.L(),
				})
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				run, runID, err := start(cmd.Context(), func(domain.StageEvent) {})
				if perr := printRun(out, run, runID, format); perr != nil && err == nil {
					return perr
				}
				return err
			}

			// Pretty output streams one line per finished stage while the run is in flight.
			fmt.Fprintf(out, "Pipeline: %s\n\n", spec.Name)
			run, runID, err := start(cmd.Context(), func(ev domain.StageEvent) {
				printStageEvent(out, ev)
			})
			fmt.Fprintln(out)
			printPrettySummary(out, run, runID)
			return err
		},
	}

	c.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	c.Flags().StringVarP(&pipeline, "pipeline", "p", "", "Pipeline name or path (optional; defaults to the workspace default pipeline)")
	c.Flags().BoolVar(&noSave, "no-save", false, "Do not save run artifact under runs/")
	c.Flags().StringVar(&format, "format", "pretty", "Output format: pretty|json")
	c.Flags().BoolVar(&interactive, "tui", false, "Show live stage progress")
	c.Flags().BoolVar(&overwrite, "overwrite", false, "Override output.overwrite from the pipeline")

	return c
}

func printRun(w io.Writer, run domain.RunResult, runID string, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		payload := map[string]any{
			"run_id": runID,
			"run":    run,
		}
		return enc.Encode(payload)
	case "pretty", "":
		printPrettyRun(w, run, runID)
		return nil
	default:
		return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
	}
}

func printPrettyRun(w io.Writer, run domain.RunResult, runID string) {
	fmt.Fprintf(w, "Pipeline: %s\n\n", run.PipelineName)
	for _, s := range run.Stages {
		printStageLine(w, s.Name, s.DurationMS, s.Error)
	}
	if len(run.Stages) > 0 {
		fmt.Fprintln(w)
	}
	printPrettySummary(w, run, runID)
}

// printStageEvent prints finished stages; running events are skipped.
func printStageEvent(w io.Writer, ev domain.StageEvent) {
	if ev.Status != domain.StageDone && ev.Status != domain.StageFailed {
		return
	}
	msg := ""
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	printStageLine(w, ev.Name, float64(ev.Duration)/float64(time.Millisecond), msg)
}

func printStageLine(w io.Writer, name string, ms float64, errMsg string) {
	mark := "✓"
	if errMsg != "" {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %-24s %8.1fms\n", mark, name, ms)
	if errMsg != "" {
		fmt.Fprintf(w, "  error: %s\n", errMsg)
	}
}

func printPrettySummary(w io.Writer, run domain.RunResult, runID string) {
	if !run.StartedAt.IsZero() {
		fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Duration: %s\n", run.Total().Round(time.Millisecond))
	if runID != "" {
		fmt.Fprintf(w, "Run ID:   %s\n", runID)
	}

	for _, in := range run.Inputs {
		fmt.Fprintf(w, "Input:    %s (%s, blake3 %s)\n", in.Path, humanize.IBytes(uint64(in.Size)), shortHash(in.BLAKE3))
	}

	if run.Failed() {
		if run.Error != "" {
			fmt.Fprintf(w, "FAILED: %s\n", run.Error)
		} else {
			fmt.Fprintln(w, "FAILED")
		}
		return
	}

	if run.Mesh.Nodes > 0 {
		fmt.Fprintf(w, "Mesh:     %s nodes, %s elements, mean edge %s m\n",
			humanize.Comma(int64(run.Mesh.Nodes)),
			humanize.Comma(int64(run.Mesh.Elements)),
			humanize.FormatFloat("#,###.#", run.Mesh.MeanEdge))
		fmt.Fprintf(w, "Values:   %g .. %g", run.Mesh.MinValue, run.Mesh.MaxValue)
		if run.Mesh.Unvalued > 0 {
			fmt.Fprintf(w, " (%s unvalued)", humanize.Comma(int64(run.Mesh.Unvalued)))
		}
		fmt.Fprintln(w)
	}
	if run.OutputPath != "" {
		fmt.Fprintf(w, "Output:   %s%s\n", run.OutputPath, fileSize(run.OutputPath))
	}
	if run.GeomPath != "" {
		fmt.Fprintf(w, "Domain:   %s%s\n", run.GeomPath, fileSize(run.GeomPath))
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func fileSize(path string) string {
	st, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return " (" + humanize.IBytes(uint64(st.Size())) + ")"
}
