package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aalvaropc/bathymesh/internal/usecase"
)

func validateCmd() *cobra.Command {
	var workspace string
	var pipeline string
	var checkRasters bool

	c := &cobra.Command{
		Use:   "validate",
		Short: "Validate a pipeline without meshing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			pipelinePath, err := resolvePipelinePath(ws, pipeline)
			if err != nil {
				return err
			}

			uc := usecase.NewValidatePipeline(ws.pipelines, ws.rasters)
			report, err := uc.Execute(cmd.Context(), pipelinePath, checkRasters)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, w := range report.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			fmt.Fprintln(out, "OK")
			return nil
		},
	}

	c.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	c.Flags().StringVarP(&pipeline, "pipeline", "p", "", "Pipeline name or path (optional; defaults to the workspace default pipeline)")
	c.Flags().BoolVar(&checkRasters, "check-rasters", false, "Also load the rasters and check their coverage")

	return c
}
