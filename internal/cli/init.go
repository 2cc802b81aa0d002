package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aalvaropc/bathymesh/internal/infra/fsworkspace"
	"github.com/aalvaropc/bathymesh/internal/usecase"
)

func initCmd() *cobra.Command {
	var path string
	var force bool

	c := &cobra.Command{
		Use:   "init",
		Short: "Create a bathymesh workspace with a default pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("invalid workspace path: %w", err)
			}

			uc := usecase.NewInitWorkspace(fsworkspace.NewInitializer())
			if err := uc.Execute(root, force); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Workspace ready at %s\n", root)
			fmt.Fprintln(cmd.OutOrStdout(), "Place your raster next to bathymesh.yaml and run `bathymesh run`.")
			return nil
		},
	}

	c.Flags().StringVar(&path, "path", ".", "Directory to initialise")
	c.Flags().BoolVar(&force, "force", false, "Overwrite existing template files")
	return c
}
