package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func pipelinesCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "pipelines",
		Short: "Manage pipelines in a workspace",
	}

	c.AddCommand(pipelinesListCmd())
	return c
}

func pipelinesListCmd() *cobra.Command {
	var workspace string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pipelines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			refs, err := ws.pipelines.ListPipelines(ws.root)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(refs) == 0 {
				fmt.Fprintln(out, "(no pipelines found)")
				return nil
			}

			fmt.Fprintf(out, "Workspace: %s\n\n", ws.root)
			for _, r := range refs {
				rel, _ := filepath.Rel(ws.root, r.Path)
				mark := " "
				if r.Name == ws.cfg.Defaults.Pipeline {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s  (%s)\n", mark, r.Name, rel)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	return cmd
}
