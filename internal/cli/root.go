package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aalvaropc/bathymesh/internal/infra/logger"
	"github.com/aalvaropc/bathymesh/internal/infra/workspacefinder"
)

func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool
	var cleanup func() error

	cmd := &cobra.Command{
		Use:          "bathymesh",
		Short:        "bathymesh builds unstructured coastal meshes from elevation rasters",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			wd, err := os.Getwd()
			if err != nil {
				wd = "."
			}
			wd, _ = filepath.Abs(wd)

			logRoot := wd
			if root, ferr := workspacefinder.NewFinder().FindRoot(wd); ferr == nil && root != "" {
				logRoot = root
			}

			cleanup, _ = logger.Setup(logger.Config{
				Root:  logRoot,
				Debug: debug,
			})
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if cleanup != nil {
				return cleanup()
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose logging to .bathymesh/logs/bathymesh.log")

	cmd.AddCommand(
		runCmd(),
		validateCmd(),
		pipelinesCmd(),
		initCmd(),
		inspectCmd(),
		versionCmd(),
	)
	return cmd
}
