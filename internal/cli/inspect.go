package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aalvaropc/bathymesh/internal/geo/mesh"
	"github.com/aalvaropc/bathymesh/internal/geo/raster"
	"github.com/aalvaropc/bathymesh/internal/infra/meshio"
)

func inspectCmd() *cobra.Command {
	var geographic bool

	c := &cobra.Command{
		Use:   "inspect <mesh.2dm>",
		Short: "Print statistics for a 2dm mesh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := meshio.Read2DM(args[0])
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return err
			}
			printMeshStats(cmd.OutOrStdout(), args[0], m, geographic)
			return nil
		},
	}

	c.Flags().BoolVar(&geographic, "geographic", false, "Coordinates are lon/lat degrees; report edge lengths in metres")
	return c
}

func printMeshStats(w io.Writer, path string, m *mesh.Mesh, geographic bool) {
	metric := raster.Unit
	if geographic && len(m.Nodes) > 0 {
		c := m.Bound().Center()
		metric = raster.MetresPerDegree(c[1], c[0])
	}
	s := m.Stats(metric)
	b := m.Bound()

	fmt.Fprintf(w, "Mesh:      %s\n", path)
	fmt.Fprintf(w, "Nodes:     %s\n", humanize.Comma(int64(s.Nodes)))
	fmt.Fprintf(w, "Elements:  %s\n", humanize.Comma(int64(s.Elements)))
	fmt.Fprintf(w, "Boundary:  %s edges\n", humanize.Comma(int64(len(m.BoundaryEdges()))))
	fmt.Fprintf(w, "Extent:    x %g .. %g, y %g .. %g\n", b.Min[0], b.Max[0], b.Min[1], b.Max[1])
	fmt.Fprintf(w, "Values:    %g .. %g\n", s.MinValue, s.MaxValue)
	if s.Unvalued > 0 {
		fmt.Fprintf(w, "Unvalued:  %s nodes\n", humanize.Comma(int64(s.Unvalued)))
	}
	fmt.Fprintf(w, "Mean edge: %s\n", humanize.FormatFloat("#,###.##", s.MeanEdge))
}
