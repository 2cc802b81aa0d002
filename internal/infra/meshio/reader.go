package meshio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/aalvaropc/bathymesh/internal/domain"
	"github.com/aalvaropc/bathymesh/internal/geo/mesh"
	"github.com/aalvaropc/bathymesh/internal/geo/raster"
)

// Read2DM loads the triangles and nodes of a 2dm file. Other cards are ignored.
// Node ids may be sparse; they are renumbered in file order.
func Read2DM(path string) (*mesh.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.OpError{Op: "meshio.read", Kind: domain.KindNotFound, Path: path, Err: err}
	}
	defer f.Close()

	type elem struct {
		line int
		ids  [3]int
	}
	var (
		nodes  []orb.Point
		values []float64
		elems  []elem
		index  = map[int]int{}
	)

	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "ND":
			if len(fields) < 5 {
				return nil, parseErr(path, line, "ND needs id x y z")
			}
			nums, err := floats(fields[1:5])
			if err != nil {
				return nil, parseErr(path, line, err.Error())
			}
			id := int(nums[0])
			if _, dup := index[id]; dup {
				return nil, parseErr(path, line, fmt.Sprintf("duplicate node %d", id))
			}
			index[id] = len(nodes)
			nodes = append(nodes, orb.Point{nums[1], nums[2]})
			values = append(values, nums[3])
		case "E3T":
			if len(fields) < 5 {
				return nil, parseErr(path, line, "E3T needs id n1 n2 n3")
			}
			var e elem
			e.line = line
			for k := 0; k < 3; k++ {
				v, err := strconv.Atoi(fields[2+k])
				if err != nil {
					return nil, parseErr(path, line, err.Error())
				}
				e.ids[k] = v
			}
			elems = append(elems, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &domain.OpError{Op: "meshio.read", Kind: domain.KindExecution, Path: path, Err: err}
	}

	tris := make([][3]int, len(elems))
	for i, e := range elems {
		for k, id := range e.ids {
			n, ok := index[id]
			if !ok {
				return nil, parseErr(path, e.line, fmt.Sprintf("unknown node %d", id))
			}
			tris[i][k] = n
		}
	}

	m := mesh.New(nodes, tris, raster.CRS{})
	for i, v := range values {
		if v != NoValue {
			m.Values[i] = v
		}
	}
	return m, nil
}

func floats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseErr(path string, line int, msg string) error {
	return &domain.OpError{
		Op:   "meshio.read",
		Kind: domain.KindInvalidConfig,
		Path: path,
		Err:  fmt.Errorf("line %d: %s", line, msg),
	}
}
