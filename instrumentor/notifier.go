package instrumentor

import (
	"fmt"
	"go/parser"
	"go/token"
	"sort"
	"strings"

	"github.com/chan-shaw/collafl-go/coverage"
	"github.com/chan-shaw/collafl-go/solver"
)

// GenerateNotifierSource renders the package that carries the computed
// slot tables into the instrumented build. Only data is generated here:
// the shim functions that consult these tables and touch the coverage area
// at run time belong to the shim package the caller supplies.
func GenerateNotifierSource(pkgName string, conf coverage.Config, res *solver.Result) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "// Code generated by collafl-go. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", pkgName)
	fmt.Fprintf(&b, "// MapSizePow2 fixes the coverage map at 1 << MapSizePow2 slots.\n")
	fmt.Fprintf(&b, "const MapSizePow2 = %d\n\n", conf.MapSizePow2)

	edges := make([]solver.EdgeKey, 0, len(res.EdgeSlots))
	for k := range res.EdgeSlots {
		edges = append(edges, k)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Cur != edges[j].Cur {
			return edges[i].Cur < edges[j].Cur
		}
		return edges[i].Pred < edges[j].Pred
	})
	fmt.Fprintf(&b, "// EdgeSlots maps (current key, predecessor key) pairs of deferred\n")
	fmt.Fprintf(&b, "// blocks to their exact coverage slots.\n")
	fmt.Fprintf(&b, "var EdgeSlots = map[[2]uint32]uint32{\n")
	for _, k := range edges {
		fmt.Fprintf(&b, "\t{%d, %d}: %d,\n", k.Cur, k.Pred, res.EdgeSlots[k])
	}
	fmt.Fprintf(&b, "}\n\n")

	singles := make([]uint32, 0, len(res.SingleSlots))
	for k := range res.SingleSlots {
		singles = append(singles, k)
	}
	sort.Slice(singles, func(i, j int) bool { return singles[i] < singles[j] })
	fmt.Fprintf(&b, "// SingleSlots maps a single-predecessor block's key to its slot.\n")
	fmt.Fprintf(&b, "var SingleSlots = map[uint32]uint32{\n")
	for _, k := range singles {
		fmt.Fprintf(&b, "\t%d: %d,\n", k, res.SingleSlots[k])
	}
	fmt.Fprintf(&b, "}\n")

	source := b.String()
	if _, err := parser.ParseFile(token.NewFileSet(), "notifier.go", source, 0); err != nil {
		return "", fmt.Errorf("generated notifier source does not parse: %v", err)
	}
	return source, nil
}
