package instrumentor

import (
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/chan-shaw/collafl-go/coverage"
	"github.com/chan-shaw/collafl-go/solver"
)

func TestNotifierSourceCarriesAllTables(t *testing.T) {
	conf := coverage.DefaultConfig()
	res := &solver.Result{
		EdgeSlots: map[solver.EdgeKey]uint32{
			{Cur: 9, Pred: 4}: 7,
			{Cur: 3, Pred: 8}: 2,
			{Cur: 3, Pred: 1}: 5,
		},
		SingleSlots: map[uint32]uint32{12: 0, 6: 11},
	}

	source, err := GenerateNotifierSource("z0a1b2c3d4e5", conf, res)
	qt.Assert(t, qt.IsNil(err))

	f, err := parser.ParseFile(token.NewFileSet(), "notifier.go", source, 0)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(f.Name.Name, "z0a1b2c3d4e5"))

	qt.Assert(t, qt.StringContains(source, "const MapSizePow2 = 16"))
	qt.Assert(t, qt.StringContains(source, "{3, 1}: 5,"))
	qt.Assert(t, qt.StringContains(source, "{3, 8}: 2,"))
	qt.Assert(t, qt.StringContains(source, "{9, 4}: 7,"))
	qt.Assert(t, qt.StringContains(source, "6: 11,"))
	qt.Assert(t, qt.StringContains(source, "12: 0,"))

	// Map entries appear in key order so two runs over the same program
	// produce byte-identical notifiers.
	qt.Assert(t, qt.IsTrue(strings.Index(source, "{3, 1}") < strings.Index(source, "{3, 8}")))
	qt.Assert(t, qt.IsTrue(strings.Index(source, "{3, 8}") < strings.Index(source, "{9, 4}")))
	qt.Assert(t, qt.IsTrue(strings.Index(source, "6: 11") < strings.Index(source, "12: 0")))
}

func TestNotifierSourceForEmptyResult(t *testing.T) {
	source, err := GenerateNotifierSource("zdeadbeef", coverage.DefaultConfig(), &solver.Result{})
	qt.Assert(t, qt.IsNil(err))

	_, err = parser.ParseFile(token.NewFileSet(), "notifier.go", source, 0)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.StringContains(source, "var EdgeSlots = map[[2]uint32]uint32{"))
	qt.Assert(t, qt.StringContains(source, "var SingleSlots = map[uint32]uint32{"))
}
