// Package instrumentor rewrites Go source so that every basic block reports
// its execution through a caller-supplied shim package, using coverage-map
// slots computed by the solver. One Instrumentor covers one compilation
// unit: all files added to it share a single flow graph, a single key space
// and a single slot space.
package instrumentor

import (
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/chan-shaw/collafl-go/common"
	"github.com/chan-shaw/collafl-go/coverage"
	"github.com/chan-shaw/collafl-go/graph"
	"github.com/chan-shaw/collafl-go/random"
	"github.com/chan-shaw/collafl-go/solver"
)

// ShimPackageAlias will be used to prevent any collisions between possible
// other packages the instrumented code imports. Underscore characters are
// considered bad style, which is why they are used here: a collision is
// less likely.
const ShimPackageAlias = "__collafl_instrumentation__"

// Names of the shim functions the rewriter calls into. Each one also moves
// the previous-location register to the block's key, which is why the key
// is always the first argument.
const (
	EnterCallback  = "VisitEnter"  // entry block: key only, owns no slot
	EdgeCallback   = "VisitEdge"   // solved block: key and its hash params
	LookupCallback = "VisitLookup" // deferred block: slot found in EdgeSlots
	SlotCallback   = "VisitSlot"   // single-predecessor block: exact slot
)

// Summary holds what a run did, for reporting.
type Summary struct {
	FilesInstrumented  int
	FilesSkipped       int
	BlocksInstrumented int
	BlocksSkipped      int
	SolvedBlocks       int
	UnsolvedBlocks     int
	MinUnsolvedRatio   float64
}

type sourceFile struct {
	path string
	ast  *ast.File
	skip bool
}

// Instrumentor accumulates parsed files, then instruments them all against
// one solver run.
type Instrumentor struct {
	conf      coverage.Config
	shimPkg   string
	fset      *token.FileSet
	graph     *graph.Graph
	anchors   map[*graph.Block]anchor
	files     []*sourceFile
	table     *SlotTable
	ratio     *rand.Rand
	logWriter *common.LogWriter

	// Result is populated by Instrument and feeds the notifier generator.
	Result  *solver.Result
	Summary Summary
}

// New creates an Instrumentor for one compilation unit. table may be nil
// when no slot-table output is wanted.
func New(conf coverage.Config, shimPkg string, table *SlotTable) *Instrumentor {
	return &Instrumentor{
		conf:      conf,
		shimPkg:   shimPkg,
		fset:      token.NewFileSet(),
		graph:     graph.New(),
		anchors:   map[*graph.Block]anchor{},
		table:     table,
		ratio:     rand.New(random.Source()),
		logWriter: common.GetLogWriter(),
		Summary:   Summary{MinUnsolvedRatio: 1},
	}
}

// AddFile parses path and merges its functions into the shared flow graph.
func (inst *Instrumentor) AddFile(path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return inst.AddSource(path, source)
}

// AddSource is AddFile for source already in memory. Files that interact
// with other languages are recorded but left untouched: AST rewriting would
// damage their export and linkname contracts.
func (inst *Instrumentor) AddSource(path string, source []byte) error {
	f, err := parser.ParseFile(inst.fset, path, source, parser.ParseComments)
	if err != nil {
		return err
	}

	if exportsFunctions(f) {
		inst.logWriter.Printf("File %s exports functions, and will not be instrumented", path)
		inst.files = append(inst.files, &sourceFile{path: path, skip: true})
		inst.Summary.FilesSkipped++
		return nil
	}
	if hasLinkname(f) {
		inst.logWriter.Printf("File %s exports linknames, and will not be instrumented", path)
		inst.files = append(inst.files, &sourceFile{path: path, skip: true})
		inst.Summary.FilesSkipped++
		return nil
	}

	trimComments(f, inst.fset)

	idx := len(inst.files)
	inst.files = append(inst.files, &sourceFile{path: path, ast: f})
	inst.collectFunctions(f, idx)
	return nil
}

// Instrument assigns keys, solves the slot assignment once for every file
// added so far, and returns the rewritten source per path. Files with
// nothing to instrument map to the empty string so the caller can simply
// copy the originals.
func (inst *Instrumentor) Instrument() (map[string]string, error) {
	inst.graph.AssignKeys(inst.conf.MapSize())

	res, err := solver.Solve(inst.graph, inst.conf)
	if err != nil {
		return nil, err
	}
	inst.Result = res
	inst.Summary.SolvedBlocks = res.Stats.SolvedBlocks
	inst.Summary.UnsolvedBlocks = res.Stats.UnsolvedBlocks
	inst.Summary.MinUnsolvedRatio = res.Stats.MinUnsolvedRatio

	params := make(map[*graph.Block]solver.HashParams, len(res.Solved))
	for _, s := range res.Solved {
		params[s.Block] = s.Params
	}

	plans := make([]map[ast.Stmt]ast.Stmt, len(inst.files))
	for i := range plans {
		plans[i] = map[ast.Stmt]ast.Stmt{}
	}
	for _, b := range inst.graph.Blocks {
		a, ok := inst.anchors[b]
		if !ok {
			inst.Summary.BlocksSkipped++
			continue
		}
		if inst.ratio.Intn(100) >= inst.conf.InstRatio {
			inst.Summary.BlocksSkipped++
			continue
		}
		plans[a.file][a.stmt] = inst.planBlock(b, a, params, res)
	}

	out := make(map[string]string, len(inst.files))
	for i, sf := range inst.files {
		if sf.skip {
			out[sf.path] = ""
			continue
		}
		source, err := inst.rewriteFile(sf, plans[i])
		if err != nil {
			return nil, err
		}
		out[sf.path] = source
	}
	return out, nil
}

// planBlock decides which shim call a block gets and records the slot-table
// rows that document the decision.
func (inst *Instrumentor) planBlock(b *graph.Block, a anchor, params map[*graph.Block]solver.HashParams, res *solver.Result) ast.Stmt {
	pos := inst.fset.Position(a.stmt.Pos())
	row := SlotRow{Path: pos.Filename, Function: a.fn, Line: pos.Line, Key: b.Key}

	switch {
	case len(b.Preds) == 0:
		row.Kind = KindEnter
		inst.writeRow(row)
		return shimCall(EnterCallback, b.Key)

	case len(b.Preds) == 1:
		row.Kind = KindSingle
		row.Slot = res.SingleSlots[b.Key]
		inst.writeRow(row)
		return shimCall(SlotCallback, b.Key, row.Slot)

	default:
		if p, ok := params[b]; ok {
			row.Kind = KindSolved
			row.Params = p
			inst.writeRow(row)
			return shimCall(EdgeCallback, b.Key, uint32(p.X), uint32(p.Y), uint32(p.Z))
		}
		for _, pred := range b.Preds {
			row.Kind = KindLookup
			row.PredKey = pred.Key
			row.Slot = res.EdgeSlots[solver.EdgeKey{Cur: b.Key, Pred: pred.Key}]
			inst.writeRow(row)
		}
		return shimCall(LookupCallback, b.Key)
	}
}

func (inst *Instrumentor) writeRow(row SlotRow) {
	if inst.table == nil {
		return
	}
	if err := inst.table.WriteRow(row); err != nil {
		inst.logWriter.Fatalf("Could not write slot table line: %s", err.Error())
	}
}

// rewriteFile inserts the planned callbacks in front of their anchor
// statements. Anchors that do not sit in a statement list (an if Init, or
// the implicit return the CFG builder fabricates) cannot take an insertion
// and are counted as skipped.
func (inst *Instrumentor) rewriteFile(sf *sourceFile, plan map[ast.Stmt]ast.Stmt) (string, error) {
	planned := len(plan)
	inserted := 0
	astutil.Apply(sf.ast, func(c *astutil.Cursor) bool {
		stmt, ok := c.Node().(ast.Stmt)
		if !ok {
			return true
		}
		call, wanted := plan[stmt]
		if !wanted {
			return true
		}
		delete(plan, stmt)
		if c.Index() < 0 {
			return true
		}
		c.InsertBefore(call)
		inserted++
		return true
	}, nil)

	inst.Summary.BlocksSkipped += planned - inserted
	if inserted == 0 {
		if inst.logWriter.VerboseLevel(1) {
			inst.logWriter.Printf("File %s has no code to be instrumented, and will simply be copied", sf.path)
		}
		return "", nil
	}
	inst.Summary.BlocksInstrumented += inserted
	inst.Summary.FilesInstrumented++

	return inst.formatInstrumentedAst(sf.path, sf.ast)
}

// SummarizeWork logs the run's diagnostic scalars.
func (inst *Instrumentor) SummarizeWork() {
	s := inst.Summary
	numFiles := len(inst.files)
	inst.logWriter.Printf("%d '.go' %s scanned, %d %s instrumented, %d %s skipped",
		numFiles, common.Pluralize(numFiles, "file"),
		s.FilesInstrumented, common.Pluralize(s.FilesInstrumented, "file"),
		s.FilesSkipped, common.Pluralize(s.FilesSkipped, "file"))
	inst.logWriter.Printf("Instrumented %d %s (%d solved, %d deferred, min unsolved ratio %.4f)",
		s.BlocksInstrumented, common.Pluralize(s.BlocksInstrumented, "location"),
		s.SolvedBlocks, s.UnsolvedBlocks, s.MinUnsolvedRatio)
}

func shimCall(name string, args ...uint32) ast.Stmt {
	call := &ast.CallExpr{
		Fun: &ast.SelectorExpr{
			X:   ast.NewIdent(ShimPackageAlias),
			Sel: ast.NewIdent(name),
		},
	}
	for _, a := range args {
		call.Args = append(call.Args, &ast.BasicLit{
			Kind:  token.INT,
			Value: strconv.FormatUint(uint64(a), 10),
		})
	}
	return &ast.ExprStmt{X: call}
}

func (inst *Instrumentor) formatInstrumentedAst(inputPath string, astFile *ast.File) (string, error) {
	astutil.AddNamedImport(inst.fset, astFile, ShimPackageAlias, inst.shimPkg)

	writer := strings.Builder{}
	if err := format.Node(&writer, inst.fset, astFile); err != nil {
		inst.logWriter.Printf("Error: Could not write instrumented AST from %s: %v", inputPath, err)
		return "", err
	}

	source := writer.String()
	if _, err := parser.ParseFile(token.NewFileSet(), inputPath, source, parser.ParseComments); err != nil {
		inst.logWriter.Printf("Error: Instrumented source for %s could not be parsed back: %s", inputPath, err)
		return "", err
	}
	return source, nil
}

// isFunctionExported checks the comments preceding a function declaration
// for an export directive.
func isFunctionExported(group *ast.CommentGroup, name string) bool {
	if group == nil {
		return false
	}
	// No characters may precede or follow the directive.
	exportDeclaration := "//export " + name
	for _, comment := range group.List {
		if comment.Text == exportDeclaration {
			return true
		}
	}
	return false
}

// exportsFunctions warns the caller that the .go file includes export
// directives in comments, which AST-rewriting may damage.
func exportsFunctions(file *ast.File) bool {
	found := false
	ast.Inspect(file, func(n ast.Node) bool {
		if decl, ok := n.(*ast.FuncDecl); ok {
			if isFunctionExported(decl.Doc, decl.Name.Name) {
				found = true
				return false
			}
		}
		return !found
	})
	return found
}

// hasLinkname lets us exclude .go files that interact with other languages.
func hasLinkname(file *ast.File) bool {
	found := false
	ast.Inspect(file, func(n ast.Node) bool {
		if decl, ok := n.(*ast.FuncDecl); ok && decl.Doc != nil {
			for _, comment := range decl.Doc.List {
				if strings.Contains(comment.Text, "go:linkname") {
					found = true
					return false
				}
			}
		}
		return !found
	})
	return found
}

// trimComments drops every comment except column-1 compiler directives;
// go/printer cannot reliably reattach the rest once statements have been
// inserted between them.
func trimComments(file *ast.File, fset *token.FileSet) {
	var keep []*ast.CommentGroup
	for _, group := range file.Comments {
		var list []*ast.Comment
		for _, comment := range group.List {
			if strings.HasPrefix(comment.Text, "//go:") && fset.Position(comment.Slash).Column == 1 {
				list = append(list, comment)
			}
		}
		if list != nil {
			keep = append(keep, &ast.CommentGroup{List: list})
		}
	}
	file.Comments = keep
}
