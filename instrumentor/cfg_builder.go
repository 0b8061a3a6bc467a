package instrumentor

import (
	"go/ast"

	"golang.org/x/tools/go/cfg"

	"github.com/chan-shaw/collafl-go/common"
	"github.com/chan-shaw/collafl-go/graph"
)

// anchor remembers where a basic block can be instrumented: the first
// statement of the block, the function it belongs to, and which source file
// it came from.
type anchor struct {
	stmt ast.Stmt
	fn   string
	file int
}

// collectFunctions builds one flow graph per function body in the file and
// merges them all into the run's shared graph. Function literals get their
// own graph: the enclosing function's CFG treats them as opaque expressions.
func (inst *Instrumentor) collectFunctions(f *ast.File, fileIdx int) {
	ast.Inspect(f, func(n ast.Node) bool {
		switch fn := n.(type) {
		case *ast.FuncDecl:
			if fn.Body == nil {
				return false
			}
			if fn.Name.Name == "init" {
				// init runs regardless of what the fuzzer does, so
				// instrumenting it is just noise.
				return false
			}
			inst.addFunctionGraph(fn.Body, fn.Name.Name, fileIdx)
		case *ast.FuncLit:
			inst.addFunctionGraph(fn.Body, common.NAME_NOT_AVAILABLE, fileIdx)
		}
		return true
	})
}

// mayReturn is handed to the CFG builder; every call is conservatively
// assumed to return, which only ever adds edges.
func mayReturn(*ast.CallExpr) bool { return true }

func (inst *Instrumentor) addFunctionGraph(body *ast.BlockStmt, fn string, fileIdx int) {
	c := cfg.New(body, mayReturn)

	blocks := make(map[*cfg.Block]*graph.Block, len(c.Blocks))
	for _, b := range c.Blocks {
		if !b.Live {
			continue
		}
		nb := inst.graph.NewBlock()
		blocks[b] = nb
		if stmt := anchorStmt(b); stmt != nil {
			inst.anchors[nb] = anchor{stmt: stmt, fn: fn, file: fileIdx}
		}
	}
	for _, b := range c.Blocks {
		nb, ok := blocks[b]
		if !ok {
			continue
		}
		for _, succ := range b.Succs {
			if sb, ok := blocks[succ]; ok {
				inst.graph.AddEdge(nb, sb)
			}
		}
	}
}

// anchorStmt picks the statement the rewriter will insert a callback in
// front of. Blocks whose nodes are all expressions (a loop condition, say)
// have nowhere to hang a statement and stay uninstrumented.
func anchorStmt(b *cfg.Block) ast.Stmt {
	for _, n := range b.Nodes {
		if stmt, ok := n.(ast.Stmt); ok {
			return stmt
		}
	}
	return nil
}
