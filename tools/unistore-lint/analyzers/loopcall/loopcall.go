// Package loopcall detects per-item store and index calls inside loops.
package loopcall

import (
	"go/ast"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

// Analyzer detects single-item calls inside loops that have a batch form.
var Analyzer = &analysis.Analyzer{
	Name:     "loopcall",
	Doc:      "detects single-item store and index calls inside loops that have a batch form",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

// batched maps single-item methods to the call that replaces them.
var batched = map[string]string{
	"Embed":          "EmbedBatch",
	"Upsert":         "UpsertBatch",
	"FindEntityByID": "FindEntitiesByIDs",
}

func run(pass *analysis.Pass) (any, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.RangeStmt)(nil),
		(*ast.ForStmt)(nil),
	}

	inspect.Preorder(nodeFilter, func(n ast.Node) {
		var body *ast.BlockStmt
		switch stmt := n.(type) {
		case *ast.RangeStmt:
			body = stmt.Body
		case *ast.ForStmt:
			// Loops without a condition are retry loops.
			if stmt.Cond == nil {
				return
			}
			body = stmt.Body
		}
		if body == nil {
			return
		}

		ast.Inspect(body, func(n ast.Node) bool {
			if _, ok := n.(*ast.FuncLit); ok {
				return false
			}
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			if batch, ok := batched[sel.Sel.Name]; ok {
				pass.Reportf(call.Pos(),
					"potential N+1: %s called inside loop - consider %s",
					sel.Sel.Name, batch)
			}
			return true
		})
	})

	return nil, nil
}
