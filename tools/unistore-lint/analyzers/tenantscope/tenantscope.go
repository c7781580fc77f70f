// Package tenantscope detects SQL on tenant tables that is not scoped by
// workspace_id.
package tenantscope

import (
	"go/ast"
	"go/constant"
	"regexp"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

// Analyzer reports constant SQL statements that read or write a tenant
// table without mentioning workspace_id.
var Analyzer = &analysis.Analyzer{
	Name:     "tenantscope",
	Doc:      "detects SQL on tenant tables that is not scoped by workspace_id",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

var tableRef = regexp.MustCompile(`\b(?:FROM|INTO|UPDATE|JOIN)\s+(entities|relationships|activities|entity_types)\b`)

func run(pass *analysis.Pass) (any, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.BasicLit)(nil),
		(*ast.BinaryExpr)(nil),
	}

	inspect.Nodes(nodeFilter, func(n ast.Node, push bool) bool {
		if !push {
			return true
		}
		if strings.HasSuffix(pass.Fset.File(n.Pos()).Name(), "_test.go") {
			return false
		}

		expr := n.(ast.Expr)
		tv, ok := pass.TypesInfo.Types[expr]
		if !ok || tv.Value == nil || tv.Value.Kind() != constant.String {
			return true
		}

		check(pass, expr, constant.StringVal(tv.Value))
		// A constant expression is checked as a whole.
		return false
	})

	return nil, nil
}

func check(pass *analysis.Pass, expr ast.Expr, sql string) {
	m := tableRef.FindStringSubmatch(sql)
	if m == nil {
		return
	}
	if strings.Contains(sql, "workspace_id") {
		return
	}
	// The predicate is appended at run time.
	if strings.HasSuffix(strings.TrimSpace(sql), "WHERE") {
		return
	}
	pass.Reportf(expr.Pos(), "SQL on %s is not scoped by workspace_id", m[1])
}
