// Package analyzers provides all custom static analyzers for unistore.
package analyzers

import (
	"golang.org/x/tools/go/analysis"

	"github.com/ersonp/unistore/tools/unistore-lint/analyzers/loopcall"
	"github.com/ersonp/unistore/tools/unistore-lint/analyzers/tenantscope"
)

// All returns all analyzers to run.
func All() []*analysis.Analyzer {
	return []*analysis.Analyzer{
		loopcall.Analyzer,
		tenantscope.Analyzer,
	}
}
