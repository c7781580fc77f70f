// unistore-lint runs the project's custom static analyzers.
package main

import (
	"golang.org/x/tools/go/analysis/multichecker"

	"github.com/ersonp/unistore/tools/unistore-lint/analyzers"
)

func main() {
	multichecker.Main(analyzers.All()...)
}
