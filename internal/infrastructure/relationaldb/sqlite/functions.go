package sqlite

import (
	"database/sql/driver"
	"fmt"

	sqlitedriver "modernc.org/sqlite"

	"github.com/ersonp/unistore/internal/domain/search"
)

// containsFunc is the SQL name of search.Contains. SQLite's lower() only
// folds ASCII, so text search goes through Go instead.
const containsFunc = "unistore_contains"

func init() {
	if err := sqlitedriver.RegisterDeterministicScalarFunction(containsFunc, 2, containsText); err != nil {
		panic(fmt.Sprintf("registering %s: %v", containsFunc, err))
	}
}

// containsText implements unistore_contains(haystack, term). NULL arguments
// never match.
func containsText(_ *sqlitedriver.FunctionContext, args []driver.Value) (driver.Value, error) {
	haystack, ok := textArg(args[0])
	if !ok {
		return int64(0), nil
	}
	term, ok := textArg(args[1])
	if !ok {
		return int64(0), nil
	}
	if search.Contains(haystack, term) {
		return int64(1), nil
	}
	return int64(0), nil
}

func textArg(v driver.Value) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}
