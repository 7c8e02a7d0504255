package db

import (
	"fmt"
	"regexp"
	"sync"
)

// Identifier allow-list. Anything interpolated into SQL text (table names,
// column names, language codes) must pass through here first. Values never
// travel that way; they are always bound.

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var identRegistry = struct {
	sync.RWMutex
	tables  map[string]struct{}
	columns map[string]map[string]struct{}
}{
	tables:  make(map[string]struct{}),
	columns: make(map[string]map[string]struct{}),
}

// Language codes accepted for interpolation into JSON path expressions.
var allowedLanguages = map[string]struct{}{
	"en": {}, "ar": {}, "fr": {}, "de": {}, "es": {}, "it": {}, "zh": {}, "ru": {},
}

// RegisterTable adds a table and its columns to the allow-list. Packages
// owning schema call this from their init.
func RegisterTable(table string, columns ...string) {
	if !identPattern.MatchString(table) {
		panic(fmt.Sprintf("db: invalid table name registered: %q", table))
	}
	identRegistry.Lock()
	defer identRegistry.Unlock()

	identRegistry.tables[table] = struct{}{}
	cols, ok := identRegistry.columns[table]
	if !ok {
		cols = make(map[string]struct{})
		identRegistry.columns[table] = cols
	}
	for _, col := range columns {
		if !identPattern.MatchString(col) {
			panic(fmt.Sprintf("db: invalid column name registered: %q", col))
		}
		cols[col] = struct{}{}
	}
}

// SafeTable validates a table identifier against the allow-list.
func SafeTable(table string) (string, error) {
	identRegistry.RLock()
	defer identRegistry.RUnlock()

	if _, ok := identRegistry.tables[table]; !ok {
		return "", fmt.Errorf("table %q is not allow-listed", table)
	}
	return table, nil
}

// SafeColumn validates a column identifier for a given table.
func SafeColumn(table, column string) (string, error) {
	identRegistry.RLock()
	defer identRegistry.RUnlock()

	cols, ok := identRegistry.columns[table]
	if !ok {
		return "", fmt.Errorf("table %q is not allow-listed", table)
	}
	if _, ok := cols[column]; !ok {
		return "", fmt.Errorf("column %q is not allow-listed for table %q", column, table)
	}
	return column, nil
}

// SafeLanguage validates a language code for interpolation into JSON paths.
func SafeLanguage(code string) (string, error) {
	if _, ok := allowedLanguages[code]; !ok {
		return "", fmt.Errorf("language %q is not allow-listed", code)
	}
	return code, nil
}
