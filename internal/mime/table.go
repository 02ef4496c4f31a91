// Package mime maps file extensions to the Content-Type sent for them.
package mime

import "strings"

// defaultTypes is the built-in extension table. Keys carry no leading dot.
var defaultTypes = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"css":  "text/css",
	"js":   "text/javascript",
	"json": "application/json",
	"txt":  "text/plain",
	"svg":  "image/svg+xml",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"ico":  "image/x-icon",
}

// DefaultTypes returns a copy of the built-in extension table.
func DefaultTypes() map[string]string {
	types := make(map[string]string, len(defaultTypes))
	for ext, typ := range defaultTypes {
		types[ext] = typ
	}
	return types
}

// Table is a read-only extension to content-type mapping.
// It is safe for concurrent use since nothing mutates it after New.
type Table struct {
	types map[string]string
}

// New builds a table from the built-in types with extra layered on top.
// A leading dot on an extra key is ignored, so ".md" and "md" are the same entry.
func New(extra map[string]string) *Table {
	types := make(map[string]string, len(defaultTypes)+len(extra))
	for ext, typ := range defaultTypes {
		types[ext] = typ
	}
	for ext, typ := range extra {
		ext = strings.TrimPrefix(ext, ".")
		if ext == "" || typ == "" {
			continue
		}
		types[ext] = typ
	}
	return &Table{types: types}
}

// Default returns a table holding only the built-in types.
func Default() *Table {
	return New(nil)
}

// Lookup returns the content type registered for ext.
// The comparison is case-sensitive: "HTML" is not "html".
func (t *Table) Lookup(ext string) (string, bool) {
	typ, ok := t.types[ext]
	return typ, ok
}

// Len reports the number of registered extensions.
func (t *Table) Len() int {
	return len(t.types)
}
