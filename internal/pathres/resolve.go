// Package pathres turns a raw request path into a path under the content root.
//
// Resolution happens in two steps. Resolve is purely textual: it normalizes
// separators, strips parent-directory markers and classifies the request as a
// file or a directory. Locate then joins the cleaned path onto the content
// root and rejects anything that would land outside it. Neither step touches
// the filesystem.
package pathres

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned by Locate when a path would escape the content root.
var ErrOutsideRoot = errors.New("path escapes content root")

// Kind tells a file request apart from a directory request.
type Kind int

const (
	// File is a request whose last segment names a file, e.g. /docs/a.html.
	File Kind = iota
	// Directory is a request ending in a separator, e.g. /docs/.
	Directory
)

func (k Kind) String() string {
	if k == Directory {
		return "directory"
	}
	return "file"
}

// Clean is a request path after separator normalization and traversal stripping.
type Clean struct {
	// Path always starts with "/" and uses "/" as its only separator.
	Path string
	Kind Kind
}

const parentMarker = "/.."

// Resolve normalizes rawPath. Both "/" and "\" are accepted as separators.
// Every "/.." sequence is removed, repeatedly, until none is left; the
// result is still checked by Locate since textual stripping alone does not
// cover every traversal spelling.
func Resolve(rawPath string) Clean {
	p := strings.ReplaceAll(rawPath, `\`, "/")
	for {
		// Stripping can expose a new marker at the front ("/..../x" -> "../x").
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		if !strings.Contains(p, parentMarker) {
			break
		}
		p = strings.ReplaceAll(p, parentMarker, "")
	}

	kind := File
	if strings.HasSuffix(p, "/") {
		kind = Directory
	}
	return Clean{Path: p, Kind: kind}
}

// Rel returns the path relative to the content root, without leading or
// trailing separators. The root itself is "".
func (c Clean) Rel() string {
	return strings.Trim(c.Path, "/")
}

// Ext returns the extension of the last segment without its dot.
// "/a/b.tar.gz" gives "gz"; "/a/README" and directory requests give "".
func (c Clean) Ext() string {
	if c.Kind == Directory {
		return ""
	}
	base := path.Base(c.Path)
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return ""
	}
	return base[i+1:]
}

// Join appends name to a directory request, e.g. an index file name.
func (c Clean) Join(name string) Clean {
	return Clean{Path: c.Path + name, Kind: File}
}

// Locate joins c onto root and verifies the result is root or one of its
// descendants. It returns the slash-separated name relative to root, in the
// form accepted by io/fs ("." for the root itself).
func Locate(root string, c Clean) (string, error) {
	root = filepath.Clean(root)
	full := filepath.Join(root, filepath.FromSlash(c.Rel()))

	rel, err := filepath.Rel(root, full)
	if err != nil {
		return "", ErrOutsideRoot
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", ErrOutsideRoot
	}
	return filepath.ToSlash(rel), nil
}
