package scanner

import (
	"path/filepath"
	"strings"
)

// sourceExts are the extensions of Python source files.
var sourceExts = map[string]bool{
	".py":  true,
	".pyw": true,
}

// stubExts are the extensions of Python stub files.
var stubExts = map[string]bool{
	".pyi": true,
}

// IsPython reports whether path names a Python source or stub file, and
// whether it is a stub.
func IsPython(path string) (ok, stub bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case sourceExts[ext]:
		return true, false
	case stubExts[ext]:
		return true, true
	}
	return false, false
}
