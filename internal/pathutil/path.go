package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandTilde replaces a leading ~/ with the user's home directory.
// Paths like ~user/... are left unchanged (only current user's ~ is expanded).
// If $HOME is not set, the path is returned as-is.
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home := os.Getenv("HOME")
	if home == "" {
		return path
	}
	return home + path[1:]
}

// Resolve expands a leading ~ and makes a relative path absolute against
// baseDir. An empty baseDir leaves relative paths relative to the working
// directory. The result is cleaned.
func Resolve(path, baseDir string) string {
	if path == "" {
		return ""
	}
	path = ExpandTilde(path)
	if !filepath.IsAbs(path) && baseDir != "" && !strings.HasPrefix(path, "~") {
		path = filepath.Join(baseDir, path)
	}
	return filepath.Clean(path)
}
