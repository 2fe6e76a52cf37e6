package transfer

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ResolveFileCollision returns a path under dir for filename that does
// not currently exist, appending "_1", "_2", … before the extension on
// each successive collision.
func ResolveFileCollision(dir, filename string) string {
	candidate := filepath.Join(dir, filename)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	for i := 1; ; i++ {
		candidate = filepath.Join(dir, base+"_"+strconv.Itoa(i)+ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// ResolveFolderCollision returns a path under dir for name that does
// not currently exist, appending "_1", "_2", … to the folder name.
func ResolveFolderCollision(dir, name string) string {
	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}
	for i := 1; ; i++ {
		candidate = filepath.Join(dir, name+"_"+strconv.Itoa(i))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// SanitizeBasename reduces filename to its basename, discarding any
// directory component a sender might have included.
func SanitizeBasename(filename string) string {
	return filepath.Base(filepath.Clean(filename))
}

// SanitizeRelPath normalizes a folder-entry relative path to forward
// slashes and, if it is absolute or escapes the folder root via "..",
// reduces it to its basename so no destination write can land outside
// the folder's target directory.
func SanitizeRelPath(relPath string) string {
	cleaned := filepath.ToSlash(filepath.Clean(relPath))
	if cleaned == "." || cleaned == "" {
		return "_"
	}
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return filepath.Base(cleaned)
	}
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." {
			return filepath.Base(cleaned)
		}
	}
	return cleaned
}
