package proto

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidDestination is wrapped by every ValidateDestination failure.
var ErrInvalidDestination = errors.New("invalid destination")

// ValidateDestination checks that path can receive a transfer of the given
// shape.
//
//   - SingleFile: the parent directory exists and path is not a directory.
//   - MultipleFiles: path is an existing directory.
//   - RecursiveDirectory: path is an existing directory, or its parent is.
func ValidateDestination(mode DestinationMode, path string) error {
	switch mode {
	case SingleFile:
		if isDir(path) {
			return fmt.Errorf("%w: %s is a directory", ErrInvalidDestination, path)
		}
		if !isDir(filepath.Dir(path)) {
			return fmt.Errorf("%w: parent of %s is not a directory", ErrInvalidDestination, path)
		}
	case MultipleFiles:
		if !isDir(path) {
			return fmt.Errorf("%w: %s is not an existing directory", ErrInvalidDestination, path)
		}
	case RecursiveDirectory:
		if !isDir(path) && !isDir(filepath.Dir(path)) {
			return fmt.Errorf("%w: neither %s nor its parent is a directory", ErrInvalidDestination, path)
		}
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidDestination, mode)
	}
	return nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// ResolvePath joins a client-supplied name onto root. Leading slashes are
// dropped so absolute names land under root; a name that climbs out of
// root with ".." is rejected. An empty name resolves to root itself.
func ResolvePath(root, name string) (string, error) {
	rel := strings.TrimLeft(filepath.ToSlash(name), "/")
	if rel == "" {
		return filepath.Clean(root), nil
	}
	rel = filepath.FromSlash(rel)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q escapes root", ErrInvalidDestination, name)
	}
	return filepath.Join(root, rel), nil
}
