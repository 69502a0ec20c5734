// Package files lists gcode folders for the button controller, either
// from directories on the host or from an in-memory tree.
package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"filebuttons/pkg/errors"
	"filebuttons/pkg/printer"
)

// Local lists folders below per-origin root directories.
type Local struct {
	roots map[printer.Origin]string
}

// NewLocal creates a lister with the given root for local storage.
func NewLocal(localRoot string) *Local {
	l := &Local{roots: make(map[printer.Origin]string)}
	if localRoot != "" {
		l.roots[printer.OriginLocal] = localRoot
	}
	return l
}

// SetRoot sets the root directory for an origin.
func (l *Local) SetRoot(origin printer.Origin, root string) {
	l.roots[origin] = root
}

// Root returns the root directory for an origin.
func (l *Local) Root(origin printer.Origin) (string, error) {
	root, ok := l.roots[origin]
	if !ok || root == "" {
		return "", fmt.Errorf("root for origin %s not configured", origin)
	}
	return root, nil
}

// List lists folder (slash separated, relative to the origin root).
// Hidden entries are skipped. Entries are sorted by name.
func (l *Local) List(ctx context.Context, origin printer.Origin, folder string) ([]printer.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ListingError(folder, err)
	}
	rootPath, err := l.Root(origin)
	if err != nil {
		return nil, errors.ListingError(folder, err)
	}

	fullPath := filepath.Join(rootPath, filepath.FromSlash(folder))

	// Ensure path is within root
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return nil, errors.ListingError(folder, err)
	}
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, errors.ListingError(folder, err)
	}
	if absPath != absRoot && !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return nil, errors.ListingError(folder, fmt.Errorf("path escapes root"))
	}

	dirEntries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, errors.ListingError(folder, err)
	}

	entries := make([]printer.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}
		typ := printer.TypeFile
		if info.IsDir() {
			typ = printer.TypeFolder
		} else if !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, printer.Entry{
			Name:     de.Name(),
			Path:     printer.Join(folder, de.Name()),
			Origin:   origin,
			Type:     typ,
			Modified: info.ModTime(),
			Size:     info.Size(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}
