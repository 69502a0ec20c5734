package files

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"filebuttons/pkg/errors"
	"filebuttons/pkg/printer"
)

type memKey struct {
	origin printer.Origin
	folder string
}

// Memory is an in-memory folder tree.
type Memory struct {
	mu      sync.RWMutex
	folders map[memKey]map[string]printer.Entry
	fail    error
}

// NewMemory creates an empty tree with a root folder for each origin.
func NewMemory() *Memory {
	m := &Memory{folders: make(map[memKey]map[string]printer.Entry)}
	m.folders[memKey{printer.OriginLocal, ""}] = make(map[string]printer.Entry)
	m.folders[memKey{printer.OriginSDCard, ""}] = make(map[string]printer.Entry)
	return m
}

// AddFile adds a file, creating its parent folders.
func (m *Memory) AddFile(origin printer.Origin, path string, modified time.Time, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = strings.Trim(path, "/")
	folder := printer.Dir(path)
	m.addFolderLocked(origin, folder, modified)
	name := path[strings.LastIndex(path, "/")+1:]
	m.folders[memKey{origin, folder}][name] = printer.Entry{
		Name:     name,
		Path:     path,
		Origin:   origin,
		Type:     printer.TypeFile,
		Modified: modified,
		Size:     size,
	}
}

// AddFolder adds an empty folder and its parents.
func (m *Memory) AddFolder(origin printer.Origin, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addFolderLocked(origin, strings.Trim(path, "/"), time.Time{})
}

func (m *Memory) addFolderLocked(origin printer.Origin, folder string, modified time.Time) {
	key := memKey{origin, folder}
	if _, ok := m.folders[key]; ok {
		return
	}
	m.folders[key] = make(map[string]printer.Entry)
	if folder == "" {
		return
	}
	parent := printer.Dir(folder)
	m.addFolderLocked(origin, parent, modified)
	name := folder[strings.LastIndex(folder, "/")+1:]
	m.folders[memKey{origin, parent}][name] = printer.Entry{
		Name:     name,
		Path:     folder,
		Origin:   origin,
		Type:     printer.TypeFolder,
		Modified: modified,
	}
}

// Remove deletes a file or folder entry. Contents of a removed folder
// are dropped too.
func (m *Memory) Remove(origin printer.Origin, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = strings.Trim(path, "/")
	parent := printer.Dir(path)
	if entries, ok := m.folders[memKey{origin, parent}]; ok {
		delete(entries, path[strings.LastIndex(path, "/")+1:])
	}
	for key := range m.folders {
		if key.origin == origin && (key.folder == path || strings.HasPrefix(key.folder, path+"/")) {
			delete(m.folders, key)
		}
	}
}

// SetError makes every List call fail with err until cleared with nil.
func (m *Memory) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// List returns the direct children of folder sorted by name.
func (m *Memory) List(ctx context.Context, origin printer.Origin, folder string) ([]printer.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail != nil {
		return nil, errors.ListingError(folder, m.fail)
	}
	entries, ok := m.folders[memKey{origin, strings.Trim(folder, "/")}]
	if !ok {
		return nil, errors.ListingError(folder, fmt.Errorf("no such folder"))
	}
	out := make([]printer.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
