// Package printer defines the printer control and file listing
// collaborators used by the button controller, plus in-memory versions
// of both for tests and simulation.
package printer

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// Origin is the storage location class of a file.
type Origin string

const (
	// OriginLocal is the host's own gcode storage.
	OriginLocal Origin = "local"
	// OriginSDCard is removable media attached to the printer.
	OriginSDCard Origin = "sdcard"
)

// ParseOrigin parses "local" or "sdcard".
func ParseOrigin(s string) (Origin, error) {
	switch o := Origin(strings.ToLower(strings.TrimSpace(s))); o {
	case OriginLocal, OriginSDCard:
		return o, nil
	}
	return "", fmt.Errorf("printer: unknown origin %q", s)
}

// EntryType distinguishes files from folders in a listing.
type EntryType int

const (
	TypeFile EntryType = iota
	TypeFolder
)

func (t EntryType) String() string {
	if t == TypeFolder {
		return "folder"
	}
	return "file"
}

// Entry is one item of a non-recursive listing.
type Entry struct {
	Name     string
	Path     string // slash separated, relative to the origin root
	Origin   Origin
	Type     EntryType
	Modified time.Time
	Size     int64
}

// Job is the file currently loaded on the printer.
type Job struct {
	Path    string
	Name    string
	Display string
	Origin  Origin
}

// Folder returns the folder holding the job's file, "" for the root.
func (j *Job) Folder() string {
	return Dir(j.Path)
}

// Dir returns the parent folder of a slash separated path, "" for the root.
func Dir(p string) string {
	d := path.Dir(strings.TrimPrefix(p, "/"))
	if d == "." || d == "/" {
		return ""
	}
	return d
}

// Join joins a folder and a name into a listing path.
func Join(folder, name string) string {
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

// Printer controls the printer host. All methods may block on I/O.
type Printer interface {
	// Closed reports whether the connection is closed or in an error
	// state.
	Closed(ctx context.Context) bool
	// Connect tries to (re)establish a usable connection.
	Connect(ctx context.Context) error
	// CurrentJob returns the loaded job, or nil when none is loaded.
	CurrentJob(ctx context.Context) (*Job, error)
	Printing(ctx context.Context) (bool, error)
	// DisplayMessage shows msg on the printer's status line.
	DisplayMessage(ctx context.Context, msg string) error
	SelectFile(ctx context.Context, path string, origin Origin) error
	StartPrint(ctx context.Context) error
	CancelPrint(ctx context.Context) error
	UnselectFile(ctx context.Context) error
}

// Lister enumerates one folder of an origin, non-recursively.
type Lister interface {
	List(ctx context.Context, origin Origin, folder string) ([]Entry, error)
}

// Files returns the file entries whose extension is in exts (all files
// when exts is empty), sorted by name.
func Files(entries []Entry, exts []string) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Type != TypeFile {
			continue
		}
		if len(exts) > 0 && !hasExt(e.Name, exts) {
			continue
		}
		out = append(out, e)
	}
	sortByName(out)
	return out
}

// Folders returns the folder entries sorted by name.
func Folders(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Type == TypeFolder {
			out = append(out, e)
		}
	}
	sortByName(out)
	return out
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func sortByName(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
}
