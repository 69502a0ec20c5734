// Action dispatch for resolved gestures
//
// Copyright (C) 2026  FileButtons Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package buttons

import (
	"context"
	stderrors "errors"
	"fmt"

	"filebuttons/pkg/errors"
	"filebuttons/pkg/log"
	"filebuttons/pkg/printer"
)

// Status line texts.
const (
	MsgSelectFolder = "Select folder"
	MsgReserved     = "Center+Right reserved"
	MsgCancelled    = "Print cancelled"
	MsgUnknown      = "Unknown button"
	MsgFailed       = "Failed"
)

// ActionKind names what a press did.
type ActionKind int

const (
	// ActionReconnect: the printer was closed and a reconnect was tried.
	ActionReconnect ActionKind = iota
	// ActionSkip: the printer was closed and reconnecting is disabled.
	ActionSkip
	// ActionIgnore: the press is not recognized while printing.
	ActionIgnore
	ActionCancel
	ActionStart
	ActionSelectFile
	ActionLoadNewest
	ActionLoadFolder
	ActionFolder
	ActionPrompt
	ActionUnselect
	ActionReserved
	ActionUnknown
	ActionFailed
)

var actionNames = map[ActionKind]string{
	ActionReconnect:  "reconnect",
	ActionSkip:       "skip",
	ActionIgnore:     "ignore",
	ActionCancel:     "cancel",
	ActionStart:      "start",
	ActionSelectFile: "select_file",
	ActionLoadNewest: "load_newest",
	ActionLoadFolder: "load_folder",
	ActionFolder:     "folder",
	ActionPrompt:     "prompt",
	ActionUnselect:   "unselect",
	ActionReserved:   "reserved",
	ActionUnknown:    "unknown",
	ActionFailed:     "failed",
}

func (k ActionKind) String() string {
	if s, ok := actionNames[k]; ok {
		return s
	}
	return fmt.Sprintf("action%d", int(k))
}

// Action is the outcome of one press.
type Action struct {
	Kind  ActionKind
	Class Class
	// Arm is false for presses that must not close the gate.
	Arm bool
	// Message goes to the status line when not empty.
	Message string
	// Path is the file selected by the action, if any.
	Path string
	Err  error
}

func armed(kind ActionKind, class Class, msg string) Action {
	return Action{Kind: kind, Class: class, Arm: true, Message: msg}
}

func failed(err error) Action {
	return Action{Kind: ActionFailed, Class: Short, Arm: true, Message: failureText(err), Err: err}
}

func failureText(err error) string {
	var hostErr *errors.HostError
	if stderrors.As(err, &hostErr) {
		return MsgFailed + ": " + hostErr.Message
	}
	return MsgFailed + ": " + err.Error()
}

// Dispatcher maps gestures onto printer and listing operations.
type Dispatcher struct {
	Printer printer.Printer
	Lister  printer.Lister

	// Origin is browsed when no job is loaded.
	Origin printer.Origin
	// Extensions filters file listings; empty keeps every file.
	Extensions []string
	// Reconnect enables reconnect attempts on a closed printer.
	Reconnect bool

	log *log.Logger
}

// NewDispatcher creates a dispatcher browsing the local origin.
func NewDispatcher(p printer.Printer, l printer.Lister) *Dispatcher {
	return &Dispatcher{
		Printer:   p,
		Lister:    l,
		Origin:    printer.OriginLocal,
		Reconnect: true,
		log:       log.GetLogger("dispatch"),
	}
}

// Dispatch performs the action for g. The status message is left to the
// caller, as is arming the gate.
func (d *Dispatcher) Dispatch(ctx context.Context, g Gesture, s Snapshot, jc JobContext, cur *Cursor) Action {
	if jc.Closed {
		return d.reconnect(ctx)
	}
	if jc.Printing {
		if !s.All() {
			return Action{Kind: ActionIgnore}
		}
		if err := d.Printer.CancelPrint(ctx); err != nil {
			return failed(errors.PrinterCommandError("cancel", err))
		}
		return armed(ActionCancel, Long, MsgCancelled)
	}

	switch {
	case g.Kind == Unknown:
		return armed(ActionUnknown, Short, fmt.Sprintf("%s %d", MsgUnknown, int(g.Primary)))
	case g == ComboGesture(Center, Left):
		return d.loadNewest(ctx, jc, cur)
	case g == ComboGesture(Center, Right):
		return armed(ActionReserved, Long, MsgReserved)
	case g.Primary == Center:
		return d.center(ctx, jc, cur)
	case g.Is(Left, Right) && jc.HasJob():
		if err := d.Printer.UnselectFile(ctx); err != nil {
			return failed(errors.PrinterCommandError("unselect", err))
		}
		cur.Reset()
		return armed(ActionUnselect, Long, MsgSelectFolder)
	case g.Primary == Left:
		return d.step(ctx, jc, cur, -1)
	case g.Primary == Right:
		return d.step(ctx, jc, cur, +1)
	}
	return armed(ActionUnknown, Short, fmt.Sprintf("%s %d", MsgUnknown, int(g.Primary)))
}

func (d *Dispatcher) reconnect(ctx context.Context) Action {
	if !d.Reconnect {
		return Action{Kind: ActionSkip}
	}
	err := d.Printer.Connect(ctx)
	if err != nil {
		d.log.WithError(err).Warn("printer reconnect failed")
		err = errors.PrinterUnreachableError("reconnect failed", err)
	} else {
		d.log.Info("printer reconnected")
	}
	return Action{Kind: ActionReconnect, Err: err}
}

func (d *Dispatcher) center(ctx context.Context, jc JobContext, cur *Cursor) Action {
	if jc.HasJob() {
		if err := d.Printer.StartPrint(ctx); err != nil {
			return failed(errors.PrinterCommandError("start", err))
		}
		return armed(ActionStart, Long, "Printing "+display(jc.Job))
	}
	if cur.index == NoSelection {
		return armed(ActionPrompt, Short, MsgSelectFolder)
	}
	folders, err := d.listFolders(ctx)
	if err != nil {
		return failed(err)
	}
	i := cur.Index(len(folders))
	if i == NoSelection {
		// the listing shrank under the cursor
		cur.Reset()
		return armed(ActionPrompt, Short, MsgSelectFolder)
	}
	folder := folders[i].Path
	files, err := d.files(ctx, d.Origin, folder)
	if err != nil {
		return failed(err)
	}
	act := d.selectFile(ctx, files[0])
	act.Kind = ActionLoadFolder
	return act
}

// loadNewest selects the most recently modified file of the active
// folder: the job's folder, else the selected folder, else the root.
func (d *Dispatcher) loadNewest(ctx context.Context, jc JobContext, cur *Cursor) Action {
	origin, folder := d.Origin, ""
	if jc.HasJob() {
		origin, folder = jc.Job.Origin, jc.Job.Folder()
	} else if cur.index != NoSelection {
		folders, err := d.listFolders(ctx)
		if err != nil {
			return failed(err)
		}
		if i := cur.Index(len(folders)); i != NoSelection {
			folder = folders[i].Path
		}
	}
	files, err := d.files(ctx, origin, folder)
	if err != nil {
		return failed(err)
	}
	newest := files[0]
	for _, f := range files[1:] {
		if f.Modified.After(newest.Modified) {
			newest = f
		}
	}
	act := d.selectFile(ctx, newest)
	if act.Kind == ActionFailed {
		return act
	}
	act.Kind = ActionLoadNewest
	act.Class = Long
	return act
}

// step moves one file (job loaded) or one folder (no job) in direction
// dir.
func (d *Dispatcher) step(ctx context.Context, jc JobContext, cur *Cursor, dir int) Action {
	if !jc.HasJob() {
		folders, err := d.folders(ctx)
		if err != nil {
			return failed(err)
		}
		var i int
		if dir < 0 {
			i = cur.Prev(len(folders))
		} else {
			i = cur.Next(len(folders))
		}
		if i == NoSelection {
			return armed(ActionFolder, Short, MsgSelectFolder)
		}
		return armed(ActionFolder, Short, folders[i].Name)
	}

	folder := jc.Job.Folder()
	files, err := d.files(ctx, jc.Job.Origin, folder)
	if err != nil {
		return failed(err)
	}
	i := indexOf(files, jc.Job)
	if i < 0 {
		return failed(errors.NotListedError(folder, jc.Job.Name))
	}
	if dir < 0 {
		i = PrevFile(i, len(files))
	} else {
		i = NextFile(i, len(files))
	}
	return d.selectFile(ctx, files[i])
}

func (d *Dispatcher) selectFile(ctx context.Context, f printer.Entry) Action {
	if err := d.Printer.SelectFile(ctx, f.Path, f.Origin); err != nil {
		return failed(errors.PrinterCommandError("select", err))
	}
	act := armed(ActionSelectFile, Short, f.Name)
	act.Path = f.Path
	return act
}

func (d *Dispatcher) listFolders(ctx context.Context) ([]printer.Entry, error) {
	entries, err := d.Lister.List(ctx, d.Origin, "")
	if err != nil {
		return nil, errors.ListingError("/", err)
	}
	return printer.Folders(entries), nil
}

func (d *Dispatcher) folders(ctx context.Context) ([]printer.Entry, error) {
	folders, err := d.listFolders(ctx)
	if err != nil {
		return nil, err
	}
	if len(folders) == 0 {
		return nil, errors.ListingEmptyError("/", "folders")
	}
	return folders, nil
}

func (d *Dispatcher) files(ctx context.Context, origin printer.Origin, folder string) ([]printer.Entry, error) {
	entries, err := d.Lister.List(ctx, origin, folder)
	if err != nil {
		return nil, errors.ListingError(displayFolder(folder), err)
	}
	files := printer.Files(entries, d.Extensions)
	if len(files) == 0 {
		return nil, errors.ListingEmptyError(displayFolder(folder), "files")
	}
	return files, nil
}

func indexOf(files []printer.Entry, job *printer.Job) int {
	for i, f := range files {
		if f.Path == job.Path {
			return i
		}
	}
	for i, f := range files {
		if f.Name == job.Name {
			return i
		}
	}
	return -1
}

func display(job *printer.Job) string {
	if job.Display != "" {
		return job.Display
	}
	return job.Name
}

func displayFolder(folder string) string {
	if folder == "" {
		return "/"
	}
	return folder
}
