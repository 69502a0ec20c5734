package printer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrigin(t *testing.T) {
	o, err := ParseOrigin(" SDCard ")
	require.NoError(t, err)
	assert.Equal(t, OriginSDCard, o)

	_, err = ParseOrigin("usb")
	assert.Error(t, err)
}

func TestDirAndJoin(t *testing.T) {
	assert.Equal(t, "", Dir("a.gcode"))
	assert.Equal(t, "", Dir("/a.gcode"))
	assert.Equal(t, "models/parts", Dir("models/parts/a.gcode"))
	assert.Equal(t, "a.gcode", Join("", "a.gcode"))
	assert.Equal(t, "models/a.gcode", Join("models", "a.gcode"))

	j := &Job{Path: "models/a.gcode"}
	assert.Equal(t, "models", j.Folder())
}

func TestFilesAndFolders(t *testing.T) {
	now := time.Now()
	entries := []Entry{
		{Name: "c.gcode", Type: TypeFile, Modified: now},
		{Name: "models", Type: TypeFolder},
		{Name: "a.GCO", Type: TypeFile},
		{Name: "readme.txt", Type: TypeFile},
		{Name: "misc", Type: TypeFolder},
		{Name: "b.g", Type: TypeFile},
	}

	files := Files(entries, []string{".gcode", ".gco", ".g"})
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a.GCO", "b.g", "c.gcode"}, names)

	assert.Len(t, Files(entries, nil), 4)

	folders := Folders(entries)
	require.Len(t, folders, 2)
	assert.Equal(t, "misc", folders[0].Name)
	assert.Equal(t, "models", folders[1].Name)
	assert.Equal(t, "folder", folders[0].Type.String())
}

func TestMemoryPrinter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	assert.False(t, m.Closed(ctx))
	job, err := m.CurrentJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	assert.ErrorIs(t, m.StartPrint(ctx), ErrNoJob)

	require.NoError(t, m.SelectFile(ctx, "models/a.gcode", OriginLocal))
	job, err = m.CurrentJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Job{Path: "models/a.gcode", Name: "a.gcode", Display: "a.gcode", Origin: OriginLocal}, job)

	require.NoError(t, m.StartPrint(ctx))
	printing, _ := m.Printing(ctx)
	assert.True(t, printing)
	require.NoError(t, m.CancelPrint(ctx))
	assert.False(t, m.IsPrinting())

	require.NoError(t, m.UnselectFile(ctx))
	assert.Nil(t, m.Job())

	require.NoError(t, m.DisplayMessage(ctx, "hello"))
	assert.Equal(t, "hello", m.LastMessage())
	assert.Equal(t, []string{
		"start", "select local:models/a.gcode", "start", "cancel", "unselect",
	}, m.Commands())
}

func TestMemoryPrinterReconnect(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.SetClosed(true, false)
	assert.True(t, m.Closed(ctx))
	assert.Error(t, m.Connect(ctx))
	assert.True(t, m.Closed(ctx))

	m.SetClosed(true, true)
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.Closed(ctx))
}

func TestMemoryPrinterFailures(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	m.Fail("select", boom)
	assert.ErrorIs(t, m.SelectFile(ctx, "a.gcode", OriginLocal), boom)
	assert.Nil(t, m.Job())

	m.Fail("select", nil)
	assert.NoError(t, m.SelectFile(ctx, "a.gcode", OriginLocal))

	m.Fail("job", boom)
	_, err := m.CurrentJob(ctx)
	assert.ErrorIs(t, err, boom)

	m.Fail("display", boom)
	assert.Error(t, m.DisplayMessage(ctx, "x"))
	assert.Empty(t, m.Messages())
}
