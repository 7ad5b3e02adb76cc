package shmpage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flightdeals/dealsindex/internal/shmpage"
)

type fixedRow struct {
	A, B int64
}

func TestOpenOrCreateThenElements(t *testing.T) {
	dir := t.TempDir()
	page, err := shmpage.OpenOrCreate[fixedRow](dir, "p1", 4)
	require.NoError(t, err)
	defer page.Close()

	els := page.Elements()
	require.Len(t, els, 4)
	els[0] = fixedRow{A: 1, B: 2}

	reopened, err := shmpage.OpenOrCreate[fixedRow](dir, "p1", 4)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, fixedRow{A: 1, B: 2}, reopened.Elements()[0])
}

func TestOpenOrCreateRejectsIncompatibleResize(t *testing.T) {
	dir := t.TempDir()
	_, err := shmpage.OpenOrCreate[fixedRow](dir, "p1", 4)
	require.NoError(t, err)

	_, err = shmpage.OpenOrCreate[fixedRow](dir, "p1", 4096)
	require.Error(t, err)
}

func TestMarkUnlinkedIsObservable(t *testing.T) {
	dir := t.TempDir()
	page, err := shmpage.OpenOrCreate[fixedRow](dir, "p1", 4)
	require.NoError(t, err)
	defer page.Close()

	require.False(t, page.IsUnlinked())
	page.MarkUnlinked()
	require.True(t, page.IsUnlinked())
}

func TestUnlinkRemovesBackingFile(t *testing.T) {
	dir := t.TempDir()
	page, err := shmpage.OpenOrCreate[fixedRow](dir, "p1", 4)
	require.NoError(t, err)
	require.NoError(t, page.Close())
	require.NoError(t, shmpage.Unlink(dir, "p1"))

	// the file is gone, so a fresh OpenOrCreate must size it from scratch.
	page2, err := shmpage.OpenOrCreate[fixedRow](dir, "p1", 4)
	require.NoError(t, err)
	defer page2.Close()
	require.Zero(t, page2.Elements()[0])
}
