package confwatcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func requireSignal(t *testing.T, w *ConfWatcher) {
	t.Helper()
	select {
	case <-w.Watch():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func requireNoSignal(t *testing.T, w *ConfWatcher) {
	t.Helper()
	select {
	case <-w.Watch():
		t.Fatal("unexpected signal")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNoDir(t *testing.T) {
	w := &ConfWatcher{FilePath: "/nonexistent/gpstether.yml"}
	require.Error(t, w.Initialize())
}

func TestWrite(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "gpstether.yml")
	writeFile(t, fpath, "{}")

	w := &ConfWatcher{FilePath: fpath}
	require.NoError(t, w.Initialize())
	defer w.Close()

	writeFile(t, fpath, "gps: {}")
	requireSignal(t, w)
}

func TestWriteMultipleTimesIsMerged(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "gpstether.yml")
	writeFile(t, fpath, "{}")

	w := &ConfWatcher{FilePath: fpath}
	require.NoError(t, w.Initialize())
	defer w.Close()

	writeFile(t, fpath, "{}")
	writeFile(t, fpath, "{}")
	requireSignal(t, w)
	requireNoSignal(t, w)
}

func TestCreatedLater(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "gpstether.yml")

	w := &ConfWatcher{FilePath: fpath}
	require.NoError(t, w.Initialize())
	defer w.Close()

	writeFile(t, fpath, "{}")
	requireSignal(t, w)
}

func TestReplacedByRename(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "gpstether.yml")
	writeFile(t, fpath, "{}")

	w := &ConfWatcher{FilePath: fpath}
	require.NoError(t, w.Initialize())
	defer w.Close()

	tmp := filepath.Join(dir, "gpstether.yml.tmp")
	writeFile(t, tmp, "gps: {}")
	// The temp file itself is ignored; the rename onto the target is not.
	require.NoError(t, os.Rename(tmp, fpath))
	requireSignal(t, w)
}

func TestOtherFileIgnored(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "gpstether.yml")
	writeFile(t, fpath, "{}")

	w := &ConfWatcher{FilePath: fpath}
	require.NoError(t, w.Initialize())
	defer w.Close()

	writeFile(t, filepath.Join(dir, "other.yml"), "{}")
	requireNoSignal(t, w)
}
