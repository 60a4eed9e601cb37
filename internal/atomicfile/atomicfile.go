package atomicfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/halcyonos/halcyon/internal/errs"
)

// Writer stages content for an atomic replace of a target path. Bytes are
// written to a temporary file in the target's directory so that the final
// rename stays on one filesystem. Until Save returns, a reader of the
// target path sees the prior content; after Save, the new content. No
// interruption point exposes a partial file.
type Writer struct {
	target string
	tmp    *os.File
	done   bool
}

// New opens a staging writer for target. The containing directory must
// exist.
func New(target string) (*Writer, error) {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp*")
	if err != nil {
		return nil, errs.Wrapf(errs.KindFilesystem, err, "create temp file in %s", dir)
	}
	return &Writer{target: target, tmp: tmp}, nil
}

// Write appends to the staged content.
func (w *Writer) Write(p []byte) (int, error) {
	if w.done {
		return 0, errs.New(errs.KindFilesystem, "write after save/discard on %s", w.target)
	}
	n, err := w.tmp.Write(p)
	if err != nil {
		return n, errs.Wrapf(errs.KindFilesystem, err, "write %s", w.tmp.Name())
	}
	return n, nil
}

// Save flushes the staged content to stable storage, renames it onto the
// target, and syncs the directory entry. After a successful Save the target
// holds exactly the staged bytes; on failure the target is untouched.
func (w *Writer) Save() error {
	if w.done {
		return errs.New(errs.KindFilesystem, "save after save/discard on %s", w.target)
	}
	w.done = true
	tmpName := w.tmp.Name()

	if err := w.tmp.Sync(); err != nil {
		w.tmp.Close()
		os.Remove(tmpName)
		return errs.Wrapf(errs.KindFilesystem, err, "sync %s", tmpName)
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.Wrapf(errs.KindFilesystem, err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, w.target); err != nil {
		os.Remove(tmpName)
		return errs.Wrapf(errs.KindFilesystem, err, "rename %s -> %s", tmpName, w.target)
	}
	return syncDir(filepath.Dir(w.target))
}

// Discard drops the staged content, leaving the target untouched. Safe to
// call after Save.
func (w *Writer) Discard() error {
	if w.done {
		return nil
	}
	w.done = true
	tmpName := w.tmp.Name()
	w.tmp.Close()
	if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
		return errs.Wrapf(errs.KindFilesystem, err, "remove %s", tmpName)
	}
	return nil
}

// Commit atomically replaces target with data.
func Commit(target string, data []byte) error {
	w, err := New(target)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Discard()
		return err
	}
	return w.Save()
}

// CopyFrom atomically replaces target with the contents streamed from r.
func CopyFrom(target string, r io.Reader) (int64, error) {
	w, err := New(target)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, r)
	if err != nil {
		w.Discard()
		return n, errs.Wrapf(errs.KindFilesystem, err, "copy to %s", target)
	}
	return n, w.Save()
}

// syncDir flushes the directory entry so the rename survives a crash on
// filesystems that require it.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errs.Wrapf(errs.KindFilesystem, err, "open dir %s", dir)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return errs.Wrap(errs.KindFilesystem, fmt.Errorf("sync dir %s: %w", dir, err))
	}
	return nil
}
