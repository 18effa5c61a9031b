package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// atomicFile stages writes in a temp file beside the destination and
// renames it into place on commit, so readers only ever see a complete file.
type atomicFile struct {
	path string
	tmp  *os.File
	done bool
}

func createAtomic(path string) (*atomicFile, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &atomicFile{path: path, tmp: tmp}, nil
}

func (a *atomicFile) Write(p []byte) (int, error) {
	if a.done {
		return 0, errors.New("write after close")
	}
	return a.tmp.Write(p)
}

func (a *atomicFile) commit() error {
	if a.done {
		return nil
	}
	a.done = true

	if err := a.tmp.Sync(); err != nil {
		a.cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := a.tmp.Close(); err != nil {
		os.Remove(a.tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(a.tmp.Name(), 0o644); err != nil {
		os.Remove(a.tmp.Name())
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(a.tmp.Name(), a.path); err != nil {
		os.Remove(a.tmp.Name())
		return fmt.Errorf("replace %s: %w", a.path, err)
	}
	return nil
}

func (a *atomicFile) abort() error {
	if a.done {
		return nil
	}
	a.done = true
	return a.cleanup()
}

func (a *atomicFile) cleanup() error {
	a.tmp.Close()
	if err := os.Remove(a.tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

func validateNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}
