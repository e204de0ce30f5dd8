package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PendingFile is a destination file under construction. Bytes go to a hidden
// temp file in the destination directory; Commit renames it into place and
// Abort removes it, so readers never observe a partial artifact.
type PendingFile struct {
	mu       sync.Mutex
	file     *os.File
	tempPath string
	dest     string
	done     bool
}

// CreatePending opens a temp file next to dest with the given mode.
func CreatePending(dest string, mode os.FileMode) (*PendingFile, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("chmod temp file: %w", err)
	}
	return &PendingFile{file: f, tempPath: f.Name(), dest: dest}, nil
}

// Write appends p to the pending file.
func (p *PendingFile) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return 0, os.ErrClosed
	}
	return p.file.Write(b)
}

// TempPath reports where the bytes are staged before Commit.
func (p *PendingFile) TempPath() string { return p.tempPath }

// Commit flushes, closes, and atomically renames the temp file to its destination.
func (p *PendingFile) Commit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return os.ErrClosed
	}
	p.done = true
	if err := p.file.Sync(); err != nil {
		_ = p.file.Close()
		_ = os.Remove(p.tempPath)
		return fmt.Errorf("sync %s: %w", p.tempPath, err)
	}
	if err := p.file.Close(); err != nil {
		_ = os.Remove(p.tempPath)
		return fmt.Errorf("close %s: %w", p.tempPath, err)
	}
	if err := os.Rename(p.tempPath, p.dest); err != nil {
		_ = os.Remove(p.tempPath)
		return fmt.Errorf("rename into %s: %w", p.dest, err)
	}
	return nil
}

// Abort discards the pending file. It is safe to call after Commit, in which
// case it does nothing.
func (p *PendingFile) Abort() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return nil
	}
	p.done = true
	_ = p.file.Close()
	if err := os.Remove(p.tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// WriteFileAtomic writes data to dest through a PendingFile.
func WriteFileAtomic(dest string, data []byte, mode os.FileMode) error {
	pending, err := CreatePending(dest, mode)
	if err != nil {
		return err
	}
	if _, err := pending.Write(data); err != nil {
		_ = pending.Abort()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return pending.Commit()
}

// RemoveIfExists deletes path and treats a missing file as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
