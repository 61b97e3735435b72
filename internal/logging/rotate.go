package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileRotator is an io.Writer that rotates the file when it exceeds a size
// limit. Rotated files are renamed path.1 .. path.N, oldest last.
type FileRotator struct {
	mu         sync.Mutex
	path       string
	maxSize    int64
	maxBackups int
	file       *os.File
	size       int64
}

// NewFileRotator opens (creating if needed) the log file for appending.
func NewFileRotator(path string, maxSize int64, maxBackups int) (*FileRotator, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	r := &FileRotator{path: path, maxSize: maxSize, maxBackups: maxBackups}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.file = f
	r.size = info.Size()
	return nil
}

// Write appends to the log file, rotating first if the entry would push it
// past the size limit.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSize > 0 && r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *FileRotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	// Shift existing backups up, dropping the oldest.
	for i := r.maxBackups - 1; i >= 1; i-- {
		os.Rename(backupName(r.path, i), backupName(r.path, i+1))
	}
	if r.maxBackups > 0 {
		if err := os.Rename(r.path, backupName(r.path, 1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	} else {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return r.open()
}

func backupName(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

// Sync flushes the file to disk.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Sync()
}

// Close closes the underlying file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
