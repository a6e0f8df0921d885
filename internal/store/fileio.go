package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// atomicWrite writes content to a temporary sibling file, syncs it, then
// renames it into place. The destination never holds partially-written
// data, even if the process dies mid-write. Parent directories are created
// as needed.
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newError(KindIO, "atomicWrite", path, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return newError(KindIO, "atomicWrite", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return newError(KindIO, "atomicWrite", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return newError(KindIO, "atomicWrite", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return newError(KindIO, "atomicWrite", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return newError(KindIO, "atomicWrite", path, err)
	}
	return nil
}

// safeReadFile returns the file content, or (nil, nil) when the file does
// not exist. Any other failure surfaces as an IO_ERROR.
func safeReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, newError(KindIO, "safeReadFile", path, err)
	}
	return data, nil
}

// fileLock is an advisory per-path lock backed by a sentinel file created
// with O_EXCL. Two writers to the same data file serialize on it; a second
// Store process against the same data root serializes the same way.
type fileLock struct {
	sentinel string
}

const lockPollInterval = 10 * time.Millisecond

// acquireLock blocks until the sentinel can be created, the timeout
// elapses, or ctx is cancelled. Timeout surfaces as LOCK_TIMEOUT.
func acquireLock(ctx context.Context, sentinel string, timeout time.Duration) (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(sentinel), 0o755); err != nil {
		return nil, newError(KindIO, "acquireLock", sentinel, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(sentinel, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return &fileLock{sentinel: sentinel}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, newError(KindIO, "acquireLock", sentinel, err)
		}
		if time.Now().After(deadline) {
			return nil, newError(KindLockTimeout, "acquireLock", sentinel, err)
		}

		select {
		case <-ctx.Done():
			return nil, newError(KindLockTimeout, "acquireLock", sentinel, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

// release removes the sentinel. Safe to call once per acquired lock.
func (l *fileLock) release() {
	os.Remove(l.sentinel)
}

// removeIfExists deletes a file, treating absence as success
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return newError(KindIO, "remove", path, err)
	}
	return nil
}
