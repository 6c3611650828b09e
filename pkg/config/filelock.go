package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrLocked is returned when a lock is held by another process past the timeout
var ErrLocked = errors.New("file is locked by another process")

// FileLock guards a file shared by concurrent CLI runs with a sibling ".lock" file
type FileLock struct {
	path     string
	lockPath string
	file     *os.File
	locked   bool
}

// LockConfig holds configuration for file locking behavior
type LockConfig struct {
	Timeout    time.Duration
	RetryDelay time.Duration

	// A lock file older than StaleAfter whose owner is gone is removed
	StaleAfter time.Duration
}

// DefaultLockConfig returns the lock settings used for history files
func DefaultLockConfig() LockConfig {
	return LockConfig{
		Timeout:    5 * time.Second,
		RetryDelay: 50 * time.Millisecond,
		StaleAfter: time.Minute,
	}
}

// NewFileLock creates a new file lock for the given path
func NewFileLock(path string) *FileLock {
	return &FileLock{
		path:     path,
		lockPath: path + ".lock",
	}
}

// Lock acquires the lock, retrying until cfg.Timeout or ctx ends
func (fl *FileLock) Lock(ctx context.Context, cfg LockConfig) error {
	if fl.locked {
		return errors.New("file is already locked")
	}

	if err := os.MkdirAll(filepath.Dir(fl.lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	deadline := time.Now().Add(cfg.Timeout)
	for {
		err := fl.tryLock(cfg)
		if err == nil {
			fl.locked = true
			return nil
		}
		if !errors.Is(err, ErrLocked) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout acquiring lock on %s after %v: %w", fl.path, cfg.Timeout, ErrLocked)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}
}

func (fl *FileLock) tryLock(cfg LockConfig) error {
	file, err := os.OpenFile(fl.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}
		if fl.isStale(cfg.StaleAfter) {
			os.Remove(fl.lockPath)
		}
		return ErrLocked
	}

	if _, err := fmt.Fprintf(file, "pid:%d\n", os.Getpid()); err != nil {
		file.Close()
		os.Remove(fl.lockPath)
		return fmt.Errorf("failed to write lock info: %w", err)
	}

	fl.file = file
	return nil
}

// isStale reports whether the lock file is old and its owner process is gone
func (fl *FileLock) isStale(after time.Duration) bool {
	if after <= 0 {
		return false
	}

	info, err := os.Stat(fl.lockPath)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) < after {
		return false
	}

	data, err := os.ReadFile(fl.lockPath)
	if err != nil {
		return true
	}
	pid, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(string(data), "pid:")))
	if err != nil {
		return true
	}
	return !processRunning(pid)
}

// processRunning sends signal 0, which only checks that the process exists
func processRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// Unlock releases the file lock
func (fl *FileLock) Unlock() error {
	if !fl.locked {
		return nil
	}

	var lastErr error
	if fl.file != nil {
		if err := fl.file.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close lock file: %w", err)
		}
		fl.file = nil
	}

	if err := os.Remove(fl.lockPath); err != nil && lastErr == nil {
		lastErr = fmt.Errorf("failed to remove lock file: %w", err)
	}

	fl.locked = false
	return lastErr
}

// IsLocked returns whether this lock is currently held
func (fl *FileLock) IsLocked() bool {
	return fl.locked
}

// WithLock runs fn while holding the lock on path
func WithLock(ctx context.Context, path string, cfg LockConfig, fn func() error) (err error) {
	lock := NewFileLock(path)
	if err := lock.Lock(ctx, cfg); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}()

	return fn()
}

// AtomicWrite replaces path with data under the file lock. Readers never see
// a partially written file.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	return WithLock(context.Background(), path, DefaultLockConfig(), func() error {
		tempPath := path + ".tmp"
		if err := os.WriteFile(tempPath, data, perm); err != nil {
			return fmt.Errorf("failed to write temporary file: %w", err)
		}

		if err := os.Rename(tempPath, path); err != nil {
			os.Remove(tempPath)
			return fmt.Errorf("failed to rename temporary file: %w", err)
		}
		return nil
	})
}
