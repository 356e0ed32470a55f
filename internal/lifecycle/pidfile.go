// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lifecycle holds process-level helpers for the controller.
package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/uptimizeai/zenthia/pkg/errors"
)

var (
	// ErrPIDFileLocked is returned when another live process holds the PID file.
	ErrPIDFileLocked = errors.New("PID file is locked by another process")

	// ErrInvalidPID is returned when the PID file contains invalid data.
	ErrInvalidPID = errors.New("invalid PID in file")

	// ErrUnsafeDirectory is returned when the PID file parent is world-writable.
	ErrUnsafeDirectory = errors.New("PID file directory is world-writable")
)

// PIDFile is an flock-held PID file. It keeps two controllers from sharing
// one history database. A file left behind by a dead process is taken over.
type PIDFile struct {
	path string
	f    *os.File
}

// AcquirePIDFile locks path and writes the current PID to it.
func AcquirePIDFile(path string) (*PIDFile, error) {
	dir := filepath.Dir(path)
	if err := verifyDirectorySafety(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create PID file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|syscall.O_NOFOLLOW, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open PID file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			if pid, readErr := ReadPID(path); readErr == nil {
				return nil, fmt.Errorf("%w (pid %d)", ErrPIDFileLocked, pid)
			}
			return nil, ErrPIDFileLocked
		}
		return nil, fmt.Errorf("failed to lock PID file: %w", err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to truncate PID file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write PID: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to sync PID file: %w", err)
	}

	return &PIDFile{path: path, f: f}, nil
}

// Path returns the PID file location.
func (p *PIDFile) Path() string { return p.path }

// Release removes the file and drops the lock. Safe to call twice.
func (p *PIDFile) Release() error {
	if p.f == nil {
		return nil
	}
	err := os.Remove(p.path)
	syscall.Flock(int(p.f.Fd()), syscall.LOCK_UN)
	p.f.Close()
	p.f = nil
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// ReadPID returns the PID recorded in path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPID, raw)
	}
	return pid, nil
}

// verifyDirectorySafety rejects world-writable parents, where another user
// could swap the file for a symlink.
func verifyDirectorySafety(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat PID file directory: %w", err)
	}
	if mode := info.Mode(); mode&0o002 != 0 && mode&os.ModeSticky == 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrUnsafeDirectory, dir, mode&os.ModePerm)
	}
	return nil
}
