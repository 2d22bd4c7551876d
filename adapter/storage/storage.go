// Package storage writes datafiles so that a crash never leaves a partially
// written file behind.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Default permissions of the files and directories created.
const (
	DefaultDirMode  os.FileMode = 0o755
	DefaultFileMode os.FileMode = 0o644
)

// backupSuffix marks the temporary file a datafile is written to before
// being renamed over the original.
const backupSuffix = "~"

var (
	osSpecificEnsureDir = func(o osOps, dir string, mode os.FileMode) error {
		return o.MkdirAll(dir, mode)
	}
	osSpecificSync = func(f *os.File, _ bool) error {
		return f.Sync()
	}
)

// ErrFlushToStorage is returned when a file or directory cannot be synced.
type ErrFlushToStorage struct {
	Name         string
	ErrorOnFsync error
	ErrorOnClose error
}

// Error implements [error].
func (e ErrFlushToStorage) Error() string {
	if e.ErrorOnFsync != nil {
		return fmt.Sprintf("cannot flush %s: %s", e.Name, e.ErrorOnFsync)
	}
	return fmt.Sprintf("cannot close %s after flushing: %s", e.Name, e.ErrorOnClose)
}

// Unwrap returns the underlying error.
func (e ErrFlushToStorage) Unwrap() error {
	if e.ErrorOnFsync != nil {
		return e.ErrorOnFsync
	}
	return e.ErrorOnClose
}

// ErrDatafileName is returned for file names reserved for backups.
type ErrDatafileName struct {
	Name string
}

// Error implements [error].
func (e ErrDatafileName) Error() string {
	return fmt.Sprintf("invalid datafile name %q: the suffix %q is reserved", e.Name, backupSuffix)
}

// Storage reads and writes datafiles.
type Storage struct {
	os       osOps
	dirMode  os.FileMode
	fileMode os.FileMode
}

// NewStorage returns a storage using the file system of the host.
func NewStorage(options ...Option) *Storage {
	s := &Storage{
		os:       &osImpl{},
		dirMode:  DefaultDirMode,
		fileMode: DefaultFileMode,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func checkName(filename string) error {
	if filename == "" || strings.HasSuffix(filename, backupSuffix) {
		return ErrDatafileName{Name: filename}
	}
	return nil
}

// CrashSafeWrite replaces filename with the output of write. The content is
// written and synced to a temporary file first, then renamed over filename,
// so readers find either the old or the new content.
func (s *Storage) CrashSafeWrite(filename string, write func(io.Writer) error) error {
	if err := checkName(filename); err != nil {
		return err
	}
	dir := filepath.Dir(filename)
	if err := osSpecificEnsureDir(s.os, dir, s.dirMode); err != nil {
		return err
	}
	if err := s.flush(dir, true); err != nil {
		return err
	}

	exists, err := s.Exists(filename)
	if err != nil {
		return err
	}
	if exists {
		if err := s.flush(filename, false); err != nil {
			return err
		}
	}

	temp := filename + backupSuffix
	if err := s.writeFile(temp, write); err != nil {
		return err
	}
	if err := s.flush(temp, false); err != nil {
		return err
	}
	if err := s.os.Rename(temp, filename); err != nil {
		return err
	}
	return s.flush(dir, true)
}

// EnsureDatafileIntegrity makes sure filename exists. A write interrupted
// after the temporary file was complete is finished by renaming it; without
// either file an empty one is created.
func (s *Storage) EnsureDatafileIntegrity(filename string) error {
	if err := checkName(filename); err != nil {
		return err
	}
	exists, err := s.Exists(filename)
	if err != nil || exists {
		return err
	}
	temp := filename + backupSuffix
	backup, err := s.Exists(temp)
	if err != nil {
		return err
	}
	if backup {
		return s.os.Rename(temp, filename)
	}
	if err := osSpecificEnsureDir(s.os, filepath.Dir(filename), s.dirMode); err != nil {
		return err
	}
	return s.os.WriteFile(filename, nil, s.fileMode)
}

// Exists reports whether filename exists.
func (s *Storage) Exists(filename string) (bool, error) {
	_, err := s.os.Stat(filename)
	if err == nil {
		return true, nil
	}
	if s.os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Open returns a reader of filename.
func (s *Storage) Open(filename string) (io.ReadCloser, error) {
	return s.os.OpenFile(filename, os.O_RDONLY, s.fileMode)
}

// Remove deletes filename and its temporary file, if any.
func (s *Storage) Remove(filename string) error {
	var errs []error
	for _, name := range []string{filename, filename + backupSuffix} {
		if err := s.os.Remove(name); err != nil && !s.os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Storage) writeFile(filename string, write func(io.Writer) error) error {
	f, err := s.os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, s.fileMode)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Storage) flush(name string, isDir bool) error {
	flags := os.O_RDWR
	if isDir {
		flags = os.O_RDONLY
	}
	f, err := s.os.OpenFile(name, flags, s.fileMode)
	if err != nil {
		return ErrFlushToStorage{Name: name, ErrorOnFsync: err}
	}
	if err := osSpecificSync(f, isDir); err != nil {
		f.Close()
		return ErrFlushToStorage{Name: name, ErrorOnFsync: err}
	}
	if err := f.Close(); err != nil {
		return ErrFlushToStorage{Name: name, ErrorOnClose: err}
	}
	return nil
}
