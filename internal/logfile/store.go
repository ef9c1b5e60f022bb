// Package logfile stores terminal output as one append-only file per
// console process handle.
//
// The file name is the handle followed by ".log", so the set of handles can
// be recovered from a directory listing. The store holds no state besides the
// directory path and performs no locking: each handle has a single writer.
package logfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Extension is appended to a handle to form its file name.
const Extension = ".log"

// ChunkSize is the number of bytes returned by ReadChunk.
const ChunkSize = 8192

var (
	// ErrInvalidHandle is returned for handles that cannot be mapped to a
	// file name.
	ErrInvalidHandle = errors.New("invalid log handle")

	handlePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// IOError reports a file system failure for a handle's log file.
type IOError struct {
	Op     string
	Handle string
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("log %s %s: %v", e.Op, e.Handle, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsIOError reports whether err is, or wraps, an *IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// ValidHandle reports whether handle can be stored by this package.
func ValidHandle(handle string) bool {
	return handlePattern.MatchString(handle)
}

// Store maps handles to files under a single directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created lazily
// on the first append.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the log directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(handle string) (string, error) {
	if !ValidHandle(handle) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}
	return filepath.Join(s.dir, handle+Extension), nil
}

// Append writes text to the end of the handle's log, creating it if needed.
func (s *Store) Append(handle, text string) error {
	path, err := s.path(handle)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return &IOError{Op: "append", Handle: handle, Err: err}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return &IOError{Op: "append", Handle: handle, Err: err}
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return &IOError{Op: "append", Handle: handle, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "append", Handle: handle, Err: err}
	}
	return nil
}

// Read returns the full contents of the handle's log. A missing log reads as
// empty.
func (s *Store) Read(handle string) (string, error) {
	path, err := s.path(handle)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", &IOError{Op: "read", Handle: handle, Err: err}
	}
	return string(data), nil
}

// ReadChunk returns the index-th ChunkSize slice of the handle's log and
// whether more data follows it. A missing log reads as an empty last chunk.
func (s *Store) ReadChunk(handle string, index int) (string, bool, error) {
	if index < 0 {
		return "", false, fmt.Errorf("negative chunk index %d", index)
	}
	path, err := s.path(handle)
	if err != nil {
		return "", false, err
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &IOError{Op: "read", Handle: handle, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", false, &IOError{Op: "read", Handle: handle, Err: err}
	}

	offset := int64(index) * ChunkSize
	if offset >= info.Size() {
		return "", false, nil
	}

	buf := make([]byte, ChunkSize)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return "", false, &IOError{Op: "read", Handle: handle, Err: err}
	}
	return string(buf[:n]), offset+int64(n) < info.Size(), nil
}

// Delete removes the handle's log. Deleting a missing log is a no-op.
func (s *Store) Delete(handle string) error {
	path, err := s.path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &IOError{Op: "delete", Handle: handle, Err: err}
	}
	return nil
}

// Exists reports whether the handle has a log on disk.
func (s *Store) Exists(handle string) (bool, error) {
	path, err := s.path(handle)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &IOError{Op: "stat", Handle: handle, Err: err}
	}
	return true, nil
}

// ListHandles returns the handles of every log in the directory. Entries
// that do not follow the naming scheme are ignored. A missing directory
// holds no handles.
func (s *Store) ListHandles() (map[string]struct{}, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, &IOError{Op: "list", Handle: s.dir, Err: err}
	}

	handles := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, Extension) {
			continue
		}
		handle := strings.TrimSuffix(name, Extension)
		if !ValidHandle(handle) {
			continue
		}
		handles[handle] = struct{}{}
	}
	return handles, nil
}
