package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"task-manager/domain"
)

const fileFormatVersion = 1

// fileDocument is the on-disk layout of the tasks file.
type fileDocument struct {
	Version int           `json:"version"`
	Tasks   []domain.Task `json:"tasks"`
}

// FileBackend keeps the task list in a single JSON file.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend reading and writing path.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("tasks file path required")
	}
	return &FileBackend{path: path}, nil
}

// Path returns the tasks file location.
func (f *FileBackend) Path() string {
	return f.path
}

// Load reads the tasks file. A file that exists but cannot be read or decoded
// is renamed to <path>.corrupt so a later Save does not overwrite it.
func (f *FileBackend) Load(ctx context.Context) ([]domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoData
		}
		return nil, f.moveAside(fmt.Errorf("read %s: %w", f.path, err))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNoData
	}

	tasks, err := decodeDocument(data)
	if err != nil {
		return nil, f.moveAside(fmt.Errorf("%s: %w", f.path, err))
	}
	return tasks, nil
}

// moveAside renames the tasks file to the first free <path>.corrupt name.
// The returned error wraps ErrMovedAside only when the rename succeeded.
func (f *FileBackend) moveAside(cause error) error {
	aside := f.path + ".corrupt"
	for i := 1; ; i++ {
		if _, err := os.Lstat(aside); err != nil {
			break
		}
		aside = fmt.Sprintf("%s.corrupt.%d", f.path, i)
	}
	if err := os.Rename(f.path, aside); err != nil {
		return fmt.Errorf("%w (file left in place: %v)", cause, err)
	}
	return fmt.Errorf("%w: %w to %s", cause, ErrMovedAside, aside)
}

// Save writes the whole list to a temporary file and renames it over the
// tasks file.
func (f *FileBackend) Save(ctx context.Context, tasks []domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeDocument(tasks)
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path, data, 0o644)
}

func encodeDocument(tasks []domain.Task) ([]byte, error) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	data, err := sonic.ConfigStd.MarshalIndent(fileDocument{Version: fileFormatVersion, Tasks: tasks}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	return append(data, '\n'), nil
}

func decodeDocument(data []byte) ([]domain.Task, error) {
	var doc fileDocument
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if doc.Version != fileFormatVersion {
		return nil, fmt.Errorf("%w: %w %d", ErrCorruptData, ErrUnsupportedVersion, doc.Version)
	}
	for i, t := range doc.Tasks {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%w: task %d: %v", ErrCorruptData, i, err)
		}
	}
	return doc.Tasks, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	tmpPath = ""
	return syncDir(dir)
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}
