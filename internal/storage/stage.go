// Package storage manages the flat staging directory that holds uploaded
// files. File identity is the file name inside the staging root.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harrison/filestage/internal/filelock"
	"github.com/harrison/filestage/internal/models"
)

// Options configures a Stage.
type Options struct {
	// Policy controls filename validation.
	Policy NamePolicy
	// SortListing sorts List output by name. When false the order is
	// whatever the directory read returns and may differ between calls.
	SortListing bool
}

// Stage is the storage adapter over one staging root. It keeps no state
// besides its configuration; every call goes to the filesystem.
type Stage struct {
	root string
	opts Options
}

// NewStage creates a Stage rooted at root. The directory is not created
// until Bootstrap or the first Put.
func NewStage(root string, opts Options) *Stage {
	return &Stage{root: root, opts: opts}
}

// Root returns the staging root directory.
func (s *Stage) Root() string {
	return s.root
}

// Policy returns the filename policy in force.
func (s *Stage) Policy() NamePolicy {
	return s.opts.Policy
}

// ValidName applies the filename policy to name.
func (s *Stage) ValidName(name string) bool {
	return s.opts.Policy.Validate(name)
}

// Bootstrap creates the staging root if it does not exist.
func (s *Stage) Bootstrap() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return models.NewOpError("bootstrap", s.root, models.ErrStorageFailure, err)
	}
	return nil
}

// Path resolves a name to its location in the staging root.
// The empty name resolves to the root itself.
func (s *Stage) Path(name string) string {
	return filepath.Join(s.root, name)
}

// Exists reports whether name is currently a regular file in the staging
// root. A missing root counts as not existing.
func (s *Stage) Exists(name string) (bool, error) {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, models.NewOpError("exists", name, models.ErrStorageFailure, err)
	}
	return info.Mode().IsRegular(), nil
}

// Stat returns metadata for a stored file.
func (s *Stage) Stat(name string) (*models.StoredFile, error) {
	path := s.Path(name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.NewOpError("stat", name, models.ErrNotFound, nil)
		}
		return nil, models.NewOpError("stat", name, models.ErrStorageFailure, err)
	}
	if !info.Mode().IsRegular() {
		return nil, models.NewOpError("stat", name, models.ErrNotFound, nil)
	}
	return &models.StoredFile{
		Name:    name,
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Put stores the full content of r under name, replacing any previous
// file. The outcome is Created when no file of that name existed and
// Replaced otherwise. Invalid names are Rejected before any filesystem
// access.
func (s *Stage) Put(name string, r io.Reader) (models.UploadOutcome, error) {
	if !s.ValidName(name) {
		return models.OutcomeRejected, models.NewOpError("upload", name, models.ErrInvalidInput, errors.New("invalid file name"))
	}

	// A valid empty name resolves to the root directory, which cannot be
	// overwritten by a file.
	if name == "" {
		return models.OutcomeRejected, models.NewOpError("upload", name, models.ErrStorageFailure, errors.New("empty name resolves to the staging root"))
	}

	if err := s.Bootstrap(); err != nil {
		return models.OutcomeRejected, err
	}

	existed, err := s.Exists(name)
	if err != nil {
		return models.OutcomeRejected, err
	}

	if _, err := filelock.AtomicWriteReader(s.Path(name), r); err != nil {
		return models.OutcomeRejected, models.NewOpError("upload", name, models.ErrStorageFailure, err)
	}

	if existed {
		return models.OutcomeReplaced, nil
	}
	return models.OutcomeCreated, nil
}

// Read returns the stored bytes of name.
func (s *Stage) Read(name string) ([]byte, error) {
	ok, err := s.Exists(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewOpError("read", name, models.ErrNotFound, nil)
	}
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, models.NewOpError("read", name, models.ErrStorageFailure, err)
	}
	return data, nil
}

// Names returns every stored file name. Directories and in-flight temp
// files are skipped.
func (s *Stage) Names() ([]string, error) {
	dir, err := os.Open(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, models.NewOpError("list", s.root, models.ErrStorageFailure, err)
	}
	defer dir.Close()

	// ReadDir on an open file keeps directory order, unlike os.ReadDir
	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, models.NewOpError("list", s.root, models.ErrStorageFailure, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), filelock.TempPrefix) {
			continue
		}
		names = append(names, entry.Name())
	}

	if s.opts.SortListing {
		sort.Strings(names)
	}
	return names, nil
}

// List returns one page of stored file names using the same [start, end)
// window as record queries.
func (s *Stage) List(page, limit int) ([]string, error) {
	if page < 1 {
		return nil, models.NewOpError("list", s.root, models.ErrInvalidInput, fmt.Errorf("page must be > 0, got %d", page))
	}
	if limit < 1 {
		return nil, models.NewOpError("list", s.root, models.ErrInvalidInput, fmt.Errorf("limit must be > 0, got %d", limit))
	}

	names, err := s.Names()
	if err != nil {
		return nil, err
	}

	start, end := models.Window(page, limit, len(names))
	return names[start:end], nil
}
