// Package local keeps uploaded media in a single flat directory, each entry
// named by its original filename.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	storageutil "github.com/solusnoir/solus/storage/util"
)

const tempPrefix = ".solus-upload-"

var (
	// ErrInvalidName is returned for names that are not a single path element.
	ErrInvalidName = errors.New("invalid filename")
	// ErrNotFound is returned when an entry does not exist under the root.
	ErrNotFound = errors.New("file not found")
)

// StoreImpl stores uploaded media files in a local directory.
type StoreImpl struct {
	basePath  string
	publicURL string
	root      *os.Root
	locks     *nameLocks
}

// NewStore opens (creating if needed) the upload root. publicURL is the base
// under which entries are served, e.g. "/uploads/".
func NewStore(basePath string, publicURL string) (*StoreImpl, error) {
	if basePath == "" {
		return nil, fmt.Errorf("local store path is empty")
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	root, err := os.OpenRoot(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open base directory: %w", err)
	}

	return &StoreImpl{
		basePath:  basePath,
		publicURL: storageutil.NormalizeBaseURL(publicURL),
		root:      root,
		locks:     newNameLocks(),
	}, nil
}

// Save writes the contents of r under filename, replacing any previous entry
// of the same name. The entry appears atomically once fully written.
func (s *StoreImpl) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	if err := validName(filename); err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	unlock := s.locks.lock(filename)
	defer unlock()

	tmpName := tempPrefix + uuid.New().String()
	tmp, err := s.root.Create(tmpName)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		_ = s.root.Remove(tmpName)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = s.root.Remove(tmpName)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	if err := s.root.Rename(tmpName, filename); err != nil {
		_ = s.root.Remove(tmpName)
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	return s.Path(filename), nil
}

// List returns the names of regular files currently in the root, sorted.
// The result is a snapshot; callers apply their own filtering.
func (s *StoreImpl) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := s.root.Open(".")
	if err != nil {
		return nil, fmt.Errorf("failed to open base directory: %w", err)
	}
	defer dir.Close()

	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		names = append(names, e.Name())
	}

	sort.Strings(names)
	return names, nil
}

// Open opens an entry for reading. Names that would escape the root are
// rejected.
func (s *StoreImpl) Open(filename string) (*os.File, error) {
	if err := validName(filename); err != nil {
		return nil, err
	}

	f, err := s.root.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
		}
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}

	return f, nil
}

// Path returns the absolute path an entry is stored at.
func (s *StoreImpl) Path(filename string) string {
	return filepath.Join(s.basePath, filename)
}

// URL returns the public access URL of an entry.
func (s *StoreImpl) URL(filename string) string {
	return s.publicURL + url.PathEscape(filename)
}

func (s *StoreImpl) Close() error {
	return s.root.Close()
}

func validName(filename string) error {
	if filename == "" || filename == "." || filename == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}

	if strings.ContainsAny(filename, `/\`) || strings.ContainsRune(filename, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}

	if strings.HasPrefix(filename, tempPrefix) {
		return fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}

	return nil
}

// nameLocks hands out one mutex per filename, dropping it once no writer
// holds or waits on it.
type nameLocks struct {
	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

func newNameLocks() *nameLocks {
	return &nameLocks{locks: make(map[string]*nameLock)}
}

func (nl *nameLocks) lock(name string) func() {
	nl.mu.Lock()
	l, ok := nl.locks[name]
	if !ok {
		l = &nameLock{}
		nl.locks[name] = l
	}
	l.refs++
	nl.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		nl.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(nl.locks, name)
		}
		nl.mu.Unlock()
	}
}
