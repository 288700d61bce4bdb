package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kdudkov/tileview/pkg/model"
)

var _ Store = &FileStore{}

// FileStore keeps one file per tile: <dir>/<x>-<y>-<z>.<ext>.
type FileStore struct {
	dir string
	ext string
}

func NewFileStore(dir, ext string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	if ext == "" {
		ext = "png"
	}

	return &FileStore{dir: dir, ext: strings.ToLower(ext)}, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Path(a model.Address) string {
	return filepath.Join(s.dir, a.Key()+"."+s.ext)
}

// AddressOf maps a cache file name back to its address.
func (s *FileStore) AddressOf(path string) (model.Address, bool) {
	name := filepath.Base(path)

	if !strings.HasSuffix(name, "."+s.ext) {
		return model.Address{}, false
	}

	a, err := model.ParseKey(strings.TrimSuffix(name, "."+s.ext))
	if err != nil {
		return model.Address{}, false
	}

	return a, true
}

func (s *FileStore) Has(a model.Address) bool {
	st, err := os.Stat(s.Path(a))

	return err == nil && st.Mode().IsRegular() && st.Size() > 0
}

func (s *FileStore) Load(a model.Address) ([]byte, error) {
	data, err := os.ReadFile(s.Path(a))

	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	if _, err := Validate(data); err != nil {
		return nil, fmt.Errorf("%s: %w", a.Key(), err)
	}

	return data, nil
}

func (s *FileStore) Save(a model.Address, data []byte) error {
	fname := s.Path(a)
	tmp := fname + ".tmp"

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}

	if err := os.Rename(tmp, fname); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return nil
}

func (s *FileStore) Close() error {
	return nil
}
