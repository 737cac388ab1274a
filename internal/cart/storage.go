package cart

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Storage holds the serialized cart between runs. Read returns nil, nil when nothing is stored.
type Storage interface {
	Read() ([]byte, error)
	Write(data []byte) error
	Remove() error
}

// FileStorage keeps the cart in a single file, replaced atomically on every write
type FileStorage struct {
	path string
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (s *FileStorage) Path() string { return s.path }

func (s *FileStorage) Read() ([]byte, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

func (s *FileStorage) Write(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cart dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cart-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStorage) Remove() error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryStorage is a Storage for tests
type MemoryStorage struct {
	mu   sync.Mutex
	data []byte
}

func (s *MemoryStorage) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, nil
	}
	return append([]byte(nil), s.data...), nil
}

func (s *MemoryStorage) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStorage) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}
