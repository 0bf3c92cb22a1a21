package mocks

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/user/vidshrink/pkg/ports"
)

// FileSystem is an in-memory ports.FileSystem. It keeps the order of
// writes and tracks temporary source copies so tests can check that every
// materialized source is removed again.
type FileSystem struct {
	ReadFileFunc  func(path string) ([]byte, error)
	WriteFileFunc func(path string, data []byte) error
	TempFileFunc  func(pattern string, data []byte) (string, error)

	mu      sync.RWMutex
	files   map[string][]byte
	dirs    map[string]bool
	writes  []string
	temps   map[string]bool // temp path -> still present
	tempSeq int
}

// NewFileSystem returns an empty in-memory file system.
func NewFileSystem() *FileSystem {
	return &FileSystem{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
		temps: make(map[string]bool),
	}
}

// Seed places a file without recording it as a write, e.g. a source video.
func (m *FileSystem) Seed(p string, data []byte) *FileSystem {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path.Clean(p)] = data
	return m
}

func (m *FileSystem) ReadFile(p string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(p)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if data, ok := m.files[path.Clean(p)]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("file not found: %s", p)
}

func (m *FileSystem) WriteFile(p string, data []byte) error {
	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(p, data)
	}
	p = path.Clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = data
	m.writes = append(m.writes, p)
	return nil
}

func (m *FileSystem) MkdirAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path.Clean(p)] = true
	return nil
}

func (m *FileSystem) Exists(p string) (bool, error) {
	p = path.Clean(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, isFile := m.files[p]
	return isFile || m.dirs[p], nil
}

func (m *FileSystem) Remove(p string) error {
	p = path.Clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, p)
	delete(m.dirs, p)
	if _, ok := m.temps[p]; ok {
		m.temps[p] = false
	}
	return nil
}

// TempFile stores data under /tmp, replacing the last "*" of pattern with
// a sequence number.
func (m *FileSystem) TempFile(pattern string, data []byte) (string, error) {
	if m.TempFileFunc != nil {
		return m.TempFileFunc(pattern, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tempSeq++
	name := pattern + fmt.Sprint(m.tempSeq)
	if i := strings.LastIndex(pattern, "*"); i >= 0 {
		name = pattern[:i] + fmt.Sprint(m.tempSeq) + pattern[i+1:]
	}
	p := path.Join("/tmp", name)
	m.files[p] = data
	m.temps[p] = true
	return p, nil
}

// GetFile returns the contents of a file.
func (m *FileSystem) GetFile(p string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path.Clean(p)]
	return data, ok
}

// GetAllFiles returns a copy of every stored file, seeded ones included.
func (m *FileSystem) GetAllFiles() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string][]byte, len(m.files))
	for k, v := range m.files {
		result[k] = v
	}
	return result
}

// Writes returns the written paths in call order.
func (m *FileSystem) Writes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.writes...)
}

// LeakedTempFiles returns temp files that were created but never removed.
func (m *FileSystem) LeakedTempFiles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var leaked []string
	for p, present := range m.temps {
		if present {
			leaked = append(leaked, p)
		}
	}
	sort.Strings(leaked)
	return leaked
}

var _ ports.FileSystem = (*FileSystem)(nil)
