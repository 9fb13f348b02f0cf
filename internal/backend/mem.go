package backend

import (
	"sort"
	"strings"
	"sync"

	"github.com/strata-backup/strata/internal/errors"
)

// MemBackend is an in-memory Backend used by this module's own test
// suites, the same role the teacher's internal/backend/mem package
// plays for restic's backend test suite.
type MemBackend struct {
	mu      sync.Mutex
	created bool
	files   map[string][]byte
	dirs    map[string]bool
}

// NewMem returns an empty in-memory backend. Create must still be
// called before RootExists reports true, matching real backends.
func NewMem() *MemBackend {
	return &MemBackend{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

var _ Backend = (*MemBackend)(nil)

func (m *MemBackend) Create() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = true
	m.dirs["."] = true
	return nil
}

func (m *MemBackend) RootExists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

func (m *MemBackend) Read(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, &BackendError{Kind: NotExist, Path: path, Err: errors.New("file does not exist")}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemBackend) ReadSeek(path string, offset, length int64) ([]byte, error) {
	data, err := m.Read(path)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset > int64(len(data)) {
		return nil, errors.Errorf("backend: %s: offset %d out of range", path, offset)
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end], nil
}

func (m *MemBackend) Write(path string, contents []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(contents))
	copy(buf, contents)
	m.files[path] = buf
	return nil
}

func (m *MemBackend) Rename(from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[from]
	if !ok {
		return &BackendError{Kind: NotExist, Path: from, Err: errors.New("file does not exist")}
	}
	m.files[to] = data
	delete(m.files, from)
	return nil
}

func (m *MemBackend) RemoveFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return &BackendError{Kind: NotExist, Path: path, Err: errors.New("file does not exist")}
	}
	delete(m.files, path)
	return nil
}

func (m *MemBackend) CreateDir(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path] = true
	return nil
}

func (m *MemBackend) CreateDirAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := strings.Split(path, "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if cur == "" {
			cur = p
		} else {
			cur = cur + "/" + p
		}
		m.dirs[cur] = true
	}
	return nil
}

func (m *MemBackend) ReadDir(path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := path
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	seen := make(map[string]bool)
	var names []string
	for f := range m.files {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		rest := strings.TrimPrefix(f, prefix)
		if rest == "" {
			continue
		}
		name := strings.SplitN(rest, "/", 2)[0]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for d := range m.dirs {
		if !strings.HasPrefix(d, prefix) || d == strings.TrimSuffix(prefix, "/") {
			continue
		}
		rest := strings.TrimPrefix(d, prefix)
		if rest == "" {
			continue
		}
		name := strings.SplitN(rest, "/", 2)[0]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemBackend) RemoveDir(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dirs, path)
	return nil
}

func (m *MemBackend) RemoveDirAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := path + "/"
	for f := range m.files {
		if strings.HasPrefix(f, prefix) {
			delete(m.files, f)
		}
	}
	for d := range m.dirs {
		if d == path || strings.HasPrefix(d, prefix) {
			delete(m.dirs, d)
		}
	}
	return nil
}

func (m *MemBackend) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; ok {
		return true
	}
	return m.dirs[path]
}

func (m *MemBackend) IsFile(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *MemBackend) IsDir(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[path]
}
