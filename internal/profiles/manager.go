package profiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrInvalidProfileName = errors.New("invalid profile name")

// Manager hands out browser profile directories under one root. Every
// directory it creates is tracked so ephemeral runs can remove them.
type Manager struct {
	root      string
	ephemeral bool

	mu      sync.Mutex
	created map[string]struct{}
}

func NewManager(root string, ephemeral bool) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve profile root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create profile root: %w", err)
	}
	return &Manager{
		root:      absRoot,
		ephemeral: ephemeral,
		created:   make(map[string]struct{}),
	}, nil
}

func (m *Manager) Root() string {
	return m.root
}

// Dir returns <root>/<prefix>-<index>, creating it if needed.
func (m *Manager) Dir(prefix string, index int) (string, error) {
	return m.Named(fmt.Sprintf("%s-%d", prefix, index))
}

func (m *Manager) Named(name string) (string, error) {
	abs, err := m.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create profile directory: %w", err)
	}
	m.mu.Lock()
	m.created[abs] = struct{}{}
	m.mu.Unlock()
	return abs, nil
}

// Cleanup removes every directory handed out so far when the manager is
// ephemeral. Persistent profiles are left alone so logins survive reruns.
func (m *Manager) Cleanup() error {
	if !m.ephemeral {
		return nil
	}
	m.mu.Lock()
	dirs := make([]string, 0, len(m.created))
	for dir := range m.created {
		dirs = append(dirs, dir)
	}
	m.created = make(map[string]struct{})
	m.mu.Unlock()

	var errs []error
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove profile %s: %w", dir, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) resolve(name string) (string, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	normalized = strings.TrimPrefix(normalized, "./")
	if normalized == "" || normalized == "." || strings.HasPrefix(normalized, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidProfileName, name)
	}

	absClean := filepath.Clean(filepath.Join(m.root, filepath.FromSlash(normalized)))
	rel, err := filepath.Rel(m.root, absClean)
	if err != nil {
		return "", fmt.Errorf("resolve profile path: %w", err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes %s", ErrInvalidProfileName, name, m.root)
	}
	return absClean, nil
}
