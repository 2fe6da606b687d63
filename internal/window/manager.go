package window

import (
	"encoding/hex"
	"log/slog"
	"sort"
	"sync"

	"github.com/acolita/devremote/internal/ports"
)

// Manager tracks the open windows of the application.
type Manager struct {
	windows map[string]*Window
	mu      sync.RWMutex
	logger  *slog.Logger
	random  ports.Random
	onOpen  []func(*Window)

	windowOpts []Option
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIDSource sets the random source for window IDs.
func WithIDSource(r ports.Random) ManagerOption {
	return func(m *Manager) {
		m.random = r
	}
}

// WithWindowOptions applies opts to every window the manager opens.
func WithWindowOptions(opts ...Option) ManagerOption {
	return func(m *Manager) {
		m.windowOpts = append(m.windowOpts, opts...)
	}
}

// NewManager creates a new window manager.
func NewManager(logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		windows: make(map[string]*Window),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnOpen registers fn to be called with every newly opened window.
func (m *Manager) OnOpen(fn func(*Window)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOpen = append(m.onOpen, fn)
}

// Open opens a window for host and tracks it until it is removed.
func (m *Manager) Open(host string) *Window {
	opts := []Option{WithLogger(m.logger), withRemoveHook(m.forget)}
	if m.random != nil {
		opts = append(opts, WithRandom(m.random))
	}
	opts = append(opts, m.windowOpts...)
	w := Open(host, opts...)

	m.mu.Lock()
	m.windows[w.id] = w
	hooks := append([]func(*Window){}, m.onOpen...)
	m.mu.Unlock()

	m.logger.Debug("window opened", "host", host, "window", w.id)
	for _, fn := range hooks {
		fn(w)
	}
	return w
}

func (m *Manager) forget(w *Window) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, w.id)
}

// Get returns the window with the given id.
func (m *Manager) Get(id string) (*Window, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[id]
	return w, ok
}

// List returns the open windows ordered by id.
func (m *Manager) List() []*Window {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*Window, 0, len(m.windows))
	for _, w := range m.windows {
		list = append(list, w)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}

// Count returns the number of open windows.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.windows)
}

// CloseAll removes every open window.
func (m *Manager) CloseAll() {
	for _, w := range m.List() {
		w.Remove()
	}
}

// newID generates a window ID from r.
func newID(r ports.Random) string {
	b := make([]byte, 8)
	r.Read(b)
	return "win_" + hex.EncodeToString(b)
}
