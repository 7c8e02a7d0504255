package nlu

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handle owns one lazily loaded model artifact. The loader runs on the
// first Acquire, the artifact stays resident while the reference count is
// above zero, and the release hook runs when the registry unloads it.
type Handle struct {
	name    string
	loader  func() (any, error)
	release func(any)

	mu       sync.Mutex
	artifact any
	loaded   bool
	refs     int
}

// Acquire loads the artifact if needed and pins it. Every Acquire must be
// paired with a Release.
func (h *Handle) Acquire() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.loaded {
		artifact, err := h.loader()
		if err != nil {
			return nil, fmt.Errorf("failed to load model %s: %w", h.name, err)
		}
		h.artifact = artifact
		h.loaded = true
	}
	h.refs++
	return h.artifact, nil
}

// Release unpins the artifact. The artifact stays resident for the next
// Acquire; only the registry unloads it.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs > 0 {
		h.refs--
	}
}

func (h *Handle) unload() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.loaded {
		return
	}
	if h.release != nil {
		h.release(h.artifact)
	}
	h.artifact = nil
	h.loaded = false
	h.refs = 0
}

func (h *Handle) isLoaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

// Registry tracks every model handle in the process so shutdown can
// release them in one sweep.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
	log     *logrus.Logger
}

// NewRegistry returns an empty model registry.
func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		handles: make(map[string]*Handle),
		log:     log,
	}
}

// Register adds a handle under name, replacing any previous registration.
// The loader is deferred until the first Acquire; release may be nil for
// artifacts without teardown.
func (r *Registry) Register(name string, loader func() (any, error), release func(any)) *Handle {
	h := &Handle{name: name, loader: loader, release: release}
	r.mu.Lock()
	r.handles[name] = h
	r.mu.Unlock()
	return h
}

// Handle looks up a registered handle by name.
func (r *Registry) Handle(name string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[name]
	return h, ok
}

// Loaded reports the names of models currently resident in memory.
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for name, h := range r.handles {
		if h.isLoaded() {
			names = append(names, name)
		}
	}
	return names
}

// ReleaseAll unloads every resident model. Called on shutdown.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		if h.isLoaded() {
			h.unload()
			if r.log != nil {
				r.log.WithField("model", h.name).Info("released model")
			}
		}
	}
}
