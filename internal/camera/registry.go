package camera

import (
	"fmt"
	"sort"
	"sync"
)

// Backend names.
const (
	BackendSynthetic = "synthetic"
	BackendGStreamer = "gstreamer"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Capturer{
		BackendSynthetic: func() Capturer { return NewSyntheticCapturer(1) },
	}
)

// Register makes a capture backend available under name. Backends built
// behind build tags register themselves from init.
func Register(name string, factory func() Capturer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Lookup returns a new Capturer for the named backend.
func Lookup(name string) (Capturer, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown camera backend %q (available: %v)", name, Backends())
	}
	return factory(), nil
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultBackend is gstreamer when compiled in, otherwise synthetic.
func DefaultBackend() string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if _, ok := registry[BackendGStreamer]; ok {
		return BackendGStreamer
	}
	return BackendSynthetic
}
