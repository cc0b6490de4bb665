package message

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Factory produces a zero value of a concrete Message type, ready to be
// unmarshaled into.
type Factory func() Message

// Registry maps wire names to message factories. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty message registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the name returned by its zero value.
// Registering the same name twice replaces the earlier factory.
func (r *Registry) Register(f Factory) {
	name := f().MessageName()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Decode reconstructs the typed Message carried by an envelope.
// Returns an error if the name is unknown or the payload does not parse.
func (r *Registry) Decode(env *Envelope) (Message, error) {
	r.mu.RLock()
	f, ok := r.factories[env.Name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("message: no factory registered for %q", env.Name)
	}

	msg := f()
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return nil, fmt.Errorf("message: decode %q: %w", env.Name, err)
		}
	}

	return msg, nil
}

// Known reports whether a factory is registered for the given name.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns all registered message names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
