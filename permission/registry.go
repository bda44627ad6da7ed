package permission

import (
	"errors"
	"sync"
)

// MaxPermissions is the number of distinct permissions a Mask can hold.
const MaxPermissions = 64

// Registry maps permission names to bit positions. It is populated once at
// startup and frozen before use.
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

func NewRegistry() *Registry {
	return &Registry{
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}
}

// Register assigns the next free bit to name.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.frozen:
		return -1, errors.New("registry frozen")
	case name == "":
		return -1, errors.New("permission name cannot be empty")
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, errors.New("permission already registered: " + name)
	}

	bit := len(r.nameToBit)
	if bit >= MaxPermissions {
		return -1, errors.New("permission limit exceeded")
	}

	r.nameToBit[name] = bit
	r.bitToName[bit] = name
	return bit, nil
}

func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}
