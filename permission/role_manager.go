package permission

import (
	"errors"
	"sync"
)

// RoleManager holds the permission mask granted to each role. Roles flagged
// as superusers pass every check regardless of their mask.
type RoleManager struct {
	registry *Registry

	mu         sync.RWMutex
	roles      map[string]Mask
	superusers map[string]bool
	frozen     bool
}

func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry:   registry,
		roles:      make(map[string]Mask),
		superusers: make(map[string]bool),
	}
}

// RegisterRole grants permissionNames to roleName. Every name must already be
// in the registry.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	switch {
	case rm.frozen:
		return errors.New("role manager frozen")
	case roleName == "":
		return errors.New("role name empty")
	}
	if _, exists := rm.roles[roleName]; exists {
		return errors.New("role already registered: " + roleName)
	}

	var mask Mask
	for _, perm := range permissionNames {
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return errors.New("permission not registered: " + perm)
		}
		mask.Set(bit)
	}

	rm.roles[roleName] = mask
	return nil
}

// RegisterSuperuser marks roleName as passing every permission check.
func (rm *RoleManager) RegisterSuperuser(roleName string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}
	if _, exists := rm.roles[roleName]; !exists {
		rm.roles[roleName] = 0
	}
	rm.superusers[roleName] = true
	return nil
}

func (rm *RoleManager) Mask(roleName string) (Mask, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	mask, ok := rm.roles[roleName]
	return mask, ok
}

// Allows reports whether roleName holds perm. Unknown roles and unknown
// permissions are denied.
func (rm *RoleManager) Allows(roleName, perm string) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if rm.superusers[roleName] {
		return true
	}
	mask, ok := rm.roles[roleName]
	if !ok {
		return false
	}
	bit, ok := rm.registry.Bit(perm)
	if !ok {
		return false
	}
	return mask.Has(bit)
}

func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
