package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Permission describes a permission definition registered by a module.
type Permission struct {
	ID          string
	Module      string
	Description string
	DependsOn   []string
}

var (
	// ErrUnknownPermission indicates a lookup for a permission that was never registered.
	ErrUnknownPermission = errors.New("permission: unknown permission")
	// ErrCircularDependency signals that a dependency graph contains a cycle.
	ErrCircularDependency = errors.New("permission: circular dependency detected")

	errEmptyID        = errors.New("permission: id is required")
	errDuplicateID    = errors.New("permission: already registered")
	errSelfDependency = errors.New("permission: cannot depend on itself")
)

var registry = struct {
	sync.RWMutex
	defs map[string]Permission
}{defs: make(map[string]Permission)}

// Register adds a permission definition to the registry.
func Register(perm Permission) error {
	perm.ID = strings.TrimSpace(perm.ID)
	if perm.ID == "" {
		return errEmptyID
	}
	perm.Module = strings.TrimSpace(perm.Module)

	seen := make(map[string]struct{}, len(perm.DependsOn))
	deps := make([]string, 0, len(perm.DependsOn))
	for _, dep := range perm.DependsOn {
		dep = strings.TrimSpace(dep)
		if dep == "" {
			continue
		}
		if dep == perm.ID {
			return fmt.Errorf("%w: %s", errSelfDependency, perm.ID)
		}
		if _, dup := seen[dep]; dup {
			continue
		}
		seen[dep] = struct{}{}
		deps = append(deps, dep)
	}
	perm.DependsOn = deps

	registry.Lock()
	defer registry.Unlock()

	if _, exists := registry.defs[perm.ID]; exists {
		return fmt.Errorf("%w: %s", errDuplicateID, perm.ID)
	}
	registry.defs[perm.ID] = perm
	return nil
}

// Get returns the permission definition when registered.
func Get(id string) (Permission, bool) {
	registry.RLock()
	defer registry.RUnlock()

	perm, ok := registry.defs[id]
	if !ok {
		return Permission{}, false
	}
	perm.DependsOn = append([]string(nil), perm.DependsOn...)
	return perm, true
}

// All returns every registered permission ordered by id.
func All() []Permission {
	registry.RLock()
	out := make([]Permission, 0, len(registry.defs))
	for _, perm := range registry.defs {
		perm.DependsOn = append([]string(nil), perm.DependsOn...)
		out = append(out, perm)
	}
	registry.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResolveDependencies returns every permission id that id transitively depends on.
func ResolveDependencies(id string) ([]string, error) {
	registry.RLock()
	defer registry.RUnlock()

	if _, ok := registry.defs[id]; !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPermission, id)
	}

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var resolved []string

	var walk func(string) error
	walk = func(current string) error {
		switch state[current] {
		case visiting:
			return fmt.Errorf("%w at %s", ErrCircularDependency, current)
		case done:
			return nil
		}
		perm, ok := registry.defs[current]
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownPermission, current)
		}
		state[current] = visiting
		for _, dep := range perm.DependsOn {
			if err := walk(dep); err != nil {
				return err
			}
		}
		state[current] = done
		if current != id {
			resolved = append(resolved, current)
		}
		return nil
	}

	if err := walk(id); err != nil {
		return nil, err
	}
	return resolved, nil
}

func unregister(id string) {
	registry.Lock()
	delete(registry.defs, id)
	registry.Unlock()
}
