package engine

import (
	"os"
	"sync"
)

// partialRegistry tracks destination files that are still being received,
// so an interrupted daemon can remove them instead of leaving truncated data.
var partialRegistry = &registry{}

type registry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// RegisterPartial marks path as an in-progress destination.
func RegisterPartial(path string) {
	partialRegistry.mu.Lock()
	defer partialRegistry.mu.Unlock()
	if partialRegistry.paths == nil {
		partialRegistry.paths = make(map[string]struct{})
	}
	partialRegistry.paths[path] = struct{}{}
}

// DeregisterPartial marks path as complete (or already cleaned up).
func DeregisterPartial(path string) {
	partialRegistry.mu.Lock()
	defer partialRegistry.mu.Unlock()
	delete(partialRegistry.paths, path)
}

// CleanupPartial removes every registered destination and returns how many
// paths were registered.
func CleanupPartial() int {
	partialRegistry.mu.Lock()
	paths := make([]string, 0, len(partialRegistry.paths))
	for p := range partialRegistry.paths {
		paths = append(paths, p)
	}
	partialRegistry.paths = nil
	partialRegistry.mu.Unlock()

	for _, p := range paths {
		_ = os.Remove(p)
	}
	return len(paths)
}
