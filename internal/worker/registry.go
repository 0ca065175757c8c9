package worker

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry = make(map[string]Worker)
	mu       sync.RWMutex
)

// ErrNotFound wraps lookups of unregistered worker names.
type ErrNotFound struct {
	Name string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("worker not found: %s", e.Name)
}

// Register adds a worker to the global registry. Workers register themselves
// in init(); duplicate names are a programming error.
func Register(w Worker) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[w.Name()]; exists {
		panic(fmt.Sprintf("worker %s already registered", w.Name()))
	}
	registry[w.Name()] = w
}

// List returns every registered worker sorted by name.
func List() []Worker {
	mu.RLock()
	defer mu.RUnlock()
	var workers []Worker
	for _, w := range registry {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool {
		return workers[i].Name() < workers[j].Name()
	})
	return workers
}

// Resolve returns the registered worker with the given name.
func Resolve(name string) (Worker, error) {
	mu.RLock()
	defer mu.RUnlock()
	w, ok := registry[name]
	if !ok {
		return nil, ErrNotFound{Name: name}
	}
	return w, nil
}
