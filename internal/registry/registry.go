// Package registry holds an in-memory snapshot of sensor metadata and
// answers derivation-graph questions against it.
package registry

import (
	"context"
	"sync"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

// maxWalkDepth caps the derivation walk. Chains deeper than this are treated
// as unknown rather than walked further.
const maxWalkDepth = 8

type SensorStore interface {
	ListSensors(ctx context.Context) ([]entity.Sensor, error)
}

type Registry struct {
	mu      sync.RWMutex
	sensors map[string]entity.Sensor
}

func New() *Registry {
	return &Registry{sensors: make(map[string]entity.Sensor)}
}

// Load replaces the snapshot wholesale from the store.
func (r *Registry) Load(ctx context.Context, store SensorStore) error {
	sensors, err := store.ListSensors(ctx)
	if err != nil {
		return err
	}
	next := make(map[string]entity.Sensor, len(sensors))
	for _, s := range sensors {
		next[s.ID] = s
	}
	r.mu.Lock()
	r.sensors = next
	r.mu.Unlock()
	return nil
}

func (r *Registry) Put(s entity.Sensor) {
	r.mu.Lock()
	r.sensors[s.ID] = s
	r.mu.Unlock()
}

func (r *Registry) Sensor(id string) (entity.Sensor, bool) {
	r.mu.RLock()
	s, ok := r.sensors[id]
	r.mu.RUnlock()
	return s, ok
}

// IDs returns all known sensor ids in unspecified order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sensors))
	for id := range r.sensors {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sensors)
}

// Dependency reports whether candidate is derived from focus (or vice
// versa) by walking DerivedFrom edges from both ends. Unknown sensors,
// cycles, and over-deep chains report DependencyUnknown.
func (r *Registry) Dependency(focusID, candidateID string) entity.DependencyStatus {
	if focusID == candidateID {
		return entity.DependencyDerived
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.sensors[focusID]; !ok {
		return entity.DependencyUnknown
	}
	if _, ok := r.sensors[candidateID]; !ok {
		return entity.DependencyUnknown
	}

	down, okDown := r.reaches(candidateID, focusID)
	if down {
		return entity.DependencyDerived
	}
	up, okUp := r.reaches(focusID, candidateID)
	if up {
		return entity.DependencyDerived
	}
	if !okDown || !okUp {
		return entity.DependencyUnknown
	}
	return entity.DependencyIndependent
}

// reaches walks DerivedFrom edges from 'from' looking for 'target'. The
// second return is false when the walk was cut short by a cycle, a missing
// ancestor, or the depth cap.
func (r *Registry) reaches(from, target string) (found, complete bool) {
	visited := map[string]bool{from: true}
	frontier := []string{from}
	complete = true
	for depth := 0; depth < maxWalkDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			s, ok := r.sensors[id]
			if !ok {
				complete = false
				continue
			}
			for _, parent := range s.DerivedFrom {
				if parent == target {
					return true, true
				}
				if visited[parent] {
					complete = false
					continue
				}
				visited[parent] = true
				next = append(next, parent)
			}
		}
		frontier = next
	}
	if len(frontier) > 0 {
		complete = false
	}
	return false, complete
}
