package execution

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/supesu/trading-core/internal/infrastructure/cache"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

const enabledMetadataKey = "enabled"

// Registry holds the known execution backends and their enablement state.
// Enablement changes are persisted through the state cache so peer
// processes sharing the same cache tier converge on the same set.
type Registry struct {
	cache  *cache.StateCache
	logger logger.Logger

	mu         sync.RWMutex
	strategies map[string]Strategy
	enabled    map[string]bool
}

// NewRegistry creates an empty strategy registry
func NewRegistry(stateCache *cache.StateCache, log logger.Logger) *Registry {
	return &Registry{
		cache:      stateCache,
		logger:     log,
		strategies: make(map[string]Strategy),
		enabled:    make(map[string]bool),
	}
}

// Register adds a backend to the registry, enabled. Registering a second
// backend under an existing name is a configuration error.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.strategies[name]; exists {
		return domain.NewTradeError(domain.ErrKindConfiguration,
			fmt.Sprintf("strategy %q is already registered", name), nil)
	}

	r.strategies[name] = s
	r.enabled[name] = true
	r.logger.WithFields(map[string]interface{}{
		"strategy": name,
		"priority": s.Priority(),
	}).Info("Execution strategy registered")
	return nil
}

// Enable turns a backend on. The change applies to rotations started after
// this call; a rotation already in flight keeps its snapshot.
func (r *Registry) Enable(ctx context.Context, name string) error {
	return r.setEnabled(ctx, name, true)
}

// Disable turns a backend off without touching rotations already in flight
func (r *Registry) Disable(ctx context.Context, name string) error {
	return r.setEnabled(ctx, name, false)
}

func (r *Registry) setEnabled(ctx context.Context, name string, enabled bool) error {
	r.mu.Lock()
	if _, exists := r.strategies[name]; !exists {
		r.mu.Unlock()
		return domain.NewTradeError(domain.ErrKindConfiguration,
			fmt.Sprintf("strategy %q is not registered", name), nil)
	}
	r.enabled[name] = enabled
	r.mu.Unlock()

	r.persistEnabled(ctx, name, enabled)
	r.logger.WithFields(map[string]interface{}{
		"strategy": name,
		"enabled":  enabled,
	}).Info("Execution strategy state changed")
	return nil
}

// IsEnabled reports whether a backend is currently enabled
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[name]
}

// Snapshot returns the currently enabled backends in execution order,
// highest priority first. The slice is owned by the caller; later
// enablement changes do not affect it.
func (r *Registry) Snapshot() []Strategy {
	r.mu.RLock()
	out := make([]Strategy, 0, len(r.strategies))
	for name, s := range r.strategies {
		if r.enabled[name] {
			out = append(out, s)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}

// RestoreEnablement re-applies enablement state persisted by a previous run
// or a peer process. Backends without persisted state stay enabled.
func (r *Registry) RestoreEnablement(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.strategies {
		entry, ok := r.cache.Get(ctx, cache.StrategyKey(name))
		if !ok || entry.Metadata == nil {
			continue
		}
		if v, present := entry.Metadata[enabledMetadataKey]; present {
			r.enabled[name] = v == "true"
		}
	}
}

// persistEnabled writes the flag into the strategy's cache entry metadata,
// creating the entry if the metrics tracker has not written it yet
func (r *Registry) persistEnabled(ctx context.Context, name string, enabled bool) {
	value := "false"
	if enabled {
		value = "true"
	}

	key := cache.StrategyKey(name)
	err := r.cache.Update(ctx, key, cache.Patch{Metadata: map[string]string{enabledMetadataKey: value}})
	if err == nil {
		return
	}

	r.cache.Set(ctx, key, &domain.StrategyMetrics{Strategy: name}, 0,
		map[string]string{enabledMetadataKey: value})
}
