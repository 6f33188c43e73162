// Package settings implements the module-scoped key/value registry with
// a short-TTL read-through cache. Secrets are stored alongside plain
// values with a flag; external read paths redact them.
package settings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/feedeater/feedeater/pkg/store"
)

// CacheTTL bounds staleness of cached reads. Writes through this
// registry invalidate immediately, so the TTL only covers out-of-band
// database changes.
const CacheTTL = 15 * time.Second

// System-owned settings.
const (
	SystemModule    = "system"
	KeyEmbedDim     = "ollama_embed_dim"
	DefaultEmbedDim = 768
)

// Setting is one row of the registry. Value is nil when the row exists
// with an explicit null.
type Setting struct {
	Module   string  `json:"module"`
	Key      string  `json:"key"`
	Value    *string `json:"value"`
	IsSecret bool    `json:"is_secret"`
}

// Registry reads and writes module-scoped settings.
type Registry struct {
	store *store.Store
	cache *expirable.LRU[string, []Setting]

	mu   sync.Mutex
	gens map[string]uint64
}

// NewRegistry creates a registry backed by the shared store.
func NewRegistry(st *store.Store) *Registry {
	return &Registry{
		store: st,
		cache: expirable.NewLRU[string, []Setting](256, nil, CacheTTL),
		gens:  make(map[string]uint64),
	}
}

// GetAll returns all settings rows for a module, cached per module.
func (r *Registry) GetAll(ctx context.Context, module string) ([]Setting, error) {
	if cached, ok := r.cache.Get(module); ok {
		return cached, nil
	}

	rows, err := r.store.Query(ctx,
		`SELECT module, key, value, is_secret FROM settings WHERE module = $1 ORDER BY key`, module)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for %s: %w", module, err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Module, &s.Key, &s.Value, &s.IsSecret); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read settings for %s: %w", module, err)
	}

	r.cache.Add(module, out)
	return out, nil
}

// Get returns one setting. ErrNotFound when no row exists.
func (r *Registry) Get(ctx context.Context, module, key string) (Setting, error) {
	all, err := r.GetAll(ctx, module)
	if err != nil {
		return Setting{}, err
	}
	for _, s := range all {
		if s.Key == key {
			return s, nil
		}
	}
	return Setting{}, ErrNotFound
}

// Put upserts one setting and invalidates the module's cached view.
func (r *Registry) Put(ctx context.Context, module, key string, value *string, isSecret bool) error {
	_, err := r.store.Exec(ctx,
		`INSERT INTO settings (module, key, value, is_secret, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (module, key)
		 DO UPDATE SET value = EXCLUDED.value, is_secret = EXCLUDED.is_secret, updated_at = now()`,
		module, key, value, isSecret)
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s/%s: %w", module, key, err)
	}
	r.cache.Remove(module)
	r.mu.Lock()
	r.gens[module]++
	r.mu.Unlock()
	return nil
}

// Generation counts writes to a module's settings in this process. The
// scheduler compares generations to notice an operator changed
// something, so a schedule paused by invalid settings can try again.
func (r *Registry) Generation(module string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[module]
}

// Resolve merges manifest defaults under stored rows and returns the
// flat view a module's settings parser consumes. Secrets are included;
// this is the internal read path.
func (r *Registry) Resolve(ctx context.Context, module string, defaults map[string]string) (Values, error) {
	all, err := r.GetAll(ctx, module)
	if err != nil {
		return nil, err
	}
	out := make(Values, len(defaults)+len(all))
	for k, v := range defaults {
		out[k] = v
	}
	for _, s := range all {
		if s.Value != nil {
			out[s.Key] = *s.Value
		}
	}
	return out, nil
}

// EmbedDim returns the configured embedding dimension for vector
// columns across the fleet.
func (r *Registry) EmbedDim(ctx context.Context) int {
	vals, err := r.Resolve(ctx, SystemModule, nil)
	if err != nil {
		return DefaultEmbedDim
	}
	dim := vals.Int(KeyEmbedDim, DefaultEmbedDim)
	if dim <= 0 {
		return DefaultEmbedDim
	}
	return dim
}

// Redact replaces secret values for external callers.
func Redact(all []Setting) []Setting {
	out := make([]Setting, len(all))
	copy(out, all)
	for i := range out {
		if out[i].IsSecret {
			out[i].Value = nil
		}
	}
	return out
}
