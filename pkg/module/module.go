package module

import (
	"context"
	"errors"

	"github.com/feedeater/feedeater/pkg/ai"
	"github.com/feedeater/feedeater/pkg/bus"
	"github.com/feedeater/feedeater/pkg/collect"
	"github.com/feedeater/feedeater/pkg/contexts"
	"github.com/feedeater/feedeater/pkg/settings"
	"github.com/feedeater/feedeater/pkg/store"
)

// ErrUnknownModule is returned for lookups of unregistered modules.
var ErrUnknownModule = errors.New("unknown module")

// Deps carries the shared infrastructure a module builds on. Bus and
// Log are already bound to the module's name.
type Deps struct {
	Store    *store.Store
	Bus      *bus.Publisher
	Log      *bus.LogPublisher
	Settings *settings.Registry
	AI       *ai.Client
	Contexts *contexts.Engine
}

// JobFunc implements one job of a module. The session carries resolved
// settings and the module-bound publishers; ctx carries the job budget.
type JobFunc func(ctx context.Context, s *collect.Session) error

// Module is a pluggable collector.
type Module interface {
	// Manifest declares identity, jobs, queues, and settings. It must
	// be stable across calls.
	Manifest() Manifest

	// EnsureSchema creates or evolves the module's mod_<name> schema.
	// It runs at boot, before any job, and must be idempotent.
	EnsureSchema(ctx context.Context, deps *Deps) error

	// Jobs binds the manifest's job names to implementations.
	Jobs() map[string]JobFunc
}
