package module

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/feedeater/feedeater/pkg/ai"
	"github.com/feedeater/feedeater/pkg/bus"
	"github.com/feedeater/feedeater/pkg/collect"
	"github.com/feedeater/feedeater/pkg/contexts"
	"github.com/feedeater/feedeater/pkg/scheduler"
	"github.com/feedeater/feedeater/pkg/settings"
	"github.com/feedeater/feedeater/pkg/store"
)

// Override adjusts a module at boot. Overrides come from the fleet
// config file and layer between manifest defaults and database rows.
type Override struct {
	Enabled   *bool
	Schedules map[string]string
	Settings  map[string]string
}

// HostDeps is the shared infrastructure the host hands to modules.
type HostDeps struct {
	Store     *store.Store
	Bus       *bus.Client
	Settings  *settings.Registry
	AI        *ai.Client
	Contexts  *contexts.Engine
	Scheduler *scheduler.Scheduler
	Overrides map[string]Override
}

// Host boots registered modules: schema setup, settings binding, and
// job registration with the scheduler.
type Host struct {
	registry *Registry
	deps     HostDeps

	active []Manifest
}

// NewHost creates a host over a registry and shared infrastructure.
func NewHost(registry *Registry, deps HostDeps) *Host {
	return &Host{registry: registry, deps: deps}
}

// Boot prepares every enabled module and registers its jobs. It must
// run before the scheduler starts.
func (h *Host) Boot(ctx context.Context) error {
	var defs []scheduler.Definition

	for _, m := range h.registry.All() {
		manifest := m.Manifest()
		override := h.deps.Overrides[manifest.Name]
		if override.Enabled != nil && !*override.Enabled {
			slog.Info("Module disabled by configuration", "module", manifest.Name)
			continue
		}

		deps := h.depsFor(manifest.Name)
		if err := m.EnsureSchema(ctx, deps); err != nil {
			return fmt.Errorf("failed to ensure schema for module %s: %w", manifest.Name, err)
		}

		defaults := manifest.SettingDefaults()
		for key, value := range override.Settings {
			defaults[key] = value
		}

		jobs := m.Jobs()
		declared := make(map[string]bool, len(manifest.Jobs))
		for _, job := range manifest.Jobs {
			declared[job.Name] = true
			fn, ok := jobs[job.Name]
			if !ok {
				return fmt.Errorf("module %s declares job %q without an implementation", manifest.Name, job.Name)
			}

			schedule := job.Schedule
			if s, ok := override.Schedules[job.Name]; ok {
				schedule = s
			}

			defs = append(defs, scheduler.Definition{
				Module:       manifest.Name,
				Name:         job.Name,
				Queue:        job.Queue,
				Schedule:     schedule,
				TriggerClass: job.TriggerClass,
				Budget:       job.Budget,
				Description:  job.Description,
				Handler:      h.handler(manifest.Name, job.Name, defaults, deps, fn),
			})
		}
		for name := range jobs {
			if !declared[name] {
				return fmt.Errorf("module %s implements undeclared job %q", manifest.Name, name)
			}
		}

		h.active = append(h.active, manifest)
		slog.Info("Module ready", "module", manifest.Name, "jobs", len(manifest.Jobs))
	}

	return h.deps.Scheduler.Register(defs...)
}

// handler adapts a module job to the scheduler. Settings resolve on
// every invocation, so changes apply without a restart.
func (h *Host) handler(moduleName, jobName string, defaults map[string]string, deps *Deps, fn JobFunc) scheduler.Handler {
	return func(ctx context.Context) (map[string]any, error) {
		values, err := h.deps.Settings.Resolve(ctx, moduleName, defaults)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve settings: %w", err)
		}

		session := &collect.Session{
			Module:   moduleName,
			Job:      jobName,
			Store:    h.deps.Store,
			Bus:      deps.Bus,
			Log:      deps.Log.WithSource(jobName),
			Settings: values,
			AI:       h.deps.AI,
			Contexts: h.deps.Contexts,
		}
		err = fn(ctx, session)
		return session.Metrics(), err
	}
}

func (h *Host) depsFor(name string) *Deps {
	return &Deps{
		Store:    h.deps.Store,
		Bus:      h.deps.Bus.Publisher(name),
		Log:      h.deps.Bus.LogPublisher(name),
		Settings: h.deps.Settings,
		AI:       h.deps.AI,
		Contexts: h.deps.Contexts,
	}
}

// Manifests returns the manifests of every booted module.
func (h *Host) Manifests() []Manifest {
	out := make([]Manifest, len(h.active))
	copy(out, h.active)
	return out
}

// ManifestFor returns the manifest of a booted module.
func (h *Host) ManifestFor(name string) (Manifest, error) {
	for _, m := range h.active {
		if m.Name == name {
			return m, nil
		}
	}
	return Manifest{}, fmt.Errorf("%w: %s", ErrUnknownModule, name)
}
