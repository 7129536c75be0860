// Package registry maintains the catalog of utilities that generated code can
// call, and composes programs from them.
package registry

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/era-ai/era/pkg/types"
)

// SessionSource supplies persisted sessions to mine for generated agents.
type SessionSource interface {
	LoadAll() ([]*types.Session, error)
}

// Registry owns the current utility snapshot. Readers always see a complete
// snapshot; Load(true) builds a new one and swaps it in.
type Registry struct {
	loaders  []BuiltinLoader
	sessions SessionSource
	logger   *slog.Logger

	loadMu  sync.Mutex
	current atomic.Pointer[Snapshot]
}

// Snapshot is an immutable view of the registry at one load.
type Snapshot struct {
	builtins     map[string]*types.UtilityEntry
	builtinOrder []string
	agents       map[string]*types.UtilityEntry
	agentOrder   []string
}

// New creates a Registry. sessions may be nil when no history is available.
func New(loaders []BuiltinLoader, sessions SessionSource, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		loaders:  loaders,
		sessions: sessions,
		logger:   logger,
	}
}

// Load returns the current snapshot, building it on first use. With force
// set the snapshot is always rebuilt and then swapped in.
func (r *Registry) Load(force bool) *Snapshot {
	if !force {
		if s := r.current.Load(); s != nil {
			return s
		}
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	if !force {
		if s := r.current.Load(); s != nil {
			return s
		}
	}

	snap := r.build()
	r.current.Store(snap)
	r.logger.Info("utility registry loaded",
		"builtins", len(snap.builtinOrder),
		"agents", len(snap.agentOrder))
	return snap
}

func (r *Registry) build() *Snapshot {
	snap := &Snapshot{
		builtins: make(map[string]*types.UtilityEntry),
		agents:   make(map[string]*types.UtilityEntry),
	}

	for _, loader := range r.loaders {
		entry, err := loader.Load()
		if err != nil {
			r.logger.Warn("skipping builtin utility", "utility", loader.Name, "error", err)
			continue
		}
		if _, dup := snap.builtins[entry.Name]; dup {
			r.logger.Warn("skipping duplicate builtin utility", "utility", entry.Name)
			continue
		}
		entry.Kind = types.UtilityBuiltin
		snap.builtins[entry.Name] = entry
		snap.builtinOrder = append(snap.builtinOrder, entry.Name)
	}

	if r.sessions == nil {
		return snap
	}

	sessions, err := r.sessions.LoadAll()
	if err != nil {
		r.logger.Warn("failed to scan history for generated agents", "error", err)
		return snap
	}

	// The most recently completed success wins; ties go to the later session.
	completed := make(map[string]time.Time)
	for _, s := range sessions {
		if s == nil || s.Outcome != types.OutcomeSuccess || strings.TrimSpace(s.FinalCode) == "" {
			continue
		}
		entry, err := FromSession(s)
		if err != nil {
			r.logger.Warn("skipping stored agent", "session", s.ID, "error", err)
			continue
		}
		at := s.CreatedAt
		if s.CompletedAt != nil {
			at = *s.CompletedAt
		}
		if prev, ok := completed[entry.Name]; ok && at.Before(prev) {
			continue
		}
		completed[entry.Name] = at
		snap.agents[entry.Name] = entry
	}
	for name := range snap.agents {
		snap.agentOrder = append(snap.agentOrder, name)
	}
	sort.Strings(snap.agentOrder)

	return snap
}

// Get looks a utility up in the current snapshot.
func (r *Registry) Get(name string) (*types.UtilityEntry, bool) {
	return r.Load(false).Get(name)
}

// DocumentationBundle renders documentation from the current snapshot.
func (r *Registry) DocumentationBundle(includeAgents bool) string {
	return r.Load(false).DocumentationBundle(includeAgents)
}

// Inject composes code with the named utilities from the current snapshot.
func (r *Registry) Inject(code string, names []string) string {
	return r.Load(false).Inject(code, names)
}

// Select picks the utilities code appears to call, from the current snapshot.
func (r *Registry) Select(code string) []string {
	return r.Load(false).Select(code)
}

// List returns entries from the current snapshot.
func (r *Registry) List(includeAgents bool) []*types.UtilityEntry {
	return r.Load(false).List(includeAgents)
}

// Get returns the entry registered under name. Builtins win over agents.
func (s *Snapshot) Get(name string) (*types.UtilityEntry, bool) {
	if e, ok := s.builtins[name]; ok {
		return e, true
	}
	if e, ok := s.agents[name]; ok {
		return e, true
	}
	return nil, false
}

// Agent returns a generated agent entry by name, ignoring builtins.
func (s *Snapshot) Agent(name string) (*types.UtilityEntry, bool) {
	e, ok := s.agents[name]
	return e, ok
}

// List returns builtins in load order followed, optionally, by agents.
func (s *Snapshot) List(includeAgents bool) []*types.UtilityEntry {
	entries := make([]*types.UtilityEntry, 0, len(s.builtinOrder)+len(s.agentOrder))
	for _, name := range s.builtinOrder {
		entries = append(entries, s.builtins[name])
	}
	if includeAgents {
		for _, name := range s.agentOrder {
			entries = append(entries, s.agents[name])
		}
	}
	return entries
}

// DocumentationBundle concatenates the documentation of every builtin and,
// when requested, every generated agent into one prompt-ready block.
func (s *Snapshot) DocumentationBundle(includeAgents bool) string {
	var b strings.Builder
	for _, e := range s.List(includeAgents) {
		doc := strings.TrimSpace(e.Documentation)
		if doc == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(doc)
	}
	return b.String()
}
