// Package host is a minimal harness: a collection registry, a per-index
// engine registry, and the notification bus every index in the process
// shares. It carries none of the indexing engine's own invariants —
// it exists purely to give cmd/indexd and end-to-end tests somewhere
// to run.
package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/jpl-au/indexcore/bus"
	"github.com/jpl-au/indexcore/config"
	"github.com/jpl-au/indexcore/docstore"
	"github.com/jpl-au/indexcore/index"
	"github.com/jpl-au/indexcore/indexlog"
)

// Host owns one document store, one notification bus, and the set of
// indexes mapping over that store.
type Host struct {
	cfg   config.Config
	store *docstore.Store
	pool  *docstore.Pool
	bus   *bus.Bus

	mu      sync.RWMutex
	indexes map[string]*index.Index
}

// New returns a Host backed by an in-memory document store, configured
// per cfg. A real deployment would bind the document store to its
// actual database instead of docstore.Store.
func New(cfg config.Config) *Host {
	store := docstore.NewStore()
	return &Host{
		cfg:     cfg,
		store:   store,
		pool:    docstore.NewPool(store),
		bus:     bus.New(),
		indexes: make(map[string]*index.Index),
	}
}

// Store returns the host's document store, so callers (the CLI, tests)
// can Put/Delete documents and raise document-change notifications.
func (h *Host) Store() *docstore.Store {
	return h.store
}

// NotifyDocumentChange publishes a document-change notification for
// collection, waking every index that maps it. The in-memory
// docstore.Store does not raise this on its own — callers do it after
// Put/Delete, the way a real document database's change feed would.
func (h *Host) NotifyDocumentChange(collection string) {
	h.bus.PublishDocumentChange(bus.DocumentChangeNotification{Collection: collection})
}

// CreateIndex registers and initializes a new index from definition,
// binding it to the host's shared document pool and bus.
func (h *Host) CreateIndex(definition index.IndexDefinition) (*index.Index, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.indexes[definition.Name]; exists {
		return nil, fmt.Errorf("host: index %q already registered", definition.Name)
	}

	ix := index.NewIndex(definition)
	if err := ix.Initialize(index.Deps{
		StorageDir: h.cfg.StorageDir,
		MemOnly:    h.cfg.StorageDir == "",
		DocPool:    h.pool,
		Bus:        h.bus,
		Config:     h.cfg,
	}); err != nil {
		return nil, err
	}

	h.indexes[definition.Name] = ix
	log.Info().Str("index", definition.Name).Msg("index registered")
	return ix, nil
}

// StartAll starts every registered index's indexing loop.
func (h *Host) StartAll() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for name, ix := range h.indexes {
		if err := ix.Start(); err != nil {
			return fmt.Errorf("host: start %q: %w", name, err)
		}
	}
	return nil
}

// Index returns the named index, or nil if unregistered.
func (h *Host) Index(name string) *index.Index {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.indexes[name]
}

// Indexes returns every registered index name, for stats/listing
// commands.
func (h *Host) Indexes() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.indexes))
	for name := range h.indexes {
		names = append(names, name)
	}
	return names
}

// MinLastProcessedTombstoneEtag computes, per collection, the minimum
// last_processed_tombstone_etag across every registered index — what a
// real tombstone-cleaner would use to decide when a tombstone may be
// purged from the document store.
func (h *Host) MinLastProcessedTombstoneEtag(ctx context.Context) (map[string]index.Etag, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	mins := make(map[string]index.Etag)
	seen := make(map[string]bool)

	for name, ix := range h.indexes {
		per, err := ix.GetLastProcessedDocumentTombstonesPerCollection()
		if err != nil {
			return nil, fmt.Errorf("host: collecting progress from %q: %w", name, err)
		}
		for c, etag := range per {
			key := c.Normalize()
			if !seen[key] || etag < mins[key] {
				mins[key] = etag
			}
			seen[key] = true
		}
	}
	return mins, nil
}

// Shutdown disposes every registered index, collecting (not
// short-circuiting on) errors from each.
func (h *Host) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for name, ix := range h.indexes {
		if err := ix.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("dispose %q: %w", name, err))
		}
	}
	h.indexes = make(map[string]*index.Index)
	log.Info().Msg("host shutdown")
	if len(errs) > 0 {
		return fmt.Errorf("host: shutdown: %v", errs)
	}
	return nil
}

var log = indexlog.Base.With().Str("component", "host").Logger()
