// Package monitor keeps the per-contact monitor registry: an in-memory map
// with write-through persistence to monitors.json.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/openclaw/wa-bridge/internal/domain"
)

// Entry pairs a normalised contact id with its monitor spec, the shape the
// control surface returns from GET /monitor.
type Entry struct {
	ContactID string `json:"contactId"`
	domain.MonitorSpec
}

// Registry is the monitor store. Mutations rewrite the whole file; readers
// hit the in-memory map.
type Registry struct {
	mu       sync.RWMutex
	path     string
	monitors map[string]domain.MonitorSpec
}

// Load reads the registry from path. A missing or corrupt file yields an
// empty registry without error.
func Load(path string) *Registry {
	r := &Registry{path: path, monitors: map[string]domain.MonitorSpec{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		return r
	}
	var monitors map[string]domain.MonitorSpec
	if err := json.Unmarshal(raw, &monitors); err != nil {
		return r
	}
	if monitors != nil {
		r.monitors = monitors
	}
	return r
}

// Get looks up the monitor for id. The id is normalised before the hit/miss
// decision; registry keys are always in normalised form.
func (r *Registry) Get(id string) (domain.MonitorSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.monitors[domain.NormalizeChatID(id, false)]
	return spec, ok
}

// List returns all monitors sorted by contact id for stable output.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.monitors))
	for id, spec := range r.monitors {
		entries = append(entries, Entry{ContactID: id, MonitorSpec: spec})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ContactID < entries[j].ContactID })
	return entries
}

// Add upserts the monitor for id, stamping CreatedAt, and persists the
// registry. An existing spec is overwritten. Returns the normalised id.
func (r *Registry) Add(id string, spec domain.MonitorSpec) (string, error) {
	nid := domain.NormalizeChatID(id, false)
	spec.CreatedAt = domain.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitors[nid] = spec
	if err := r.saveLocked(); err != nil {
		return nid, err
	}
	return nid, nil
}

// Remove deletes the monitor for id and persists. The second return is
// false when no such monitor exists.
func (r *Registry) Remove(id string) (string, bool, error) {
	nid := domain.NormalizeChatID(id, false)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.monitors[nid]; !ok {
		return nid, false, nil
	}
	delete(r.monitors, nid)
	if err := r.saveLocked(); err != nil {
		return nid, true, err
	}
	return nid, true, nil
}

func (r *Registry) saveLocked() error {
	raw, err := json.MarshalIndent(r.monitors, "", "  ")
	if err != nil {
		return fmt.Errorf("encode monitors: %w", err)
	}
	if err := os.WriteFile(r.path, raw, 0644); err != nil {
		return fmt.Errorf("write monitors file: %w", err)
	}
	return nil
}
