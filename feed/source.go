package feed

import (
	"strings"
	"sync"
)

// Entry names a module and defers loading it until discovery.
type Entry struct {
	Name string
	Load func() (Module, error)
}

// Source enumerates the module entries available for discovery, in order.
type Source interface {
	Entries() ([]Entry, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() ([]Entry, error)

// Entries calls f.
func (f SourceFunc) Entries() ([]Entry, error) {
	return f()
}

// Static returns an entry that always yields m.
func Static(m Module) Entry {
	return Entry{
		Name: m.Name,
		Load: func() (Module, error) { return m, nil },
	}
}

// Modules returns a source over already built modules.
func Modules(mods ...Module) Source {
	entries := make([]Entry, len(mods))
	for i, m := range mods {
		entries[i] = Static(m)
	}
	return Entries(entries...)
}

// Entries returns a source over a fixed list of entries.
func Entries(entries ...Entry) Source {
	return SourceFunc(func() ([]Entry, error) {
		out := make([]Entry, len(entries))
		copy(out, entries)
		return out, nil
	})
}

// Catalog is an ordered, goroutine-safe collection of module entries.
// It is typically filled by the packages owning the modules at startup.
type Catalog struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Add appends a built module and returns the catalog for chaining.
func (c *Catalog) Add(m Module) *Catalog {
	return c.AddEntry(Static(m))
}

// AddLoader appends a lazily loaded module.
func (c *Catalog) AddLoader(name string, load func() (Module, error)) *Catalog {
	return c.AddEntry(Entry{Name: name, Load: load})
}

// AddEntry appends an entry.
func (c *Catalog) AddEntry(e Entry) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, e)
	return c
}

// Entries implements Source.
func (c *Catalog) Entries() ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out, nil
}

// Filter keeps the entries of src whose name starts with one of include
// (all, when include is empty) and with none of exclude.
func Filter(src Source, include, exclude []string) Source {
	return SourceFunc(func() ([]Entry, error) {
		entries, err := src.Entries()
		if err != nil {
			return nil, err
		}
		kept := entries[:0:0]
		for _, e := range entries {
			if Matches(e.Name, include, exclude) {
				kept = append(kept, e)
			}
		}
		return kept, nil
	})
}

// Matches reports whether name passes the include and exclude prefixes.
func Matches(name string, include, exclude []string) bool {
	for _, p := range exclude {
		if p != "" && strings.HasPrefix(name, p) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, p := range include {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
