package store

import (
	"sort"
	"sync"
)

// MemoryMetadata is an in-memory Metadata implementation (ephemeral, for
// testing and as an injection double).
type MemoryMetadata struct {
	mu      sync.Mutex
	records map[string]map[int]Record // name -> version -> record
}

// NewMemoryMetadata returns an empty in-memory record store.
func NewMemoryMetadata() *MemoryMetadata {
	return &MemoryMetadata{records: make(map[string]map[int]Record)}
}

func (m *MemoryMetadata) Close() error { return nil }

func (m *MemoryMetadata) Insert(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions := m.records[rec.Name]
	if versions == nil {
		versions = make(map[int]Record)
		m.records[rec.Name] = versions
	}
	if _, exists := versions[rec.Version]; exists {
		return ErrVersionConflict
	}
	versions[rec.Version] = rec
	return nil
}

func (m *MemoryMetadata) Get(name string, version int) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[name][version]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryMetadata) MaxVersion(name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	max := 0
	for v := range m.records[name] {
		if v > max {
			max = v
		}
	}
	return max, nil
}

func (m *MemoryMetadata) List(name string, latestOnly bool) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []Record
	for n, versions := range m.records {
		if name != "" && n != name {
			continue
		}
		if latestOnly {
			max := 0
			for v := range versions {
				if v > max {
					max = v
				}
			}
			if max > 0 {
				records = append(records, versions[max])
			}
			continue
		}
		for _, rec := range versions {
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Name != records[j].Name {
			return records[i].Name < records[j].Name
		}
		return records[i].Version > records[j].Version
	})
	return records, nil
}

func (m *MemoryMetadata) Delete(name string, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions := m.records[name]
	if _, ok := versions[version]; !ok {
		return false, nil
	}
	delete(versions, version)
	if len(versions) == 0 {
		delete(m.records, name)
	}
	return true, nil
}
