package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Page selects a slice of a resource collection.
type Page struct {
	Number int
	Size   int
}

// ResultSet is one page of records plus the collection total.
type ResultSet struct {
	Items []map[string]any
	Total int
}

// DataFetcher retrieves platform records for a government data resource.
type DataFetcher interface {
	Fetch(ctx context.Context, resource string, page Page) (ResultSet, error)
	Count(ctx context.Context, resource string) (int, error)
}

// StaticFetcher serves records from in-memory collections. Collections
// are keyed by resource name.
type StaticFetcher struct {
	mu          sync.RWMutex
	collections map[string][]map[string]any
}

// NewStaticFetcher creates an empty fetcher.
func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{collections: make(map[string][]map[string]any)}
}

// Load replaces the records for a resource.
func (f *StaticFetcher) Load(resource string, records []map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[resource] = records
}

// Fetch returns the requested page of a resource, newest-first order is
// the caller's responsibility when loading.
func (f *StaticFetcher) Fetch(_ context.Context, resource string, page Page) (ResultSet, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	records, ok := f.collections[resource]
	if !ok {
		return ResultSet{}, fmt.Errorf("unknown resource %q", resource)
	}

	if page.Size <= 0 {
		page.Size = 50
	}
	if page.Number <= 0 {
		page.Number = 1
	}

	start := (page.Number - 1) * page.Size
	if start >= len(records) {
		return ResultSet{Items: []map[string]any{}, Total: len(records)}, nil
	}
	end := start + page.Size
	if end > len(records) {
		end = len(records)
	}

	items := make([]map[string]any, end-start)
	copy(items, records[start:end])
	return ResultSet{Items: items, Total: len(records)}, nil
}

// Count returns the collection total for a resource.
func (f *StaticFetcher) Count(_ context.Context, resource string) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	records, ok := f.collections[resource]
	if !ok {
		return 0, fmt.Errorf("unknown resource %q", resource)
	}
	return len(records), nil
}

// Resources lists loaded resource names, sorted.
func (f *StaticFetcher) Resources() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.collections))
	for name := range f.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
