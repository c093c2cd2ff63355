package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	registry   = make(map[string]Dataset)
	registryMu sync.RWMutex
)

// Register adds a dataset to the registry.
// Panics if a dataset with the same name is already registered or if its
// kinds are not in dependency order.
func Register(ds Dataset) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[ds.Name]; exists {
		panic(fmt.Sprintf("dataset already registered: %s", ds.Name))
	}
	if err := ValidateDataset(ds); err != nil {
		panic(fmt.Sprintf("invalid dataset %s: %v", ds.Name, err))
	}

	registry[ds.Name] = ds
}

// Get returns a dataset by name.
// Returns false if not found.
func Get(name string) (Dataset, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ds, ok := registry[name]
	return ds, ok
}

// All returns all registered datasets sorted by name.
func All() []Dataset {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Dataset, 0, len(registry))
	for _, ds := range registry {
		result = append(result, ds)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

// Names returns all registered dataset names, sorted.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, ds := range all {
		names[i] = ds.Name
	}
	return names
}

// Clear removes all registered datasets.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Dataset)
}

// ValidateDataset checks kind declarations and relationship endpoints.
func ValidateDataset(ds Dataset) error {
	if err := ValidateOrder(ds.Kinds); err != nil {
		return err
	}
	for _, k := range ds.Kinds {
		if len(k.Key) == 0 {
			return &ConfigError{Op: "kind " + k.Name, Err: fmt.Errorf("no natural key declared")}
		}
		for _, key := range k.Key {
			if _, ok := fieldByName(k.Fields, key); !ok {
				return &ConfigError{Op: "kind " + k.Name, Err: fmt.Errorf("key field %q is not declared", key)}
			}
		}
	}
	for _, r := range ds.Relationships {
		if _, ok := ds.Kind(r.Source); !ok {
			return &ConfigError{Op: "relationship " + r.Kind, Err: fmt.Errorf("unknown source kind %q", r.Source)}
		}
		if _, ok := ds.Kind(r.Target); !ok {
			return &ConfigError{Op: "relationship " + r.Kind, Err: fmt.Errorf("unknown target kind %q", r.Target)}
		}
		if r.Rule == nil {
			return &ConfigError{Op: "relationship " + r.Kind, Err: fmt.Errorf("no rule")}
		}
	}
	return nil
}

// ValidateOrder checks that every dependency of a kind appears earlier in
// the list and that names are unique.
func ValidateOrder(kinds []KindSpec) error {
	seen := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		if seen[k.Name] {
			return &ConfigError{Op: "dependency order", Err: fmt.Errorf("kind %q listed twice", k.Name)}
		}
		for _, dep := range k.DependsOn {
			if !seen[dep] {
				return &ConfigError{Op: "dependency order", Err: fmt.Errorf("kind %q depends on %q which is not loaded before it", k.Name, dep)}
			}
		}
		seen[k.Name] = true
	}
	return nil
}

// SelectKinds narrows a dataset's kinds to the named subset while keeping
// dependency order. Unknown names are an error.
func SelectKinds(ds Dataset, names []string) ([]KindSpec, error) {
	if len(names) == 0 {
		return ds.Kinds, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if _, ok := ds.Kind(n); !ok {
			return nil, &ConfigError{Op: "select kinds", Err: fmt.Errorf("dataset %s has no kind %q", ds.Name, n)}
		}
		want[n] = true
	}

	var out []KindSpec
	for _, k := range ds.Kinds {
		if want[k.Name] {
			out = append(out, k)
		}
	}
	return out, nil
}

func fieldByName(specs []FieldSpec, name string) (FieldSpec, bool) {
	for _, f := range specs {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return FieldSpec{}, false
}
