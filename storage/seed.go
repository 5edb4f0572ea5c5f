package storage

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"
)

// LoadSeed reads fixtures from a JSON file shaped as
// {"task": [record...], "category": [record...]}.
func LoadSeed(path string) (map[string][]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed map[string][]Record
	if err := sonic.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", path, err)
	}
	return seed, nil
}

// SeedFromFile loads fixtures from path into the store.
func (m *MemoryStore) SeedFromFile(path string) (int, error) {
	seed, err := LoadSeed(path)
	if err != nil {
		return 0, err
	}
	n := 0
	for collection, records := range seed {
		m.Seed(collection, records...)
		n += len(records)
	}
	return n, nil
}
