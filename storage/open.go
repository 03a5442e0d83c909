package storage

import "fmt"

const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Open creates the backend named by backend. An empty name selects badger.
func Open(backend, dataDir string) (Storage, error) {
	switch backend {
	case "", BackendBadger:
		return NewBadgerStorage(dataDir)
	case BackendMemory:
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
