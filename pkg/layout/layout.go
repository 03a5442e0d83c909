// Package layout persists graph node positions per host.
package layout

import (
	"context"
	"encoding/json"
	"fmt"

	"clusterwatch/pkg/graph"
	"clusterwatch/storage"
)

const keyPrefix = "layout/"

// Store keeps one position map per host in a storage backend.
type Store struct {
	st storage.Storage
}

func NewStore(st storage.Storage) *Store { return &Store{st: st} }

// Save replaces the positions stored for host.
func (s *Store) Save(ctx context.Context, host string, positions map[string]graph.Position) error {
	raw, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("encoding layout of %s: %w", host, err)
	}
	if err := s.st.Set(ctx, keyPrefix+host, raw, 0); err != nil {
		return fmt.Errorf("saving layout of %s: %w", host, err)
	}
	return nil
}

// Load returns the positions stored for host, empty when none were saved.
func (s *Store) Load(ctx context.Context, host string) (map[string]graph.Position, error) {
	raw, ok, err := s.st.Get(ctx, keyPrefix+host)
	if err != nil {
		return nil, fmt.Errorf("loading layout of %s: %w", host, err)
	}
	positions := map[string]graph.Position{}
	if !ok {
		return positions, nil
	}
	if err := json.Unmarshal(raw, &positions); err != nil {
		return nil, fmt.Errorf("decoding layout of %s: %w", host, err)
	}
	return positions, nil
}
