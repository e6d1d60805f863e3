package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// SnapshotStore persists transcript snapshots for a tab while the session is
// authenticated. Implementations must not retain the entries slice.
type SnapshotStore interface {
	Save(ctx context.Context, key string, entries []Entry) error
	// Load returns nil entries and no error when nothing is stored.
	Load(ctx context.Context, key string) ([]Entry, error)
	Delete(ctx context.Context, key string) error
}

// MarshalSnapshot encodes entries the way every snapshot store persists
// them. Binary media is dropped by the Media json tags.
func MarshalSnapshot(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcript snapshot: %w", err)
	}
	return data, nil
}

func UnmarshalSnapshot(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript snapshot: %w", err)
	}
	return entries, nil
}

// MemorySnapshotStore keeps serialized snapshots in process memory. It
// stands in for a per-tab session store.
type MemorySnapshotStore struct {
	mu        sync.Mutex
	snapshots map[string][]byte
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: map[string][]byte{}}
}

func (s *MemorySnapshotStore) Save(_ context.Context, key string, entries []Entry) error {
	data, err := MarshalSnapshot(entries)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[key] = data
	return nil
}

func (s *MemorySnapshotStore) Load(_ context.Context, key string) ([]Entry, error) {
	s.mu.Lock()
	data, ok := s.snapshots[key]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return UnmarshalSnapshot(data)
}

func (s *MemorySnapshotStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, key)
	return nil
}
