// Package transcript implements the ordered chat log rendered by the
// presentation layer.
//
// Entries are kept in an arena: they are appended in order and addressed
// afterwards by their correlation id, never by position. Correlation ids
// are handed out monotonically and are never reused, so an update coming
// from a stale step after a reset finds nothing to mutate.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jinzhu/copier"
)

var ErrChoicePending = errors.New("an unresolved entry already requests this choice")

type Option func(*Store)

// WithSnapshotStore persists the transcript under key while authenticated.
func WithSnapshotStore(snapshots SnapshotStore, key string) Option {
	return func(s *Store) {
		s.snapshots = snapshots
		s.snapshotKey = key
	}
}

// WithChangeHandler registers a callback receiving a copy of all entries
// after every mutation.
func WithChangeHandler(onChange func([]Entry)) Option {
	return func(s *Store) { s.onChange = onChange }
}

type Store struct {
	mu sync.RWMutex

	entries       []Entry
	byCorrelation map[CorrelationID]int

	lastHandle      Handle
	lastCorrelation CorrelationID

	authenticated bool
	snapshots     SnapshotStore
	snapshotKey   string
	persistMu     sync.Mutex

	onChange func([]Entry)
}

func NewStore(opts ...Option) *Store {
	s := &Store{byCorrelation: map[CorrelationID]int{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewCorrelationID reserves a correlation id for a placeholder entry.
func (s *Store) NewCorrelationID() CorrelationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCorrelation++
	return s.lastCorrelation
}

// Append adds entry at the end of the transcript and returns its handle.
// An entry requesting a choice is rejected while another unresolved entry
// requests the same choice.
func (s *Store) Append(ctx context.Context, entry Entry) (Handle, error) {
	s.mu.Lock()
	if entry.Choice != ChoiceNone {
		if _, pending := s.pendingChoiceLocked(entry.Choice); pending {
			s.mu.Unlock()
			return 0, fmt.Errorf("append %s choice: %w", entry.Choice, ErrChoicePending)
		}
	}
	if entry.CorrelationID != 0 {
		if _, exists := s.byCorrelation[entry.CorrelationID]; exists {
			s.mu.Unlock()
			return 0, fmt.Errorf("correlation id %d is already in use", entry.CorrelationID)
		}
		if entry.CorrelationID > s.lastCorrelation {
			s.lastCorrelation = entry.CorrelationID
		}
	}

	s.lastHandle++
	entry.Handle = s.lastHandle
	entry.Media = cloneMedia(entry.Media)
	s.entries = append(s.entries, entry)
	if entry.CorrelationID != 0 {
		s.byCorrelation[entry.CorrelationID] = len(s.entries) - 1
	}
	handle := entry.Handle
	s.mu.Unlock()

	s.changed(ctx)
	return handle, nil
}

// Update applies patch to the entry owning id. Unknown ids are ignored, as
// is a patch that would open a second unresolved choice of one category.
// It reports whether the entry was mutated.
func (s *Store) Update(ctx context.Context, id CorrelationID, patch Patch) bool {
	s.mu.Lock()
	index, ok := s.byCorrelation[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if patch.Choice != nil && *patch.Choice != ChoiceNone {
		if pending, exists := s.pendingChoiceLocked(*patch.Choice); exists && pending.CorrelationID != id {
			s.mu.Unlock()
			logger.WarnContext(ctx, "refusing to open a second pending choice",
				"choice", string(*patch.Choice), "correlation_id", int64(id))
			return false
		}
	}
	patch.apply(&s.entries[index])
	s.mu.Unlock()

	s.changed(ctx)
	return true
}

// ResolveChoice clears the marker of the unresolved entry requesting
// choice. It reports whether such an entry existed.
func (s *Store) ResolveChoice(ctx context.Context, choice Choice) bool {
	s.mu.Lock()
	resolved := false
	for i := range s.entries {
		if s.entries[i].Choice == choice {
			s.entries[i].Choice = ChoiceNone
			resolved = true
		}
	}
	s.mu.Unlock()

	if resolved {
		s.changed(ctx)
	}
	return resolved
}

// CancelLoading settles every loading entry with body. It reports how many
// entries changed.
func (s *Store) CancelLoading(ctx context.Context, body string) int {
	s.mu.Lock()
	cancelled := 0
	for i := range s.entries {
		if s.entries[i].Loading {
			s.entries[i].Body = body
			s.entries[i].Loading = false
			cancelled++
		}
	}
	s.mu.Unlock()

	if cancelled > 0 {
		s.changed(ctx)
	}
	return cancelled
}

// PendingChoice returns the unresolved entry requesting choice.
func (s *Store) PendingChoice(choice Choice) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.pendingChoiceLocked(choice)
	if !ok {
		return Entry{}, false
	}
	return copyEntry(entry), true
}

func (s *Store) pendingChoiceLocked(choice Choice) (Entry, bool) {
	for _, entry := range s.entries {
		if entry.Choice == choice {
			return entry, true
		}
	}
	return Entry{}, false
}

// Get returns the entry owning id.
func (s *Store) Get(id CorrelationID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index, ok := s.byCorrelation[id]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(s.entries[index]), true
}

// Last returns the most recent entry.
func (s *Store) Last() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return copyEntry(s.entries[len(s.entries)-1]), true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a deep copy of the transcript, oldest first.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() []Entry {
	entries := make([]Entry, 0, len(s.entries))
	if err := copier.CopyWithOption(&entries, &s.entries, copier.Option{DeepCopy: true}); err != nil {
		entries = entries[:0]
		for _, entry := range s.entries {
			entries = append(entries, copyEntry(entry))
		}
	}
	return entries
}

// Reset clears every entry and, while authenticated, the persisted
// snapshot. Correlation ids keep increasing across resets.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.entries = nil
	s.byCorrelation = map[CorrelationID]int{}
	authenticated := s.authenticated
	s.mu.Unlock()

	if authenticated && s.snapshots != nil {
		s.persistMu.Lock()
		if err := s.snapshots.Delete(ctx, s.snapshotKey); err != nil {
			logger.WarnContext(ctx, "failed to delete transcript snapshot", "key", s.snapshotKey, "error", err)
		}
		s.persistMu.Unlock()
	}
	s.notify()
}

// SetAuthenticated toggles persistence. Becoming authenticated restores the
// persisted snapshot; losing authentication drops the in-memory entries
// but keeps the snapshot for the next login on this tab.
func (s *Store) SetAuthenticated(ctx context.Context, authenticated bool) {
	s.mu.Lock()
	was := s.authenticated
	s.authenticated = authenticated
	if was && !authenticated {
		s.entries = nil
		s.byCorrelation = map[CorrelationID]int{}
	}
	s.mu.Unlock()

	switch {
	case !was && authenticated:
		if err := s.Restore(ctx); err != nil {
			logger.WarnContext(ctx, "failed to restore transcript snapshot", "key", s.snapshotKey, "error", err)
		}
	case was && !authenticated:
		s.notify()
	}
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Restore replaces the in-memory entries with the persisted snapshot. The
// session that opened choices or started loading steps is gone, so restored
// entries carry neither.
func (s *Store) Restore(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	entries, err := s.snapshots.Load(ctx, s.snapshotKey)
	if err != nil {
		return fmt.Errorf("failed to load transcript snapshot: %w", err)
	}
	if entries == nil {
		return nil
	}

	s.mu.Lock()
	s.entries = entries
	s.byCorrelation = map[CorrelationID]int{}
	for i := range entries {
		entries[i].Choice = ChoiceNone
		entries[i].Loading = false
		entry := entries[i]
		if entry.Handle > s.lastHandle {
			s.lastHandle = entry.Handle
		}
		if entry.CorrelationID != 0 {
			s.byCorrelation[entry.CorrelationID] = i
			if entry.CorrelationID > s.lastCorrelation {
				s.lastCorrelation = entry.CorrelationID
			}
		}
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) changed(ctx context.Context) {
	s.persist(ctx)
	s.notify()
}

func (s *Store) persist(ctx context.Context) {
	if s.snapshots == nil {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	if !s.authenticated {
		s.mu.RUnlock()
		return
	}
	entries := s.copyLocked()
	s.mu.RUnlock()

	if err := s.snapshots.Save(ctx, s.snapshotKey, entries); err != nil {
		logger.WarnContext(ctx, "failed to save transcript snapshot", "key", s.snapshotKey, "error", err)
	}
}

func (s *Store) notify() {
	if s.onChange != nil {
		s.onChange(s.Entries())
	}
}

func copyEntry(entry Entry) Entry {
	entry.Media = cloneMedia(entry.Media)
	return entry
}

func cloneMedia(media *Media) *Media {
	if media == nil {
		return nil
	}
	clone := *media
	clone.Data = append([]byte(nil), media.Data...)
	return &clone
}
