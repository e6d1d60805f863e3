package flow

import "sync"

// Identity holds the backend-issued conversation key correlating every call
// of one advertisement-creation session.
type Identity struct {
	mu  sync.RWMutex
	key string
}

func (i *Identity) Key() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.key
}

func (i *Identity) IsSet() bool { return i.Key() != "" }

// Adopt stores key if it differs from the current one and reports whether
// it changed. Empty keys are ignored.
func (i *Identity) Adopt(key string) bool {
	if key == "" {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.key == key {
		return false
	}
	i.key = key
	return true
}

func (i *Identity) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.key = ""
}
