package channel

import "sync"

type registryKey struct {
	UserID int64
	Type   Type
	Mode   Mode
}

// Registry holds the live channel instances owned by this process, keyed by
// (user, channel type, connection mode). It is process-local; other
// processes reach these channels through the gateway client.
type Registry struct {
	mu       sync.RWMutex
	channels map[registryKey]Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[registryKey]Channel)}
}

func (r *Registry) Put(userID int64, t Type, m Mode, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[registryKey{userID, t, m}] = ch
}

func (r *Registry) Get(userID int64, t Type, m Mode) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[registryKey{userID, t, m}]
	return ch, ok
}

// Remove drops the channel from the registry and returns it so the caller
// can disconnect it. Removing an absent entry is a no-op.
func (r *Registry) Remove(userID int64, t Type, m Mode) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey{userID, t, m}
	ch, ok := r.channels[key]
	if ok {
		delete(r.channels, key)
	}
	return ch, ok
}
