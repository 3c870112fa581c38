package nodenet

import "fmt"

type lockEntry struct {
	key     string
	created int
	timeout int
}

// LockInfo describes a held lock.
type LockInfo struct {
	Name    string
	Key     string
	Created int
	Timeout int
}

func (n *Net) lock(name, key string, timeout int) error {
	if held, ok := n.locks[name]; ok {
		return fmt.Errorf("%w: %s held by %q", ErrAlreadyLocked, name, held.key)
	}
	n.locks[name] = lockEntry{key: key, created: n.stepCount, timeout: timeout}
	return nil
}

// expireLocks drops locks whose step timeout has elapsed. A timeout of
// zero or less never expires.
func (n *Net) expireLocks() {
	for name, l := range n.locks {
		if l.timeout > 0 && n.stepCount-l.created >= l.timeout {
			delete(n.locks, name)
		}
	}
}

func (n *Net) applyUnlocks() {
	for _, name := range n.pendingUnlocks {
		delete(n.locks, name)
	}
	n.pendingUnlocks = n.pendingUnlocks[:0]
}

// AcquireLock takes a named lock for timeout steps.
func (n *Net) AcquireLock(name, key string, timeout int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lock(name, key, timeout)
}

// ReleaseLock removes a lock immediately. Node functions release through
// their API instead, which defers removal to the end of the step.
func (n *Net) ReleaseLock(name string) {
	n.mu.Lock()
	delete(n.locks, name)
	n.mu.Unlock()
}

func (n *Net) IsLocked(name string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.locks[name]
	return ok
}

func (n *Net) Locks() []LockInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]LockInfo, 0, len(n.locks))
	for _, name := range sortedKeys(n.locks) {
		l := n.locks[name]
		out = append(out, LockInfo{Name: name, Key: l.key, Created: l.created, Timeout: l.timeout})
	}
	return out
}
