// Package kv is the persistence collaborator: a string-keyed blob surface
// with best-effort durability and a coarse external-change signal.
package kv

type Store interface {
	// Get returns the stored value, or false when the key is absent or
	// unreadable.
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error

	// Watch registers fn to run when the key's value changes. Delivery is
	// at-least-once and key-level only; callers re-derive the actual diff
	// themselves. The returned func stops the watch.
	Watch(key string, fn func()) (func(), error)
}
