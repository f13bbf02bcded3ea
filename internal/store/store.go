// Package store is the single source of truth for durable session data,
// shared across controller instances and, through the kv change signal,
// across processes. The whole cache lives as one JSON blob under one key;
// every write re-serializes it.
package store

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"retrievai-client/internal/kv"
	"retrievai-client/internal/model"
	"retrievai-client/pkg/logger"
)

const (
	cacheKey     = "chat_sessions"
	cacheVersion = 1

	DefaultTTL         = 30 * 24 * time.Hour
	DefaultMaxSessions = 20
)

type Options struct {
	// Key overrides the kv key the cache is stored under.
	Key         string
	TTL         time.Duration
	MaxSessions int
}

type Store struct {
	kv  kv.Store
	key string
	ttl time.Duration
	max int

	mu        sync.Mutex
	listeners map[int]func()
	nextID    int

	snapshot      []model.Session
	fingerprint   string
	snapshotValid bool

	stopWatch func()
}

func New(kvStore kv.Store, opts Options) *Store {
	if opts.Key == "" {
		opts.Key = cacheKey
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}

	s := &Store{
		kv:        kvStore,
		key:       opts.Key,
		ttl:       opts.TTL,
		max:       opts.MaxSessions,
		listeners: make(map[int]func()),
	}

	stop, err := kvStore.Watch(s.key, s.externalChange)
	if err != nil {
		logger.Warnf("session store: change notifications unavailable: %v", err)
	} else {
		s.stopWatch = stop
	}

	return s
}

func (s *Store) Close() {
	if s.stopWatch != nil {
		s.stopWatch()
	}
}

// GenerateID produces a fresh client-side session identifier.
func (s *Store) GenerateID() string {
	return uuid.New().String()
}

// Load returns the message list for id, or an empty list when the session
// is absent or the underlying cache is unreadable. It never fails.
func (s *Store) Load(id string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.readCache() {
		if sess.ID == id {
			return append([]model.Message(nil), sess.Messages...)
		}
	}
	return []model.Message{}
}

// ConversationID returns the server-assigned conversation id for a
// session, if one has been learned.
func (s *Store) ConversationID(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.readCache() {
		if sess.ID == id && sess.ConversationID != "" {
			return sess.ConversationID, true
		}
	}
	return "", false
}

// Persist upserts a session at the head of the cache. Empty message lists
// and the ephemeral default id are never written. conversationID is
// tri-state: nil leaves the stored value unchanged, a pointer to the
// empty string clears it, anything else sets it.
func (s *Store) Persist(id string, messages []model.Message, conversationID *string) {
	if id == "" || id == model.DefaultSessionID || len(messages) == 0 {
		return
	}

	s.mu.Lock()
	sessions := s.readCache()
	now := time.Now()

	sess := model.Session{
		ID:        id,
		Messages:  append([]model.Message(nil), messages...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	kept := make([]model.Session, 0, len(sessions)+1)
	for _, existing := range sessions {
		if existing.ID == id {
			sess.CreatedAt = existing.CreatedAt
			sess.ConversationID = existing.ConversationID
			continue
		}
		kept = append(kept, existing)
	}
	if conversationID != nil {
		sess.ConversationID = *conversationID
	}

	kept = append([]model.Session{sess}, kept...)
	kept = s.applyRetention(kept, now)

	s.writeCache(kept)
	s.snapshotValid = false
	s.mu.Unlock()

	s.notify()
}

// Remove drops the matching session and persists the reduced cache.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	sessions := s.readCache()

	kept := make([]model.Session, 0, len(sessions))
	for _, sess := range sessions {
		if sess.ID == id {
			continue
		}
		kept = append(kept, sess)
	}

	s.writeCache(kept)
	s.snapshotValid = false
	s.mu.Unlock()

	s.notify()
}

// ClearAll erases the underlying storage key entirely.
func (s *Store) ClearAll() {
	s.mu.Lock()
	if err := s.kv.Delete(s.key); err != nil {
		logger.Warnf("session store: clear failed: %v", err)
	}
	s.snapshotValid = false
	s.mu.Unlock()

	s.notify()
}

// ListAll returns a snapshot of all sessions, newest-first. The snapshot
// is memoized by an id+updatedAt fingerprint: as long as the underlying
// data is unchanged the identical slice comes back, so shallow-equality
// consumers do not re-render.
func (s *Store) ListAll() []model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := s.readCache()

	var fp strings.Builder
	for _, sess := range sessions {
		fp.WriteString(sess.ID)
		fp.WriteByte('@')
		fp.WriteString(strconv.FormatInt(sess.UpdatedAt.UnixNano(), 10))
		fp.WriteByte(';')
	}

	if s.snapshotValid && fp.String() == s.fingerprint {
		return s.snapshot
	}

	s.snapshot = sessions
	s.fingerprint = fp.String()
	s.snapshotValid = true
	return s.snapshot
}

// Subscribe registers a listener invoked after every write, including
// writes observed from other processes. The returned func unsubscribes.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// notify fans out synchronously, best-effort: a panicking listener must
// not keep the rest from running.
func (s *Store) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("session store: listener panic: %v", r)
				}
			}()
			fn()
		}()
	}
}

func (s *Store) externalChange() {
	s.mu.Lock()
	s.snapshotValid = false
	s.mu.Unlock()

	s.notify()
}

type rawCache struct {
	Version  int               `json:"version"`
	Sessions []json.RawMessage `json:"sessions"`
}

// readCache decodes the blob, validating each session entry on its own so
// one corrupt entry drops that entry, not the whole cache. Expired entries
// are filtered here as well. Any failure degrades to an empty cache.
// Callers must hold s.mu.
func (s *Store) readCache() []model.Session {
	blob, ok := s.kv.Get(s.key)
	if !ok || blob == "" {
		return nil
	}

	var raw rawCache
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		logger.Warnf("session store: discarding corrupt cache: %v", err)
		return nil
	}

	cutoff := time.Now().Add(-s.ttl)
	sessions := make([]model.Session, 0, len(raw.Sessions))
	for _, entry := range raw.Sessions {
		var sess model.Session
		if err := json.Unmarshal(entry, &sess); err != nil {
			logger.Debugf("session store: dropping undecodable cache entry: %v", err)
			continue
		}
		if sess.ID == "" || sess.Messages == nil {
			logger.Debugf("session store: dropping invalid cache entry")
			continue
		}
		if sess.UpdatedAt.Before(cutoff) {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions
}

// writeCache serializes and stores the full cache. Write failures are
// swallowed: losing an update is acceptable, crashing the caller is not.
// Callers must hold s.mu.
func (s *Store) writeCache(sessions []model.Session) {
	cache := model.SessionCache{Version: cacheVersion, Sessions: sessions}

	data, err := json.Marshal(cache)
	if err != nil {
		logger.Errorf("session store: marshal cache: %v", err)
		return
	}

	if err := s.kv.Set(s.key, string(data)); err != nil {
		logger.Warnf("session store: write failed, update dropped: %v", err)
	}
}

// applyRetention prunes expired sessions, then caps the cache at the
// configured maximum keeping the most recently updated.
func (s *Store) applyRetention(sessions []model.Session, now time.Time) []model.Session {
	cutoff := now.Add(-s.ttl)

	kept := sessions[:0]
	for _, sess := range sessions {
		if sess.UpdatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, sess)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].UpdatedAt.After(kept[j].UpdatedAt)
	})

	if len(kept) > s.max {
		kept = kept[:s.max]
	}
	return kept
}
