package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/discovery-agent/internal/session"
)

const defaultShards = 32

var _ session.Store = (*SessionStore)(nil)

// SessionStore implements session.Store in memory.
//
// Sessions are spread over hashed shards and users over a separate set of
// shards holding each user's ordered index. Lock order is user shard, then
// session shard, then the per-session mutex.
type SessionStore struct {
	shards     []*sessionShard
	userShards []*userShard
	now        func() time.Time
	newID      func() string
}

type sessionShard struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

type userShard struct {
	mu    sync.Mutex
	users map[string][]string // userID -> session ids in creation order
}

type entry struct {
	mu      sync.Mutex
	session *session.Session
	deleted bool
}

// NewSessionStore creates a store with the given number of shards (0 means the default)
func NewSessionStore(shards int) *SessionStore {
	if shards <= 0 {
		shards = defaultShards
	}
	s := &SessionStore{
		shards:     make([]*sessionShard, shards),
		userShards: make([]*userShard, shards),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for i := range s.shards {
		s.shards[i] = &sessionShard{sessions: make(map[string]*entry)}
		s.userShards[i] = &userShard{users: make(map[string][]string)}
	}
	return s
}

func hashIndex(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func (s *SessionStore) shardFor(sessionID string) *sessionShard {
	return s.shards[hashIndex(sessionID, len(s.shards))]
}

func (s *SessionStore) userShardFor(userID string) *userShard {
	return s.userShards[hashIndex(userID, len(s.userShards))]
}

// Create registers a new session for userID with a fresh id. Ids are random
// UUIDs and are checked only against live sessions; deleted ids are not kept.
func (s *SessionStore) Create(ctx context.Context, userID string) (*session.Session, error) {
	if userID == "" {
		return nil, session.ErrInvalidUser
	}

	us := s.userShardFor(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	for {
		id := s.newID()
		shard := s.shardFor(id)

		shard.mu.Lock()
		if _, exists := shard.sessions[id]; exists {
			shard.mu.Unlock()
			continue
		}
		now := s.now()
		sess := &session.Session{
			ID:         id,
			UserID:     userID,
			CreatedAt:  now,
			LastActive: now,
		}
		shard.sessions[id] = &entry{session: sess}
		shard.mu.Unlock()

		us.users[userID] = append(us.users[userID], id)
		return sess.Clone(), nil
	}
}

// List returns summaries of the user's sessions in creation order
func (s *SessionStore) List(ctx context.Context, userID string) ([]session.Summary, error) {
	if userID == "" {
		return nil, session.ErrInvalidUser
	}

	us := s.userShardFor(userID)
	us.mu.Lock()
	ids := make([]string, len(us.users[userID]))
	copy(ids, us.users[userID])
	us.mu.Unlock()

	out := make([]session.Summary, 0, len(ids))
	for _, id := range ids {
		e := s.lookup(id)
		if e == nil {
			continue
		}
		e.mu.Lock()
		if !e.deleted {
			out = append(out, session.Summary{
				ID:        e.session.ID,
				CreatedAt: e.session.CreatedAt,
				TurnCount: len(e.session.Turns),
			})
		}
		e.mu.Unlock()
	}
	return out, nil
}

// Get returns a copy of the session if it belongs to userID
func (s *SessionStore) Get(ctx context.Context, sessionID, userID string) (*session.Session, error) {
	e := s.lookup(sessionID)
	if e == nil {
		return nil, session.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted || e.session.UserID != userID {
		return nil, session.ErrNotFound
	}
	return e.session.Clone(), nil
}

// Delete removes the session if it belongs to userID
func (s *SessionStore) Delete(ctx context.Context, sessionID, userID string) error {
	if userID == "" {
		return session.ErrNotFound
	}

	us := s.userShardFor(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	shard := s.shardFor(sessionID)
	shard.mu.Lock()
	e, ok := shard.sessions[sessionID]
	if !ok {
		shard.mu.Unlock()
		return session.ErrNotFound
	}
	e.mu.Lock()
	if e.deleted || e.session.UserID != userID {
		e.mu.Unlock()
		shard.mu.Unlock()
		return session.ErrNotFound
	}
	e.deleted = true
	e.mu.Unlock()
	delete(shard.sessions, sessionID)
	shard.mu.Unlock()

	ids := us.users[userID]
	for i, id := range ids {
		if id == sessionID {
			us.users[userID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(us.users[userID]) == 0 {
		delete(us.users, userID)
	}
	return nil
}

// AppendTurn records turn at the end of the session's history.
// The turn's Seq and CreatedAt are assigned by the store.
func (s *SessionStore) AppendTurn(ctx context.Context, sessionID, userID string, turn session.Turn) error {
	e := s.lookup(sessionID)
	if e == nil {
		return session.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted || e.session.UserID != userID {
		return session.ErrNotFound
	}

	now := s.now()
	recorded := session.Turn{
		Seq:        len(e.session.Turns) + 1,
		Query:      turn.Query,
		Answer:     turn.Answer,
		Specialist: turn.Specialist,
		Strategy:   turn.Strategy,
		CreatedAt:  now,
	}
	if turn.Calls != nil {
		recorded.Calls = make([]session.CallRecord, len(turn.Calls))
		copy(recorded.Calls, turn.Calls)
	}
	e.session.Turns = append(e.session.Turns, recorded)
	e.session.LastActive = now
	return nil
}

// CleanupStale removes sessions idle for longer than maxIdle
func (s *SessionStore) CleanupStale(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-maxIdle)

	type candidate struct{ id, user string }
	var stale []candidate
	for _, shard := range s.shards {
		shard.mu.RLock()
		for id, e := range shard.sessions {
			e.mu.Lock()
			if !e.deleted && e.session.LastActive.Before(cutoff) {
				stale = append(stale, candidate{id: id, user: e.session.UserID})
			}
			e.mu.Unlock()
		}
		shard.mu.RUnlock()
	}

	deleted := 0
	for _, c := range stale {
		// Recheck: the session may have been touched since it was collected
		e := s.lookup(c.id)
		if e == nil {
			continue
		}
		e.mu.Lock()
		stillStale := !e.deleted && e.session.LastActive.Before(cutoff)
		e.mu.Unlock()
		if !stillStale {
			continue
		}
		if err := s.Delete(context.Background(), c.id, c.user); err == nil {
			deleted++
		}
	}
	return deleted
}

// Count returns the number of live sessions
func (s *SessionStore) Count() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		n += len(shard.sessions)
		shard.mu.RUnlock()
	}
	return n
}

func (s *SessionStore) lookup(sessionID string) *entry {
	shard := s.shardFor(sessionID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return shard.sessions[sessionID]
}
