package session

import (
	"sort"
	"sync"
	"time"
)

// Conn is the write side of a live device connection
type Conn interface {
	Write(p []byte) error
	Close() error
}

type entry struct {
	sess Session
	conn Conn
	// identSeq orders handshakes so the newest connection wins a UID
	identSeq uint64
}

// Store holds the sessions of live connections (the connection registry)
// and the last known view of every device that has identified itself.
// A single mutex guards both maps.
type Store struct {
	mu       sync.RWMutex
	live     map[string]*entry
	known    map[string]DeviceInfo
	identSeq uint64
	now      func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		live:  make(map[string]*entry),
		known: make(map[string]DeviceInfo),
		now:   time.Now,
	}
}

// Add registers a new connection with an empty session
func (s *Store) Add(connID, remoteAddr string, conn Conn) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := &entry{
		sess: Session{
			ConnectionID: connID,
			RemoteAddr:   remoteAddr,
			ConnectedAt:  now,
			LastSeen:     now,
		},
		conn: conn,
	}
	s.live[connID] = e
	return e.sess
}

// Get returns a copy of the session for a connection
func (s *Store) Get(connID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.live[connID]
	if !ok {
		return Session{}, false
	}
	return e.sess, true
}

// Update applies fn to the session of a connection under the store lock and
// returns the updated copy. fn must not block.
func (s *Store) Update(connID string, fn func(*Session)) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live[connID]
	if !ok {
		return Session{}, false
	}

	prevUID, prevIdent := e.sess.UID, e.sess.IdentifiedAt
	fn(&e.sess)

	if e.sess.UID != "" {
		if e.sess.UID != prevUID || !e.sess.IdentifiedAt.Equal(prevIdent) || e.identSeq == 0 {
			s.identSeq++
			e.identSeq = s.identSeq
		}
		s.known[e.sess.UID] = e.sess.info(true)
	}

	// A connection that changed its UID no longer speaks for the old one
	if prevUID != "" && prevUID != e.sess.UID {
		if info, ok := s.known[prevUID]; ok {
			info.Online = s.liveForUIDLocked(prevUID) != nil
			s.known[prevUID] = info
		}
	}
	return e.sess, true
}

// Remove drops a connection and returns its final session. The device stays
// listed as offline in Devices.
func (s *Store) Remove(connID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live[connID]
	if !ok {
		return Session{}, false
	}
	delete(s.live, connID)

	if uid := e.sess.UID; uid != "" {
		s.known[uid] = e.sess.info(s.liveForUIDLocked(uid) != nil)
	}
	return e.sess, true
}

// FindByUID returns the session and connection addressed by a device UID.
// When several live connections claim the same UID, the one that
// identified most recently wins.
func (s *Store) FindByUID(uid string) (Session, Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.liveForUIDLocked(uid)
	if e == nil {
		return Session{}, nil, false
	}
	return e.sess, e.conn, true
}

func (s *Store) liveForUIDLocked(uid string) *entry {
	if uid == "" {
		return nil
	}
	var best *entry
	for _, e := range s.live {
		if e.sess.UID == uid && (best == nil || e.identSeq > best.identSeq) {
			best = e
		}
	}
	return best
}

// Devices returns every device seen since startup, online or not, sorted
// by UID.
func (s *Store) Devices() []DeviceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DeviceInfo, 0, len(s.known))
	for uid, info := range s.known {
		if e := s.liveForUIDLocked(uid); e != nil {
			info = e.sess.info(true)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// Sessions returns copies of all live sessions
func (s *Store) Sessions() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.live))
	for _, e := range s.live {
		out = append(out, e.sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// Conns returns the live connections keyed by connection ID
func (s *Store) Conns() map[string]Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Conn, len(s.live))
	for id, e := range s.live {
		out[id] = e.conn
	}
	return out
}

// Len returns the number of live connections
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}
