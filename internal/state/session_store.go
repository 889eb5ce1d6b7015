package state

import (
	"sort"
	"sync"
	"time"
)

// SessionStore mirrors what the status endpoint reports. The loop writes,
// HTTP handlers read.
type SessionStore struct {
	mu sync.RWMutex

	host        string
	connected   bool
	connectedAt time.Time
	closedAt    time.Time

	linesIn  int
	linesOut int
	gmcpIn   int

	values map[string]string
}

type Snapshot struct {
	Host        string
	Connected   bool
	ConnectedAt time.Time
	ClosedAt    time.Time
	LinesIn     int
	LinesOut    int
	GMCPIn      int
	Values      map[string]string
}

func NewSessionStore(host string) *SessionStore {
	return &SessionStore{host: host, values: map[string]string{}}
}

func (s *SessionStore) SetConnected(on bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	s.connected = on
	if on {
		s.connectedAt = now
		s.closedAt = time.Time{}
	} else {
		s.closedAt = now
	}
}

func (s *SessionStore) CountLineIn() {
	s.mu.Lock()
	s.linesIn++
	s.mu.Unlock()
}

func (s *SessionStore) CountLineOut() {
	s.mu.Lock()
	s.linesOut++
	s.mu.Unlock()
}

func (s *SessionStore) CountGMCP() {
	s.mu.Lock()
	s.gmcpIn++
	s.mu.Unlock()
}

func (s *SessionStore) SetValue(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *SessionStore) Value(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the stored keys in sorted order.
func (s *SessionStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *SessionStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vals := make(map[string]string, len(s.values))
	for k, v := range s.values {
		vals[k] = v
	}
	return Snapshot{
		Host:        s.host,
		Connected:   s.connected,
		ConnectedAt: s.connectedAt,
		ClosedAt:    s.closedAt,
		LinesIn:     s.linesIn,
		LinesOut:    s.linesOut,
		GMCPIn:      s.gmcpIn,
		Values:      vals,
	}
}
