package state

import (
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// GMCPStore keeps the latest document per GMCP package. Object updates are
// merged key by key into the stored object, since servers commonly send
// partial updates (only the vitals that changed, for example).
type GMCPStore struct {
	mu   sync.RWMutex
	docs map[string]string
}

func NewGMCPStore() *GMCPStore {
	return &GMCPStore{docs: map[string]string{}}
}

func (s *GMCPStore) Update(pkg, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.docs[pkg]
	if !ok || raw == "" || !isObject(prev) || !isObject(raw) {
		s.docs[pkg] = raw
		return
	}
	merged := prev
	failed := false
	gjson.Parse(raw).ForEach(func(k, v gjson.Result) bool {
		next, err := sjson.SetRaw(merged, escapeKey(k.String()), v.Raw)
		if err != nil {
			failed = true
			return false
		}
		merged = next
		return true
	})
	if failed {
		merged = raw
	}
	s.docs[pkg] = merged
}

// Get returns the stored document, or "" when none has arrived.
func (s *GMCPStore) Get(pkg string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[pkg]
}

func (s *GMCPStore) Packages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs))
	for k := range s.docs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isObject(raw string) bool {
	return gjson.Parse(raw).IsObject()
}

var keyEscaper = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)

func escapeKey(k string) string { return keyEscaper.Replace(k) }
