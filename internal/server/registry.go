package server

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guarzo/mltrends/internal/enrich"
)

const (
	// maxEnrichers bounds the on-demand registry.
	maxEnrichers = 1000
	// maxSessions bounds live batch sessions; each one may be searching.
	maxSessions = 100
	// sessionIdleTTL is how long an untouched session survives once the
	// registry is full.
	sessionIdleTTL = 30 * time.Minute
)

var errTooManySessions = errors.New("too many active sessions")

type sessionEntry struct {
	sess     *enrich.Session
	lastSeen time.Time
}

// sessionRegistry tracks live batch sessions by ID.
type sessionRegistry struct {
	mu       sync.Mutex
	max      int
	idle     time.Duration
	now      func() time.Time
	sessions map[string]*sessionEntry
}

func newSessionRegistry(max int, idle time.Duration) *sessionRegistry {
	return &sessionRegistry{
		max:      max,
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
}

// add stores sess under a new random ID. When the registry is full, idle
// sessions that are not loading are closed to make room; if none qualify
// it returns errTooManySessions.
func (r *sessionRegistry) add(sess *enrich.Session) (string, error) {
	r.mu.Lock()
	var evicted []*enrich.Session
	if len(r.sessions) >= r.max {
		evicted = r.evictIdleLocked()
	}
	if len(r.sessions) >= r.max {
		r.mu.Unlock()
		closeSessions(evicted)
		return "", errTooManySessions
	}
	id := uuid.NewString()
	r.sessions[id] = &sessionEntry{sess: sess, lastSeen: r.now()}
	r.mu.Unlock()

	closeSessions(evicted)
	return id, nil
}

func (r *sessionRegistry) evictIdleLocked() []*enrich.Session {
	now := r.now()
	var evicted []*enrich.Session
	for id, e := range r.sessions {
		if now.Sub(e.lastSeen) < r.idle || e.sess.Snapshot().Loading {
			continue
		}
		delete(r.sessions, id)
		evicted = append(evicted, e.sess)
	}
	return evicted
}

// get returns the session and marks it as used.
func (r *sessionRegistry) get(id string) (*enrich.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.sess, true
}

// remove closes and forgets a session. Returns false if id is unknown.
func (r *sessionRegistry) remove(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		e.sess.Close()
	}
	return ok
}

func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	all := make([]*enrich.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		all = append(all, e.sess)
	}
	r.sessions = make(map[string]*sessionEntry)
	r.mu.Unlock()

	closeSessions(all)
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func closeSessions(sessions []*enrich.Session) {
	for _, sess := range sessions {
		sess.Close()
	}
}

// enricherRegistry keeps one on-demand enricher per site and keyword so
// repeated requests reuse a successful result.
type enricherRegistry struct {
	mu        sync.Mutex
	max       int
	enrichers map[string]*enrich.Enricher
}

func newEnricherRegistry(max int) *enricherRegistry {
	return &enricherRegistry{max: max, enrichers: make(map[string]*enrich.Enricher)}
}

func enricherKey(site, keyword string) string {
	return site + ":" + strings.ToLower(strings.Join(strings.Fields(keyword), " "))
}

// getOrCreate returns the enricher for key, creating it with create when
// absent. When full, settled enrichers are evicted first.
func (r *enricherRegistry) getOrCreate(key string, create func() *enrich.Enricher) *enrich.Enricher {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.enrichers[key]; ok {
		return e
	}
	if len(r.enrichers) >= r.max {
		for k, e := range r.enrichers {
			if e.State().Status != enrich.StatusLoading {
				delete(r.enrichers, k)
			}
			if len(r.enrichers) < r.max/2 {
				break
			}
		}
	}

	e := create()
	r.enrichers[key] = e
	return e
}
