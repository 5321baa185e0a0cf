package dialog

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrSessionExists = errors.New("dialog: session already exists")

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Registry keeps the in-flight sessions of the process, keyed by the
// requester's private chat. Nothing is persisted.
//
// The map itself is guarded by a short-lived mutex; Lock hands out one mutex
// per key so work on different requesters never waits on each other.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]Session
	locks    map[int64]*keyLock
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[int64]Session),
		locks:    make(map[int64]*keyLock),
	}
}

// Lock serializes work on key until the returned func is called.
func (r *Registry) Lock(key int64) (release func()) {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &keyLock{}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			r.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(r.locks, key)
			}
			r.mu.Unlock()
		})
	}
}

func (r *Registry) Get(key int64) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Put registers a new session. It never overwrites an existing one.
func (r *Registry) Put(s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.Key]; ok {
		return ErrSessionExists
	}
	r.sessions[s.Key] = s
	return nil
}

// Delete removes the session and reports whether there was one.
func (r *Registry) Delete(key int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[key]
	delete(r.sessions, key)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CreatedBefore lists sessions opened before t, oldest first.
func (r *Registry) CreatedBefore(t time.Time) []Session {
	r.mu.Lock()
	var out []Session
	for _, s := range r.sessions {
		if s.CreatedAt.Before(t) {
			out = append(out, s)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
