package services

import (
	"context"
	"sync"
	"sync/atomic"

	"taskflow/backend/internal/session"

	"github.com/gofrs/uuid"
)

type watcher struct {
	mu      sync.Mutex
	fn      session.ChangeFunc
	stopped atomic.Bool
	final   bool
}

// deliver calls fn unless the watcher was stopped or already told the
// session ended. Deliveries to one watcher never overlap.
func (w *watcher) deliver(identity *session.Identity, final bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.final || w.stopped.Load() {
		return
	}
	if final {
		w.final = true
	}
	w.fn(identity)
}

// sessionHub tracks live watchers per session id so a sign-out reaches every
// request still holding that session.
type sessionHub struct {
	mu       sync.Mutex
	watchers map[uuid.UUID]map[*watcher]struct{}
}

func newSessionHub() *sessionHub {
	return &sessionHub{watchers: make(map[uuid.UUID]map[*watcher]struct{})}
}

func (h *sessionHub) add(sessionID uuid.UUID, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.watchers[sessionID]
	if !ok {
		set = make(map[*watcher]struct{})
		h.watchers[sessionID] = set
	}
	set[w] = struct{}{}
}

func (h *sessionHub) remove(sessionID uuid.UUID, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.watchers[sessionID]; ok {
		delete(set, w)
		if len(set) == 0 {
			delete(h.watchers, sessionID)
		}
	}
}

func (h *sessionHub) revoke(sessionID uuid.UUID) {
	h.mu.Lock()
	set := h.watchers[sessionID]
	delete(h.watchers, sessionID)
	h.mu.Unlock()

	for w := range set {
		w.deliver(nil, true)
	}
}

func (h *sessionHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.watchers {
		n += len(set)
	}
	return n
}

// ActiveWatchers reports how many session watchers are registered.
func (s *AuthServiceImpl) ActiveWatchers() int {
	return s.hub.count()
}

// Watch implements session.Provider. The first notification comes from a
// background goroutine once the token has been checked; a later sign-out of
// the same session delivers nil.
//
// The watcher is registered before the session row is looked up, so a
// sign-out racing with resolution is either seen by the lookup or delivered
// through the hub. The lookup runs on SessionLookupTimeout, which is longer
// than the screen wait, so a slow database shows the loading view first.
func (s *AuthServiceImpl) Watch(token string, fn session.ChangeFunc) (stop func()) {
	w := &watcher{fn: fn}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SessionLookupTimeout)

	var (
		mu         sync.Mutex
		registered bool
		sessionID  uuid.UUID
	)

	go func() {
		defer cancel()

		claims, err := s.parseAccessToken(token)
		if err != nil {
			w.deliver(nil, true)
			return
		}
		sid, err := uuid.FromString(claims.SessionID)
		if err != nil {
			w.deliver(nil, true)
			return
		}

		mu.Lock()
		if w.stopped.Load() {
			mu.Unlock()
			return
		}
		s.hub.add(sid, w)
		registered, sessionID = true, sid
		mu.Unlock()

		identity, err := s.lookupSession(ctx, claims)
		if err != nil {
			w.deliver(nil, true)
			return
		}
		w.deliver(identity, false)
	}()

	return func() {
		w.stopped.Store(true)
		cancel()
		mu.Lock()
		if registered {
			s.hub.remove(sessionID, w)
			registered = false
		}
		mu.Unlock()
	}
}
