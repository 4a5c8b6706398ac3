package guard

import (
	"taskflow/backend/internal/session"
)

type Navigator interface {
	Redirect(target string)
}

// Watch applies g to every change of store while the client sits on the
// route returned by current. Each notification produces at most one
// redirect; resolving snapshots produce none.
func (g *Guard) Watch(store *session.Store, nav Navigator, current func() string) (cancel func()) {
	return store.Observe(func(snap session.Snapshot) {
		d := g.Decide(snap.State, current())
		if d.Action == Redirect {
			nav.Redirect(d.Target)
		}
	})
}
