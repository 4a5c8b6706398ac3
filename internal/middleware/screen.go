package middleware

import (
	"context"
	"net/http"
	"time"

	"taskflow/backend/internal/guard"
	"taskflow/backend/internal/session"

	"github.com/gin-gonic/gin"
)

// ScreenGuard gates screen routes. It opens a session store for the request,
// waits up to timeout for it to resolve and then applies g:
//
//	redirect -> 302 to the target
//	loading  -> 202 {"status":"loading"}
//	render   -> continue, with the snapshot (and identity, if any) in context
//
// The store stays open until the handler chain returns, so a sign-out that
// lands mid-request is visible through SnapshotFrom.
func ScreenGuard(provider session.Provider, g *guard.Guard, cookieName string, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := session.Snapshot{State: session.Unauthenticated}

		if token := TokenFromRequest(c, cookieName); token != "" {
			store := session.NewStore(provider, token)
			defer store.Close()

			ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
			snap, _ = store.Wait(ctx)
			cancel()
			c.Set(ContextSnapshot, store)
		}

		decision := g.Decide(snap.State, c.Request.URL.Path)
		switch decision.Action {
		case guard.Redirect:
			c.Redirect(http.StatusFound, decision.Target)
			c.Abort()
		case guard.ShowLoading:
			c.AbortWithStatusJSON(http.StatusAccepted, gin.H{"status": "loading"})
		default:
			if snap.Identity != nil {
				setIdentity(c, snap.Identity)
			}
			c.Next()
		}
	}
}

// SnapshotFrom returns the live session state of a guarded screen request.
func SnapshotFrom(c *gin.Context) session.Snapshot {
	if v, ok := c.Get(ContextSnapshot); ok {
		if store, ok := v.(*session.Store); ok {
			return store.Snapshot()
		}
	}
	if identity, ok := IdentityFrom(c); ok {
		return session.Snapshot{State: session.Authenticated, Identity: identity}
	}
	return session.Snapshot{State: session.Unauthenticated}
}
