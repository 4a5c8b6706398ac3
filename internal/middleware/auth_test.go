package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/services"
	"taskflow/backend/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCookie = "taskflow_session"

type stubResolver struct {
	identities map[string]*session.Identity
	err        error
}

func (s stubResolver) Resolve(_ context.Context, token string) (*session.Identity, error) {
	if identity, ok := s.identities[token]; ok {
		return identity, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, &services.AuthError{Op: services.OpResolve, Kind: services.KindInvalidToken}
}

func newAuthRouter(resolver middleware.TokenResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(middleware.RequireSession(resolver, testCookie))
	router.GET("/protected", func(c *gin.Context) {
		userID, ok := middleware.UserIDFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID.String()})
	})
	return router
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRequireSession_NoToken(t *testing.T) {
	router := newAuthRouter(stubResolver{})

	req, _ := http.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid-token", decodeError(t, w)["error"])
}

func TestRequireSession_NonBearerHeader(t *testing.T) {
	identity := &session.Identity{UserID: uuid.Must(uuid.NewV4())}
	router := newAuthRouter(stubResolver{identities: map[string]*session.Identity{"good": identity}})

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Basic good")
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "good"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code, "a malformed header is not silently replaced by the cookie")
}

func TestRequireSession_InvalidToken(t *testing.T) {
	router := newAuthRouter(stubResolver{})

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer invalid_token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "invalid-token", body["error"])
	assert.Equal(t, "Sessão expirada. Entre novamente.", body["message"])
}

func TestRequireSession_DisabledUser(t *testing.T) {
	router := newAuthRouter(stubResolver{err: &services.AuthError{Op: services.OpResolve, Kind: services.KindUserDisabled}})

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "user-disabled", decodeError(t, w)["error"])
}

func TestRequireSession_BearerToken(t *testing.T) {
	identity := &session.Identity{UserID: uuid.Must(uuid.NewV4())}
	router := newAuthRouter(stubResolver{identities: map[string]*session.Identity{"good": identity}})

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, identity.UserID.String(), decodeError(t, w)["user_id"])
}

func TestRequireSession_Cookie(t *testing.T) {
	identity := &session.Identity{UserID: uuid.Must(uuid.NewV4())}
	router := newAuthRouter(stubResolver{identities: map[string]*session.Identity{"good": identity}})

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "good"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
