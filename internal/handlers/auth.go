package handlers

import (
	"net/http"
	"time"

	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type CookieConfig struct {
	Name   string
	Secure bool
}

type AuthHandler struct {
	authService services.AuthService
	cookie      CookieConfig
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type UserProfileResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	IsActive     bool       `json:"is_active"`
	LastSignInAt *time.Time `json:"last_sign_in_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

type SessionResponse struct {
	services.TokenPair
	User *UserProfileResponse `json:"user,omitempty"`
}

func NewAuthHandler(authService services.AuthService, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{authService: authService, cookie: cookie}
}

func profileOf(user *models.User) *UserProfileResponse {
	return &UserProfileResponse{
		ID:           user.ID.String(),
		Name:         user.Name,
		Email:        user.Email,
		IsActive:     user.IsActive,
		LastSignInAt: user.LastSignInAt,
		CreatedAt:    user.CreatedAt,
	}
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, pair services.TokenPair) {
	if h.cookie.Name == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, pair.AccessToken, int(pair.ExpiresIn), "/", "", h.cookie.Secure, true)
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	if h.cookie.Name == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req services.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, pair, err := h.authService.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handleError(c, err)
		return
	}

	h.setSessionCookie(c, pair)
	c.JSON(http.StatusOK, SessionResponse{TokenPair: pair, User: profileOf(user)})
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req services.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, pair, err := h.authService.SignUp(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}

	h.setSessionCookie(c, pair)
	c.JSON(http.StatusCreated, SessionResponse{TokenPair: pair, User: profileOf(user)})
}

// SignOut ends the caller's session. It runs behind RequireSession.
func (h *AuthHandler) SignOut(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	if err := h.authService.SignOut(c.Request.Context(), identity.SessionID); err != nil {
		handleError(c, err)
		return
	}

	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Sessão encerrada."})
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		handleError(c, err)
		return
	}

	h.setSessionCookie(c, pair)
	c.JSON(http.StatusOK, SessionResponse{TokenPair: pair})
}

func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	user, err := h.authService.CurrentUser(c.Request.Context(), identity.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, profileOf(user))
}
