package handlers

import (
	"errors"
	"log"
	"net/http"

	"taskflow/backend/internal/repositories"
	"taskflow/backend/internal/services"

	"github.com/gin-gonic/gin"
)

const genericMessage = "Erro inesperado. Tente novamente."

var authStatus = map[services.AuthErrorKind]int{
	services.KindInvalidCredential:   http.StatusUnauthorized,
	services.KindUserDisabled:        http.StatusForbidden,
	services.KindEmailInUse:          http.StatusConflict,
	services.KindInvalidEmail:        http.StatusBadRequest,
	services.KindOperationNotAllowed: http.StatusForbidden,
	services.KindInvalidToken:        http.StatusUnauthorized,
}

// handleError writes the JSON error response for err. Anything outside the
// known error types is logged and answered with a generic 500.
func handleError(c *gin.Context, err error) {
	var (
		authErr       *services.AuthError
		validationErr *repositories.ValidationError
		permissionErr *repositories.PermissionError
	)

	switch {
	case errors.As(err, &authErr):
		status, ok := authStatus[authErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
			log.Printf("auth %s failed: %v", authErr.Op, authErr.Err)
		}
		c.JSON(status, gin.H{
			"error":   authErr.Code(),
			"message": authErr.Message(),
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": "Verifique os campos informados.",
			"fields":  validationErr.Fields,
		})
	case errors.As(err, &permissionErr):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Acesso negado.",
		})
	case errors.Is(err, repositories.ErrSubtaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Subtarefa não encontrada.",
		})
	case errors.Is(err, repositories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Tarefa não encontrada.",
		})
	default:
		log.Printf("request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": genericMessage,
		})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": "Invalid request format",
		"details": err.Error(),
	})
}
