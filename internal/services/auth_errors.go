package services

import (
	"errors"
	"fmt"
)

type AuthErrorKind string

const (
	KindInvalidCredential   AuthErrorKind = "invalid-credential"
	KindUserDisabled        AuthErrorKind = "user-disabled"
	KindEmailInUse          AuthErrorKind = "email-in-use"
	KindInvalidEmail        AuthErrorKind = "invalid-email"
	KindOperationNotAllowed AuthErrorKind = "operation-not-allowed"
	KindInvalidToken        AuthErrorKind = "invalid-token"
	KindUnknown             AuthErrorKind = "unknown"
)

type AuthOperation string

const (
	OpSignIn  AuthOperation = "sign-in"
	OpSignUp  AuthOperation = "sign-up"
	OpSignOut AuthOperation = "sign-out"
	OpRefresh AuthOperation = "refresh"
	OpResolve AuthOperation = "resolve"
)

var kindMessages = map[AuthErrorKind]string{
	KindInvalidCredential:   "E-mail ou senha inválidos.",
	KindUserDisabled:        "Esta conta foi desativada.",
	KindEmailInUse:          "Este e-mail já está cadastrado.",
	KindInvalidEmail:        "E-mail inválido.",
	KindOperationNotAllowed: "Cadastro desativado.",
	KindInvalidToken:        "Sessão expirada. Entre novamente.",
}

var fallbackMessages = map[AuthOperation]string{
	OpSignIn:  "Erro ao fazer login.",
	OpSignUp:  "Erro ao criar conta.",
	OpSignOut: "Erro ao sair.",
	OpRefresh: "Erro ao renovar a sessão.",
}

const genericAuthMessage = "Erro inesperado. Tente novamente."

// AuthError is the only error type the auth service returns for provider
// failures. Kind is a stable code for clients; Message is what the user sees.
type AuthError struct {
	Op   AuthOperation
	Kind AuthErrorKind
	Err  error
}

func newAuthError(op AuthOperation, kind AuthErrorKind, err error) *AuthError {
	return &AuthError{Op: op, Kind: kind, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Message returns the localized text for Kind, or the operation's generic
// text when the kind has none.
func (e *AuthError) Message() string {
	if msg, ok := kindMessages[e.Kind]; ok {
		return msg
	}
	if msg, ok := fallbackMessages[e.Op]; ok {
		return msg
	}
	return genericAuthMessage
}

// Code is the wire code: the kind, or "unknown" for unmapped failures.
func (e *AuthError) Code() string {
	if _, ok := kindMessages[e.Kind]; ok {
		return string(e.Kind)
	}
	return string(KindUnknown)
}

func IsAuthErrorKind(err error, kind AuthErrorKind) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == kind
}
