package services

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"taskflow/backend/internal/repositories"

	"github.com/go-playground/validator/v10"
)

type SignUpRequest struct {
	Name            string `json:"name" validate:"required,min=2,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,password_bytes,password_strength"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type SignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

var signUpMessages = map[string]map[string]string{
	"name": {
		"required": "Nome é obrigatório.",
		"min":      "Nome deve ter pelo menos 2 caracteres.",
		"max":      "Nome muito longo.",
	},
	"email": {
		"required": "E-mail é obrigatório.",
		"email":    "E-mail inválido.",
	},
	"password": {
		"required":          "Senha é obrigatória.",
		"min":               "Senha deve ter pelo menos 8 caracteres.",
		"password_bytes":    "Senha muito longa.",
		"password_strength": "Senha deve conter letras maiúsculas, minúsculas e números.",
	},
	"confirm_password": {
		"required": "Confirme a senha.",
		"eqfield":  "As senhas não coincidem.",
	},
}

func newSignUpValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	_ = v.RegisterValidation("password_strength", func(fl validator.FieldLevel) bool {
		return strongPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("password_bytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})
	return v
}

// maxPasswordBytes is bcrypt's input limit; it counts bytes, not characters.
const maxPasswordBytes = 72

func strongPassword(p string) bool {
	var upper, lower, digit bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// normalize trims the request and lower-cases the e-mail. Passwords are kept
// byte for byte.
func (r *SignUpRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = normalizeEmail(r.Email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateSignUp reports every failing field with its message. A malformed
// e-mail alone is reported as an invalid-email AuthError so clients see the
// same code the provider would return.
func validateSignUp(v *validator.Validate, req SignUpRequest) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string)
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		msg, ok := signUpMessages[fe.Field()][fe.Tag()]
		if !ok {
			msg = "Valor inválido."
		}
		fields[fe.Field()] = msg
	}

	if len(fields) == 1 {
		if _, ok := fields["email"]; ok && req.Email != "" {
			return newAuthError(OpSignUp, KindInvalidEmail, err)
		}
	}
	return &repositories.ValidationError{Fields: fields}
}
