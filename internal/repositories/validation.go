package repositories

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var fieldMessages = map[string]string{
	"required": "campo obrigatório",
	"datetime": "data inválida, use AAAA-MM-DD",
	"oneof":    "valor inválido",
	"max":      "texto muito longo",
}

const fallbackFieldMessage = "valor inválido"

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func messageFor(tag string) string {
	if msg, ok := fieldMessages[tag]; ok {
		return msg
	}
	return fallbackFieldMessage
}

func collect(into *ValidationError, field string, err error) {
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		into.add(field, fallbackFieldMessage)
		return
	}
	for _, fe := range verrs {
		name := fe.Field()
		if field != "" {
			name = field
		}
		into.add(name, messageFor(fe.Tag()))
	}
}
