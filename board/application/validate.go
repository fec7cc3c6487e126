package application

import (
	"errors"
	"fmt"
	"strings"

	"message-board/board/domain"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type PostMessageInput struct {
	UserID string `json:"userId" validate:"required,max=128"`
	Body   string `json:"body" validate:"required,max=1000"`
}

type CreateUserInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=254"`
}

func (in PostMessageInput) normalized() PostMessageInput {
	return PostMessageInput{
		UserID: strings.TrimSpace(in.UserID),
		Body:   strings.TrimSpace(in.Body),
	}
}

func (in CreateUserInput) normalized() CreateUserInput {
	return CreateUserInput{
		Name:  strings.TrimSpace(in.Name),
		Email: strings.ToLower(strings.TrimSpace(in.Email)),
	}
}

func requireID(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return domain.Validation(field, field+" is required")
	}
	return nil
}

// validateStruct converte o primeiro erro do validator num domain.Error.
// O limite "max" de strings conta runes, igual a domain.MaxBodyLength.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.Internal(err)
	}
	fe := verrs[0]
	field := fieldName(fe.StructField())
	switch fe.Tag() {
	case "required":
		return domain.Validation(field, field+" is required")
	case "max":
		return domain.Validation(field, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
	case "email":
		return domain.Validation(field, field+" must be a valid email")
	default:
		return domain.Validation(field, field+" is invalid")
	}
}

func fieldName(structField string) string {
	switch structField {
	case "UserID":
		return "userId"
	default:
		return strings.ToLower(structField[:1]) + structField[1:]
	}
}
