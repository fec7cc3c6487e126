package domain

import (
	"errors"
	"fmt"
	"time"
)

// Kind é o conjunto fechado de erros que sobem para quem chama.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindRateLimited
	KindConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindConflict:
		return "conflict"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error carrega só os campos do seu Kind:
//   - Validation: Field
//   - RateLimited: ResetTime, Remaining
//   - Internal: Err (causa, nunca exposta em Error())
type Error struct {
	Kind    Kind
	Message string

	Field     string
	ResetTime time.Time
	Remaining int64

	Err error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", entity, id), Err: ErrNotFound}
}

func RateLimited(resetTime time.Time, remaining int64) *Error {
	return &Error{
		Kind:      KindRateLimited,
		Message:   "rate limit exceeded",
		ResetTime: resetTime,
		Remaining: remaining,
	}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg, Err: ErrConflict}
}

// Internal esconde a causa atrás de uma mensagem genérica.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf classifica qualquer erro. Erros que não são *Error contam como Internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError converte para *Error, embrulhando como Internal quando preciso.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
