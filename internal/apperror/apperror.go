// Package apperror описывает типизированные ошибки ядра заказов.
// Вызывающий код ветвится по Kind, а не по тексту.
package apperror

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindValidation              Kind = "validation"
	KindNotFound                Kind = "not_found"
	KindInvalidTransition       Kind = "invalid_transition"
	KindClaimAlreadyAssigned    Kind = "already_assigned"
	KindClaimNotEligible        Kind = "not_eligible"
	KindForbidden               Kind = "forbidden"
	KindCollaboratorTimeout     Kind = "collaborator_timeout"
	KindCollaboratorUnavailable Kind = "collaborator_unavailable"
	KindInternal                Kind = "internal"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string

	// Для KindInvalidTransition: текущий статус и отклонённое событие.
	State string
	Event string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Kind == KindInvalidTransition {
		fmt.Fprintf(&b, " (state=%s event=%s)", e.State, e.Event)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NotFound(op, what string, err error) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: what + " not found", Err: err}
}

func InvalidTransition(op, state, event, reason string) *Error {
	return &Error{Kind: KindInvalidTransition, Op: op, State: state, Event: event, Message: reason}
}

func AlreadyAssigned(op string) *Error {
	return &Error{Kind: KindClaimAlreadyAssigned, Op: op, Message: "booking is no longer pending"}
}

func NotEligible(op string, err error) *Error {
	return &Error{Kind: KindClaimNotEligible, Op: op, Message: "provider is not eligible for the job", Err: err}
}

func Forbidden(op, format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Collaborator превращает ошибку внешней зависимости в timeout или unavailable.
// Уже типизированные ошибки возвращаются как есть.
func Collaborator(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	kind := KindCollaboratorUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindCollaboratorTimeout
	}
	return &Error{Kind: kind, Op: op, Message: name, Err: err}
}

// KindOf возвращает вид ошибки; нетипизированные считаются internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
