// Package apperr defines the error kinds the bot distinguishes when talking
// back to a user: validation, not-found, conflict, external service and
// authorization failures.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed user input (PR link, score, username).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validation builds a ValidationError from a format string.
func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown student, assignment, course or submission.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// NotFound builds a NotFoundError for entity identified by key.
func NotFound(entity string, key any) error {
	return &NotFoundError{Entity: entity, Key: fmt.Sprint(key)}
}

// ConflictError reports an active submission inside the cooldown window or a
// lost optimistic-lock race.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// Conflict builds a ConflictError from a format string.
func Conflict(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// ExternalKind classifies failures of an external service.
type ExternalKind int

const (
	ExternalOther ExternalKind = iota
	ExternalNotFound
	ExternalRateLimited
	ExternalTimeout
)

func (k ExternalKind) String() string {
	switch k {
	case ExternalNotFound:
		return "not found"
	case ExternalRateLimited:
		return "rate limited"
	case ExternalTimeout:
		return "timeout"
	default:
		return "unavailable"
	}
}

// ExternalError wraps a failure of an external collaborator such as the
// GitHub API.
type ExternalError struct {
	Service string
	Kind    ExternalKind
	Err     error
}

func (e *ExternalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Service, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Kind, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// External builds an ExternalError.
func External(service string, kind ExternalKind, err error) error {
	return &ExternalError{Service: service, Kind: kind, Err: err}
}

// UnauthorizedError reports an admin-only action attempted by a non-admin.
type UnauthorizedError struct {
	UserID string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("user %s is not an administrator", e.UserID)
}

// Unauthorized builds an UnauthorizedError.
func Unauthorized(userID string) error {
	return &UnauthorizedError{UserID: userID}
}

// Is* helpers.

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var v *NotFoundError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var v *ConflictError
	return errors.As(err, &v)
}

func IsUnauthorized(err error) bool {
	var v *UnauthorizedError
	return errors.As(err, &v)
}

// ExternalKindOf returns the kind of an ExternalError in err's chain.
func ExternalKindOf(err error) (ExternalKind, bool) {
	var v *ExternalError
	if errors.As(err, &v) {
		return v.Kind, true
	}
	return 0, false
}

// NoAdminRights is the fixed reply to unauthorized admin actions.
const NoAdminRights = "⛔ You don't have administrator rights."

// UserMessage renders err as a chat reply. Known kinds get a specific,
// actionable message; anything else gets a generic apology.
func UserMessage(err error) string {
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
		ee *ExternalError
		ue *UnauthorizedError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "❌ " + ve.Msg
	case errors.As(err, &nf):
		return fmt.Sprintf("❌ %s not found.", capitalize(nf.Entity))
	case errors.As(err, &ce):
		return "⚠️ " + ce.Msg
	case errors.As(err, &ee):
		switch ee.Kind {
		case ExternalNotFound:
			return "❌ Pull request not found. Check the link and make sure the repository is public."
		case ExternalRateLimited:
			return "⏳ GitHub rate limit reached. Please try again in a few minutes."
		case ExternalTimeout:
			return "⏳ GitHub did not respond in time. Please try again."
		default:
			return "❌ Could not verify the pull request right now. Please try again later."
		}
	case errors.As(err, &ue):
		return NoAdminRights
	default:
		return "❌ Something went wrong. Please try again later."
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
