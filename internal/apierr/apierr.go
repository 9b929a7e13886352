package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes shared by the HTTP and Telegram front ends.
const (
	CodeNotAuthenticated = "not_authenticated"
	CodeLoginRequired    = "login_required"
	CodeInvalidLevel     = "invalid_level"
	CodeUnknownStep      = "unknown_step"
	CodeNoPlan           = "no_plan"
	CodeStatusFailed     = "status_failed"
	CodeRateLimited      = "rate_limited"
	CodePlanFailed       = "plan_failed"
	CodeNoSession        = "no_session"
	CodeMissingGoal      = "missing_goal"
	CodeInvalidBody      = "invalid_body"
	CodeInternal         = "internal_error"
	CodeSessionBusy      = "session_busy"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Is matches on Code so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code != "" && t.Code == e.Code
}

var (
	ErrNotAuthenticated = New(http.StatusUnauthorized, CodeNotAuthenticated, nil)
	ErrLoginRequired    = New(http.StatusTooManyRequests, CodeLoginRequired, nil)
	ErrNoPlan           = New(http.StatusNotFound, CodeNoPlan, nil)
)

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the code carried by err, or fallback.
func CodeOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return fallback
}
