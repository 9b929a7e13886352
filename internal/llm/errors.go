package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusError is an upstream failure carrying an HTTP-equivalent status.
type StatusError struct {
	Status int
	Model  string
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: upstream status %d", e.Model, e.Status)
	}
	return fmt.Sprintf("%s: upstream status %d: %v", e.Model, e.Status, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// classify attaches a status to provider errors so retry decisions do not
// depend on which SDK produced them.
func classify(model string, err error) error {
	if err == nil {
		return nil
	}
	var se *StatusError
	if errors.As(err, &se) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &StatusError{Status: gerr.Code, Model: model, Err: err}
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		return &StatusError{Status: httpStatus(st.Code()), Model: model, Err: err}
	}
	return err
}

func httpStatus(c codes.Code) int {
	switch c {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether err is worth another attempt on the same
// model: rate limits, capacity, timeouts and transport failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return true
		}
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"overloaded", "network", "fetch"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
