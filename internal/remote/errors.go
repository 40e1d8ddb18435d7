package remote

import (
	"errors"
	"fmt"

	"dompet/internal/session"
)

var (
	// ErrUnauthenticated means there is no usable token, or the backend rejected it.
	ErrUnauthenticated = session.ErrUnauthenticated
	// ErrNetwork matches every *NetworkError.
	ErrNetwork = errors.New("backend unreachable")
	// ErrParse means the backend answered with something that is not the expected JSON.
	ErrParse = errors.New("unparseable response")
)

// NetworkError wraps connection failures and timeouts.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ServerError is a non-2xx response other than 401.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: status %d", e.Status)
	}
	return fmt.Sprintf("server error: status %d: %s", e.Status, e.Message)
}

// IsFallback reports whether a read failing with err should be served from the mirror.
func IsFallback(err error) bool {
	var se *ServerError
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrParse) || errors.As(err, &se)
}
