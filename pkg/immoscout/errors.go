package immoscout

import (
	"errors"
	"fmt"

	"immoscoutclient/pkg/transport"
)

var (
	// ErrAPI matches every request failure reported by a Client:
	// errors.Is(err, ErrAPI).
	ErrAPI = errors.New("immoscout: api error")

	// ErrInvalidArgument marks malformed input to the URL builders.
	ErrInvalidArgument = errors.New("immoscout: invalid argument")
)

// HTTPError is a failed request. StatusCode is 0 when no HTTP status was
// received (connection failure, timeout, undecodable body).
type HTTPError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.Err }

func (e *HTTPError) Is(target error) bool { return target == ErrAPI }

func newHTTPError(cause error, format string, args ...any) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode(cause),
		Message:    fmt.Sprintf(format, args...) + ": " + cause.Error(),
		Err:        cause,
	}
}

func statusCode(err error) int {
	var sc transport.StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
