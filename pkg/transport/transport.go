// Package transport is the backend-neutral contract the API client issues
// its requests through.
package transport

import (
	"context"
	"fmt"
	"net/http"
)

// Doer sends one request per call and is safe for concurrent use.
// Implementations return *StatusError for non-2xx responses.
type Doer interface {
	Get(ctx context.Context, url string) (Response, error)
	Post(ctx context.Context, url string, body any) (Response, error)
	Close()
}

type Response interface {
	StatusCode() int
	Body() []byte
}

// StatusCoder is implemented by failures that know the HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Code int
	URL  string
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s from %s", e.Code, http.StatusText(e.Code), e.URL)
}

func (e *StatusError) StatusCode() int { return e.Code }

// CheckStatus turns a non-2xx response into a *StatusError.
func CheckStatus(url string, r Response) error {
	if c := r.StatusCode(); c < 200 || c > 299 {
		return &StatusError{Code: c, URL: url, Body: r.Body()}
	}
	return nil
}

// Buffered is a Response that owns its body, so it outlives pooled
// backend responses.
type Buffered struct {
	Status int
	Data   []byte
}

// NewBuffered copies body.
func NewBuffered(status int, body []byte) Buffered {
	return Buffered{Status: status, Data: append([]byte(nil), body...)}
}

func (b Buffered) StatusCode() int { return b.Status }
func (b Buffered) Body() []byte    { return b.Data }
