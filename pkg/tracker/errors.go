package tracker

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestFailed is matched by every non-2xx tracker response.
	ErrRequestFailed = errors.New("tracker request failed")

	// ErrMalformedResponse is returned when a successful response cannot be decoded.
	ErrMalformedResponse = errors.New("malformed tracker response")
)

// RequestError describes a non-2xx tracker response.
type RequestError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: tracker returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Is makes errors.Is(err, ErrRequestFailed) hold for any *RequestError.
func (e *RequestError) Is(target error) bool {
	return target == ErrRequestFailed
}
