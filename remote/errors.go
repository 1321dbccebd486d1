package remote

import (
	"fmt"
	"net/http"

	"emperror.dev/errors"
)

// RequestError is an error response returned by the API.
type RequestError struct {
	response  *http.Response
	Message   string `json:"error"`
	RequestID string `json:"request_id"`
}

// IsRequestError checks if the given error is of the RequestError type.
func IsRequestError(err error) bool {
	var rerr *RequestError
	if err == nil {
		return false
	}
	return errors.As(err, &rerr)
}

// AsRequestError transforms the error into a RequestError if it is currently
// one, checking the wrap status from the other error handlers. If the error
// is not a RequestError nil is returned.
func AsRequestError(err error) *RequestError {
	if err == nil {
		return nil
	}
	var rerr *RequestError
	if errors.As(err, &rerr) {
		return rerr
	}
	return nil
}

// Error returns the error response in a string form that can be more easily
// consumed.
func (re *RequestError) Error() string {
	msg := re.Message
	if msg == "" {
		msg = http.StatusText(re.StatusCode())
	}
	return fmt.Sprintf("Error response from API: %s (HTTP/%d)", msg, re.StatusCode())
}

// StatusCode returns the status code of the response.
func (re *RequestError) StatusCode() int {
	if re.response == nil {
		return 0
	}
	return re.response.StatusCode
}
