package client

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteProtocol matches any error reported by the server
	ErrRemoteProtocol = errors.New("remote protocol error")
	// ErrResponseTooLarge is returned when a reply exceeds the configured size limit
	ErrResponseTooLarge = errors.New("response too large")
	// ErrNullResult is returned when the envelope carries neither a result nor an error
	ErrNullResult = errors.New("result is null")
)

// RemoteProtocolError is an error object returned by the server, either in the
// RPC envelope or as a per-request error string.
type RemoteProtocolError struct {
	Method  string
	Code    int
	Message string
	Data    interface{}
}

func (e *RemoteProtocolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: server error %d: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: server error: %s", e.Method, e.Message)
}

func (e *RemoteProtocolError) Is(target error) bool { return target == ErrRemoteProtocol }

// serverErrors converts per-request error strings into RemoteProtocolErrors.
func serverErrors(method string, resp *MultiServerResponse) error {
	if resp == nil {
		return nil
	}
	var errs []error
	for i, r := range resp.Responses {
		if r.Error == "" {
			continue
		}
		errs = append(errs, &RemoteProtocolError{
			Method:  method,
			Message: r.Error,
			Data:    i,
		})
	}
	return errors.Join(errs...)
}
