// Package upstream classifies failures of the external services raglab calls.
//
// Three classes are distinguished:
//   - UnavailableError: the service could not be reached (transport failure or timeout).
//   - StatusError: the service answered with a non-success status; the body is kept verbatim.
//   - ProtocolError: the service answered successfully but the payload could not be parsed.
//
// None of them are retried by raglab; callers surface them with their detail.
package upstream

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxBodyPreview is the number of characters of an unparseable body kept for diagnosis.
const MaxBodyPreview = 300

// UnavailableError reports a transport failure reaching a service.
type UnavailableError struct {
	Service string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s connection error: %v", e.Service, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// StatusError reports a non-success status returned by a reachable service.
// Status is the HTTP status code, or the gRPC code name for gRPC services.
type StatusError struct {
	Service    string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s %s: %s", e.Service, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %d: %s", e.Service, e.StatusCode, e.Body)
}

// ProtocolError reports a success response whose payload could not be parsed.
// Body holds at most MaxBodyPreview characters of the raw response. It is
// empty when the client library consumed the body itself.
type ProtocolError struct {
	Service string
	Body    string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Body == "" && e.Err != nil {
		return fmt.Sprintf("%s returned an unusable response: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s returned non-JSON: %s", e.Service, e.Body)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Unavailable wraps err as an UnavailableError for service.
func Unavailable(service string, err error) error {
	return &UnavailableError{Service: service, Err: err}
}

// Status builds a StatusError carrying body verbatim.
func Status(service string, code int, body string) error {
	return &StatusError{Service: service, StatusCode: code, Body: body}
}

// Protocol builds a ProtocolError, truncating body to MaxBodyPreview characters.
func Protocol(service string, body []byte, err error) error {
	return &ProtocolError{Service: service, Body: Truncate(body, MaxBodyPreview), Err: err}
}

// Truncate returns the first n characters of body. An invalid UTF-8 byte
// counts as one character; the cut never splits a multi-byte sequence.
func Truncate(body []byte, n int) string {
	end := 0
	for i := 0; i < n && end < len(body); i++ {
		_, size := utf8.DecodeRune(body[end:])
		end += size
	}
	return string(body[:end])
}

// IsUnavailable reports whether err is, or wraps, an UnavailableError.
func IsUnavailable(err error) bool {
	var target *UnavailableError
	return errors.As(err, &target)
}

// IsStatus reports whether err is, or wraps, a StatusError.
func IsStatus(err error) bool {
	var target *StatusError
	return errors.As(err, &target)
}

// IsProtocol reports whether err is, or wraps, a ProtocolError.
func IsProtocol(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

// IsUpstream reports whether err belongs to any of the upstream classes.
func IsUpstream(err error) bool {
	return IsUnavailable(err) || IsStatus(err) || IsProtocol(err)
}
