package openapi

import "errors"

var (
	// ErrInvalidURL is returned for a malformed base or candidate URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrUpstreamUnreachable is returned when every candidate and round failed.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	// ErrInvalidSpec marks a body that is not a usable OpenAPI document.
	ErrInvalidSpec = errors.New("invalid openapi spec")
	// ErrMissingParameter is returned when a path token has no argument.
	ErrMissingParameter = errors.New("missing required path parameter")
	// ErrInvalidArguments is returned for arguments of the wrong shape.
	ErrInvalidArguments = errors.New("invalid arguments")
	// ErrTransport marks a network-level failure during invocation.
	ErrTransport = errors.New("transport error")
)
