package tokensvc

import "fmt"

// ValidationError is client-caused: malformed input, an inconsistent
// locator, a nonfungible amount other than "1", and the like.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError covers an unresolvable pool locator, no matching ABI
// method, or a receipt id the gateway doesn't recognize.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func notFoundf(format string, args ...any) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// UpstreamError wraps a verbatim failure from the RPC gateway, including
// contract revert reasons.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string { return e.Message }

func upstreamErrorf(format string, args ...any) error {
	return &UpstreamError{Message: fmt.Sprintf(format, args...)}
}
