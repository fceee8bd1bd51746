package clipfeed

import (
	"errors"
	"fmt"
)

// ErrAuthRequired is a control-flow signal: the caller should route the
// user to authentication rather than treat this as a failure.
var ErrAuthRequired = errors.New("authentication required")

// ValidationError blocks a mutation before any gateway call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// GatewayError wraps any failure coming back from the record gateway.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
