package registry

import "errors"

// NonRetryableError marks a failure that another attempt cannot fix. The
// dispatcher dead-letters the row on the first one it sees.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "permanent delivery failure"
	}
	return "permanent: " + e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// IsNonRetryable reports whether err or anything it wraps is permanent.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}
