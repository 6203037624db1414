package oauth

import (
	"errors"
	"fmt"
)

// ErrUnauthorized marks a refresh attempt the provider rejected outright
// (HTTP 401/403): the credential itself is invalid, not the request.
var ErrUnauthorized = errors.New("oauth credentials rejected")

// ErrDeviceExpired marks a device code the user did not approve in time.
// The device flow restarts from a fresh authorization when it sees this.
var ErrDeviceExpired = errors.New("device code expired")

// PendingError is a poll response that means "keep waiting"; commonly
// authorization_pending while the user has not finished in the browser.
type PendingError struct {
	Code        string
	Description string
}

func (e *PendingError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization pending: %s (%s)", e.Description, e.Code)
	}
	return fmt.Sprintf("authorization pending (%s)", e.Code)
}
