package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// AuthorizeOptions tunes a device-authorization run.
type AuthorizeOptions struct {
	// OpenBrowser attempts to open the verification URL locally.
	// Failures are logged only.
	OpenBrowser bool
}

// Authorize drives the device-authorization flow to completion: request a
// device code, surface it to the user, poll until granted. An expired device
// code restarts the flow with a fresh code; the only ways out are a granted
// token, a terminal protocol/transport error, or context cancellation.
//
// emit reports progress; when it returns false the consumer has stopped
// listening and the flow aborts.
func (c *Client) Authorize(ctx context.Context, opts AuthorizeOptions, emit func(Event) bool) (*Token, error) {
	for {
		auth, err := c.RequestDeviceAuthorization(ctx)
		if err != nil {
			return nil, err
		}

		ok := emit(Event{
			Type:    EventInfo,
			Message: "Please visit the following URL to finish authorization.",
		})
		ok = ok && emit(Event{
			Type:    EventVerificationURL,
			Message: fmt.Sprintf("Verification URL: %s", auth.VerificationURIComplete),
			Data: map[string]any{
				"verification_url": auth.VerificationURIComplete,
				"user_code":        auth.UserCode,
			},
		})
		if !ok {
			return nil, context.Canceled
		}

		if opts.OpenBrowser {
			if err := openBrowser(auth.VerificationURIComplete); err != nil {
				slog.Warn("failed to open browser", "error", err)
			}
		}

		token, err := c.pollUntilGranted(ctx, auth, emit)
		if errors.Is(err, ErrDeviceExpired) {
			if !emit(Event{Type: EventInfo, Message: "Device code expired, restarting login..."}) {
				return nil, context.Canceled
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return token, nil
	}
}

// pollUntilGranted polls the token endpoint until the grant succeeds or a
// non-pending outcome ends the run. At most one waiting event is emitted per
// polling run, no matter how many pending responses arrive.
func (c *Client) pollUntilGranted(ctx context.Context, auth *DeviceAuthorization, emit func(Event) bool) (*Token, error) {
	interval := time.Duration(max(auth.Interval, 1)) * time.Second

	waiting := false
	for {
		token, err := c.PollDeviceToken(ctx, auth.DeviceCode)
		if err == nil {
			return token, nil
		}

		var pending *PendingError
		if !errors.As(err, &pending) {
			return nil, err
		}

		if !waiting {
			ok := emit(Event{
				Type:    EventWaiting,
				Message: fmt.Sprintf("Waiting for user authorization...: %s", pending.Description),
				Data: map[string]any{
					"error":             pending.Code,
					"error_description": pending.Description,
				},
			})
			if !ok {
				return nil, context.Canceled
			}
			waiting = true
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
