// Package services defines the business logic for inbound message processing
// and outbound re-delivery. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into webhook-log statuses or HTTP status codes is performed by the caller.
package services

import "errors"

var (
	// ErrUnknownSender indicates the inbound phone number has no matching
	// User record. Unknown senders are a hard failure, never
	// auto-provisioned, so unauthenticated numbers cannot generate
	// arbitrary generation cost.
	ErrUnknownSender = errors.New("unknown sender: no user registered for this number")

	// ErrEmptyMessage is returned when an inbound payload carries neither
	// body text nor media.
	ErrEmptyMessage = errors.New("message has no text or media")
)
