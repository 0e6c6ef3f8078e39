// Package xerrors defines the error kinds the conversation core surfaces to
// callers: auth failures, not-found, invalid arguments, transport problems,
// and programmer-error invariants.
package xerrors

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", Err...) to add context;
// callers should compare with errors.Is.
var (
	// ErrAuthFailure covers AEAD tag mismatch, signature mismatch, and
	// wallet-address mismatch alike. The cause is never distinguished to
	// callers beyond this sentinel.
	ErrAuthFailure = errors.New("xmtp: could not decrypt or verify")

	// ErrNotFound covers an absent contact bundle or an envelope whose
	// conversation is unknown to the registry.
	ErrNotFound = errors.New("xmtp: not found")

	// ErrInvalidArgument covers malformed topics, unknown codecs, and
	// self-addressed sends.
	ErrInvalidArgument = errors.New("xmtp: invalid argument")

	// ErrTransport covers relay unavailability, timeouts, and stream
	// disconnects.
	ErrTransport = errors.New("xmtp: transport error")

	// ErrInvariant marks programmer error: a required private key bundle is
	// missing where the caller's own identity must supply one.
	ErrInvariant = errors.New("xmtp: invariant violation")
)
