// Package errors provides standardized error handling for the agent.
//
// # Error Classification
//
// Internal failures are classified into three classes so callers can decide
// whether to retry:
//
//   - Transient: adapter connection drops, missed heartbeats, sink outages
//   - Invalid: malformed input and request errors
//   - Fatal: missing or unusable configuration
//
// Wrap errors with component context using the standard format
// "component.method: action failed: %w":
//
//	if err := conn.dial(ctx); err != nil {
//	    return errors.WrapTransient(err, "Connection", "Run", "dial adapter")
//	}
//
// # Request Errors
//
// Query and asset operations fail with a RequestError carrying one of the
// protocol error codes (OUT_OF_RANGE, INVALID_REQUEST, NO_DEVICE,
// ASSET_NOT_FOUND, DUPLICATE_ASSET). Validation runs before any store
// mutation, so a RequestError never leaves partial state behind.
//
//	if _, err := engine.Sample(req); errors.Is(err, errors.ErrOutOfRange) {
//	    // report the code to the client
//	}
//
// CodeOf and MessageOf extract the client-facing parts for rendering.
package errors
