// Package common contains shared constants, sentinel errors and small random
// helpers used across the envelope engine.
package common

// AuthorizationHeaderName carries either a long-lived API credential or a
// presign token, always in the "Bearer <token>" form.
const AuthorizationHeaderName = "Authorization"

// IdempotencyKeyHeaderName lets callers retry a mutation without applying it twice.
const IdempotencyKeyHeaderName = "Idempotency-Key"

// BearerPrefix is the scheme prefix expected in the Authorization header.
const BearerPrefix = "Bearer "
