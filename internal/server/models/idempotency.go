package models

import "time"

// IdempotencyRecord is a stored response replayed for a repeated
// Idempotency-Key from the same credential on the same endpoint. A record
// without a response status is a reservation held by a request still running.
type IdempotencyRecord struct {
	CredentialID   string
	Key            string
	Endpoint       string
	ResponseStatus int
	ResponseBody   []byte
	CreatedAt      time.Time
}

// Pending reports whether the first request for the key has not finished.
func (r *IdempotencyRecord) Pending() bool {
	return r.ResponseStatus == 0
}
