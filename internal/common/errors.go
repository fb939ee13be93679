package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("unknown error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors.
	ErrInvalidRequest = errors.New("invalid request")

	// Plan ceilings.
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrItemLimitExceeded = errors.New("item limit exceeded")

	// Structural guards.
	ErrItemNotEditable        = errors.New("envelope items are not editable")
	ErrRecipientNotRemovable  = errors.New("recipient cannot be removed")

	// A request with the same idempotency key is still running.
	ErrRequestInProgress = errors.New("request with this idempotency key is in progress")
	ErrEnvelopeNotEditable    = subKind("envelope is not editable", ErrInvalidRequest)
	ErrInvalidStateTransition = subKind("invalid status transition", ErrInvalidRequest)

	// Token lifecycle errors.
	ErrInvalidToken          = subKind("invalid token", ErrorUnauthorized)
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenAttemptsExceeded = errors.New("token attempts exceeded")

	// Refinements surfaced by individual operations.
	ErrDuplicateEmail        = subKind("duplicate recipient email", ErrInvalidRequest)
	ErrInvalidFieldReference = subKind("invalid field reference", ErrInvalidRequest)
	ErrInvalidPosition       = subKind("invalid field position", ErrInvalidRequest)
	ErrInvalidFileType       = subKind("invalid file type", ErrInvalidRequest)
	ErrRecipientNotFound     = subKind("recipient not found", ErrorNotFound)
)

// kindError is a sentinel that also matches a broader parent sentinel, so
// errors.Is(ErrDuplicateEmail, ErrInvalidRequest) holds.
type kindError struct {
	msg    string
	parent error
}

func subKind(msg string, parent error) error {
	return &kindError{msg: msg, parent: parent}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.parent }

// Stable error codes returned to callers.
const (
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeNotFound              = "NOT_FOUND"
	CodeRecipientNotFound     = "RECIPIENT_NOT_FOUND"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeDuplicateEmail        = "DUPLICATE_EMAIL"
	CodeInvalidFieldReference = "INVALID_FIELD_REFERENCE"
	CodeInvalidPosition       = "INVALID_POSITION"
	CodeInvalidFileType       = "INVALID_FILE_TYPE"
	CodeQuotaExceeded         = "QUOTA_EXCEEDED"
	CodeItemLimitExceeded     = "ITEM_LIMIT_EXCEEDED"
	CodeItemNotEditable       = "ITEM_NOT_EDITABLE"
	CodeRecipientNotRemovable = "RECIPIENT_NOT_REMOVABLE"
	CodeTokenExpired          = "TOKEN_EXPIRED"
	CodeTokenAttemptsExceeded = "TOKEN_ATTEMPTS_EXCEEDED"
	CodeRequestInProgress     = "IDEMPOTENCY_IN_PROGRESS"
	CodeUnknown               = "UNKNOWN_ERROR"
)

// codeTable is ordered from the most specific sentinel to the broadest one.
var codeTable = []struct {
	err  error
	code string
}{
	{ErrDuplicateEmail, CodeDuplicateEmail},
	{ErrInvalidFieldReference, CodeInvalidFieldReference},
	{ErrInvalidPosition, CodeInvalidPosition},
	{ErrInvalidFileType, CodeInvalidFileType},
	{ErrRecipientNotFound, CodeRecipientNotFound},
	{ErrInvalidToken, CodeUnauthorized},
	{ErrorUnauthorized, CodeUnauthorized},
	{ErrorNotFound, CodeNotFound},
	{ErrQuotaExceeded, CodeQuotaExceeded},
	{ErrItemLimitExceeded, CodeItemLimitExceeded},
	{ErrItemNotEditable, CodeItemNotEditable},
	{ErrRecipientNotRemovable, CodeRecipientNotRemovable},
	{ErrTokenExpired, CodeTokenExpired},
	{ErrTokenAttemptsExceeded, CodeTokenAttemptsExceeded},
	{ErrRequestInProgress, CodeRequestInProgress},
	{ErrInvalidRequest, CodeInvalidRequest},
}

// Code maps err to its stable error code. Anything unrecognised is
// reported as CodeUnknown.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codeTable {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}
