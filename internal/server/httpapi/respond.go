package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
)

const maxBodyBytes = 32 << 20

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	RequestID string    `json:"request_id"`
	Error     errorBody `json:"error"`
}

// statusFor maps a stable error code onto an HTTP status.
func statusFor(code string) int {
	switch code {
	case common.CodeUnauthorized:
		return http.StatusUnauthorized
	case common.CodeNotFound, common.CodeRecipientNotFound:
		return http.StatusNotFound
	case common.CodeInvalidRequest, common.CodeDuplicateEmail, common.CodeInvalidFieldReference,
		common.CodeInvalidPosition, common.CodeInvalidFileType, common.CodeTokenExpired:
		return http.StatusBadRequest
	case common.CodeQuotaExceeded, common.CodeItemLimitExceeded:
		return http.StatusForbidden
	case common.CodeItemNotEditable, common.CodeRecipientNotRemovable, common.CodeRequestInProgress:
		return http.StatusConflict
	case common.CodeTokenAttemptsExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readJSON decodes a single JSON object, rejecting unknown fields.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %s", common.ErrInvalidRequest, err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON body", common.ErrInvalidRequest)
	}
	return nil
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := common.Code(err)
	status := statusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = common.ErrorInternal.Error()
	}
	writeJSON(w, status, errorEnvelope{
		RequestID: requestIDFrom(r.Context()),
		Error:     errorBody{Code: code, Message: msg},
	})
}
