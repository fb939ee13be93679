package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// envelopeRef reads the {id} path parameter. Legacy numeric ids need the
// ?kind= query parameter to pick between documents and templates.
func envelopeRef(r *http.Request) services.EnvelopeRef {
	return services.EnvelopeRef{
		ID:   chi.URLParam(r, "id"),
		Kind: models.EnvelopeType(r.URL.Query().Get("kind")),
	}
}

type presignRequest struct {
	TTLMinutes *int                `json:"ttlMinutes,omitempty"`
	EnvelopeID string              `json:"envelopeId,omitempty"`
	Kind       models.EnvelopeType `json:"kind,omitempty"`
}

type presignResponse struct {
	Token            string    `json:"token"`
	ExpiresAt        time.Time `json:"expiresAt"`
	ExpiresInSeconds int64     `json:"expiresInSeconds"`
}

type presignVerifyRequest struct {
	Token      string              `json:"token"`
	EnvelopeID string              `json:"envelopeId,omitempty"`
	Kind       models.EnvelopeType `json:"kind,omitempty"`
}

// presignRef builds the envelope reference of a presign body. A legacy id may
// carry its kind in the body or in the ?kind= query parameter.
func presignRef(r *http.Request, id string, kind models.EnvelopeType) services.EnvelopeRef {
	if kind == "" {
		kind = models.EnvelopeType(r.URL.Query().Get("kind"))
	}
	return services.EnvelopeRef{ID: id, Kind: kind}
}

type recipientsRequest struct {
	Recipients []services.RecipientInput `json:"recipients"`
}

type createItemsRequest struct {
	Items []services.CreateItemInput `json:"items"`
}

type updateItemsRequest struct {
	Items []services.ItemPatch `json:"items"`
}

type verifyTwoFactorRequest struct {
	Token string `json:"token"`
}

type uploadRequest struct {
	MimeType  string `json:"mimeType"`
	PageCount int    `json:"pageCount"`
}

type registerDocumentRequest struct {
	MimeType  string `json:"mimeType"`
	Data      string `json:"data"`
	PageCount int    `json:"pageCount"`
}

type completeUploadRequest struct {
	PageCount int `json:"pageCount"`
}

func (s *HTTPServer) issuePresign(w http.ResponseWriter, r *http.Request) {

	var req presignRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	t, err := s.auth.IssuePresign(r.Context(), principalFrom(r.Context()), req.TTLMinutes, presignRef(r, req.EnvelopeID, req.Kind))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, presignResponse{
		Token:            t.Token,
		ExpiresAt:        t.ExpiresAt,
		ExpiresInSeconds: int64(t.ExpiresAt.Sub(t.IssuedAt) / time.Second),
	})
}

func (s *HTTPServer) verifyPresign(w http.ResponseWriter, r *http.Request) {

	var req presignVerifyRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.auth.VerifyPresign(r.Context(), req.Token, presignRef(r, req.EnvelopeID, req.Kind)); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (s *HTTPServer) createEnvelope(w http.ResponseWriter, r *http.Request) {

	var in services.CreateEnvelopeInput
	if err := readJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	g, err := s.envelopes.Create(r.Context(), principalFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "Envelope created", "envelope_id", g.Envelope.ID)
	writeJSON(w, http.StatusCreated, g)
}

func (s *HTTPServer) getEnvelope(w http.ResponseWriter, r *http.Request) {
	g, err := s.envelopes.Get(r.Context(), principalFrom(r.Context()), envelopeRef(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *HTTPServer) updateEnvelope(w http.ResponseWriter, r *http.Request) {

	var in services.UpdateEnvelopeInput
	if err := readJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	g, err := s.envelopes.Update(r.Context(), principalFrom(r.Context()), envelopeRef(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *HTTPServer) deleteEnvelope(w http.ResponseWriter, r *http.Request) {
	env, err := s.envelopes.Delete(r.Context(), principalFrom(r.Context()), envelopeRef(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *HTTPServer) distributeEnvelope(w http.ResponseWriter, r *http.Request) {
	g, err := s.envelopes.Distribute(r.Context(), principalFrom(r.Context()), envelopeRef(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *HTTPServer) cancelEnvelope(w http.ResponseWriter, r *http.Request) {
	env, err := s.envelopes.Cancel(r.Context(), principalFrom(r.Context()), envelopeRef(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *HTTPServer) setRecipients(w http.ResponseWriter, r *http.Request) {

	var req recipientsRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	rs, err := s.envelopes.SetRecipients(r.Context(), principalFrom(r.Context()), envelopeRef(r), req.Recipients)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipients": rs})
}

func (s *HTTPServer) setFields(w http.ResponseWriter, r *http.Request) {

	var in services.SetFieldsInput
	if err := readJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	fs, err := s.envelopes.SetFields(r.Context(), principalFrom(r.Context()), envelopeRef(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fs})
}

func (s *HTTPServer) createItems(w http.ResponseWriter, r *http.Request) {

	var req createItemsRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	items, err := s.envelopes.CreateItems(r.Context(), principalFrom(r.Context()), envelopeRef(r), req.Items)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) updateItems(w http.ResponseWriter, r *http.Request) {

	var req updateItemsRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	items, err := s.envelopes.UpdateItems(r.Context(), principalFrom(r.Context()), envelopeRef(r), req.Items)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.envelopes.DeleteItem(r.Context(), principalFrom(r.Context()), envelopeRef(r), chi.URLParam(r, "itemId")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) recordAction(w http.ResponseWriter, r *http.Request) {

	var in services.RecipientActionInput
	if err := readJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	g, err := s.envelopes.RecordRecipientAction(r.Context(), principalFrom(r.Context()), envelopeRef(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *HTTPServer) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.envelopes.ListAuditLogs(r.Context(), principalFrom(r.Context()), envelopeRef(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": logs})
}

func (s *HTTPServer) issueTwoFactor(w http.ResponseWriter, r *http.Request) {
	issued, err := s.twoFactor.Issue(r.Context(), principalFrom(r.Context()), envelopeRef(r), chi.URLParam(r, "recipientId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

func (s *HTTPServer) getTwoFactor(w http.ResponseWriter, r *http.Request) {
	t, err := s.twoFactor.Get(r.Context(), principalFrom(r.Context()), chi.URLParam(r, "tokenId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *HTTPServer) verifyTwoFactor(w http.ResponseWriter, r *http.Request) {

	var req verifyTwoFactorRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	t, err := s.twoFactor.Verify(r.Context(), principalFrom(r.Context()), chi.URLParam(r, "tokenId"), req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *HTTPServer) registerDocument(w http.ResponseWriter, r *http.Request) {

	var req registerDocumentRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	d, err := s.documents.Register(r.Context(), principalFrom(r.Context()), req.MimeType, req.Data, req.PageCount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *HTTPServer) createUpload(w http.ResponseWriter, r *http.Request) {

	var req uploadRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	up, err := s.documents.CreateUpload(r.Context(), principalFrom(r.Context()), req.MimeType, req.PageCount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, up)
}

func (s *HTTPServer) completeUpload(w http.ResponseWriter, r *http.Request) {

	var req completeUploadRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.documents.CompleteUpload(r.Context(), principalFrom(r.Context()), chi.URLParam(r, "documentId"), req.PageCount); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) downloadURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.documents.DownloadURL(r.Context(), principalFrom(r.Context()), chi.URLParam(r, "documentId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
