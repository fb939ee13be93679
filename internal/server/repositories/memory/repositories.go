package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/apitokens"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/auditlogs"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/documentdata"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/envelopes"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/fields"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/idempotency"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/items"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/quotas"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/recipients"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/twofactortokens"
)

func cp[T any](v *T) *T {
	c := *v
	return &c
}

// byCreation lists the values of m matching keep in insertion order.
func byCreation[T any](st *state, m map[string]*T, id func(*T) string, keep func(*T) bool) []*T {
	var out []*T
	for _, v := range m {
		if keep(v) {
			out = append(out, cp(v))
		}
	}
	slices.SortFunc(out, func(a, b *T) int { return cmp.Compare(st.created[id(a)], st.created[id(b)]) })
	return out
}

func (s *Store) Envelopes(db dbx.DBTX) envelopes.Repository {
	return &envelopeRepo{s, db}
}

func (s *Store) Items(db dbx.DBTX) items.Repository {
	return &itemRepo{s, db}
}

func (s *Store) Recipients(db dbx.DBTX) recipients.Repository {
	return &recipientRepo{s, db}
}

func (s *Store) Fields(db dbx.DBTX) fields.Repository {
	return &fieldRepo{s, db}
}

func (s *Store) DocumentData(db dbx.DBTX) documentdata.Repository {
	return &documentRepo{s, db}
}

func (s *Store) AuditLogs(db dbx.DBTX) auditlogs.Repository {
	return &auditRepo{s, db}
}

func (s *Store) TwoFactorTokens(db dbx.DBTX) twofactortokens.Repository {
	return &tokenRepo{s, db}
}

func (s *Store) Quotas(db dbx.DBTX) quotas.Repository {
	return &quotaRepo{s, db}
}

func (s *Store) ApiTokens(db dbx.DBTX) apitokens.Repository {
	return &credentialRepo{s, db}
}

func (s *Store) Idempotency(db dbx.DBTX) idempotency.Repository {
	return &idempotencyRepo{s, db}
}

type envelopeRepo struct {
	s  *Store
	db dbx.DBTX
}

func (r *envelopeRepo) NextLegacyID(_ context.Context, kind models.EnvelopeType) (int64, error) {
	defer r.s.enter(r.db)()
	if err := r.s.write(); err != nil {
		return 0, err
	}
	r.s.st.counters[kind]++
	return r.s.st.counters[kind], nil
}

func (r *envelopeRepo) Create(_ context.Context, e *models.Envelope) error {
	defer r.s.enter(r.db)()
	if err := r.s.write(); err != nil {
		return err
	}
	st := r.s.st
	for _, x := range st.envelopes {
		if x.SecondaryID == e.SecondaryID {
			return common.ErrInvalidRequest
		}
	}
	st.envelopes[e.ID] = cp(e)
	st.touch(e.ID)
	return nil
}

func (r *envelopeRepo) GetByID(_ context.Context, id string) (*models.Envelope, error) {
	defer r.s.enter(r.db)()
	e, ok := r.s.st.envelopes[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cp(e), nil
}

func (r *envelopeRepo) GetBySecondaryID(_ context.Context, secondaryID string) (*models.Envelope, error) {
	defer r.s.enter(r.db)()
	for _, e := range r.s.st.envelopes {
		if e.SecondaryID == secondaryID {
			return cp(e), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *envelopeRepo) GetForUpdate(ctx context.Context, id string) (*models.Envelope, error) {
	return r.GetByID(ctx, id)
}

func (r *envelopeRepo) Update(_ context.Context, e *models.Envelope) error {
	defer r.s.enter(r.db)()
	if _, ok := r.s.st.envelopes[e.ID]; !ok {
		return common.ErrorNotFound
	}
	if err := r.s.write(); err != nil {
		return err
	}
	r.s.st.envelopes[e.ID] = cp(e)
	return nil
}

func (r *envelopeRepo) UpsertMeta(_ context.Context, m *models.DocumentMeta) error {
	defer r.s.enter(r.db)()
	if err := r.s.write(); err != nil {
		return err
	}
	r.s.st.metas[m.EnvelopeID] = cp(m)
	return nil
}

func (r *envelopeRepo) GetMeta(_ context.Context, envelopeID string) (*models.DocumentMeta, error) {
	defer r.s.enter(r.db)()
	m, ok := r.s.st.metas[envelopeID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cp(m), nil
}

func (r *envelopeRepo) CreateAttachment(_ context.Context, a *models.Attachment) error {
	defer r.s.enter(r.db)()
	if err := r.s.write(); err != nil {
		return err
	}
	r.s.st.attachments[a.ID] = cp(a)
	r.s.st.touch(a.ID)
	return nil
}

func (r *envelopeRepo) ListAttachments(_ context.Context, envelopeID string) ([]*models.Attachment, error) {
	defer r.s.enter(r.db)()
	return byCreation(r.s.st, r.s.st.attachments,
		func(a *models.Attachment) string { return a.ID },
		func(a *models.Attachment) bool { return a.EnvelopeID == envelopeID }), nil
}

type itemRepo struct {
	s  *Store
	db dbx.DBTX
}

func (r *itemRepo) Create(_ context.Context, it *models.EnvelopeItem) error {
	defer r.s.enter(r.db)()
	if err := r.s.write(); err != nil {
		return err
	}
	r.s.st.items[it.ID] = cp(it)
	r.s.st.touch(it.ID)
	return nil
}

func (r *itemRepo) ListByEnvelope(_ context.Context, envelopeID string) ([]*models.EnvelopeItem, error) {
	defer r.s.enter(r.db)()
	out := byCreation(r.s.st, r.s.st.items,
		func(it *models.EnvelopeItem) string { return it.ID },
		func(it *models.EnvelopeItem) bool { return it.EnvelopeID == envelopeID })
	slices.SortStableFunc(out, func(a, b *models.EnvelopeItem) int { return cmp.Compare(a.Order, b.Order) })
	return out, nil
}

func (r *itemRepo) EnvelopeIDsByDocumentData(_ context.Context, dataID string) ([]string, error) {
	defer r.s.enter(r.db)()
	var out []string
	for _, it := range r.s.st.items {
		if it.DocumentDataID == dataID && !slices.Contains(out, it.EnvelopeID) {
			out = append(out, it.EnvelopeID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (r *itemRepo) Update(_ context.Context, it *models.EnvelopeItem) error {
	defer r.s.enter(r.db)()
	cur, ok := r.s.st.items[it.ID]
	if !ok || cur.EnvelopeID != it.EnvelopeID {
		return common.ErrorNotFound
	}
	if err := r.s.write(); err != nil {
		return err
	}
	next := cp(cur)
	next.Title, next.Order = it.Title, it.Order
	r.s.st.items[it.ID] = next
	return nil
}

func (r *itemRepo) Delete(_ context.Context, envelopeID, id string) error {
	defer r.s.enter(r.db)()
	cur, ok := r.s.st.items[id]
	if !ok || cur.EnvelopeID != envelopeID {
		return common.ErrorNotFound
	}
	if err := r.s.write(); err != nil {
		return err
	}
	delete(r.s.st.items, id)
	return nil
}

type recipientRepo struct {
	s  *Store
	db dbx.DBTX
}

// emailTaken is checked right away outside transactions. Inside one the check
// waits for commit, see checkDeferred.
func (r *recipientRepo) emailTaken(envelopeID, email, except string) bool {
	if h, ok := r.db.(handle); ok && h.inTx {
		return false
	}
	for _, x := range r.s.st.recipients {
		if x.EnvelopeID == envelopeID && x.ID != except && x.Email == email {
			return true
		}
	}
	return false
}

func (r *recipientRepo) Create(_ context.Context, rc *models.Recipient) error {
	defer r.s.enter(r.db)()
	if r.emailTaken(rc.EnvelopeID, rc.Email, rc.ID) {
		return common.ErrDuplicateEmail
	}
	if err := r.s.write(); err != nil {
		return err
	}
	c := cp(rc)
	c.ClientID = ""
	r.s.st.recipients[rc.ID] = c
	r.s.st.touch(rc.ID)
	return nil
}

func (r *recipientRepo) ListByEnvelope(_ context.Context, envelopeID string) ([]*models.Recipient, error) {
	defer r.s.enter(r.db)()
	return byCreation(r.s.st, r.s.st.recipients,
		func(x *models.Recipient) string { return x.ID },
		func(x *models.Recipient) bool { return x.EnvelopeID == envelopeID }), nil
}

func (r *recipientRepo) Update(_ context.Context, rc *models.Recipient) error {
	defer r.s.enter(r.db)()
	cur, ok := r.s.st.recipients[rc.ID]
	if !ok || cur.EnvelopeID != rc.EnvelopeID {
		return common.ErrRecipientNotFound
	}
	if r.emailTaken(rc.EnvelopeID, rc.Email, rc.ID) {
		return common.ErrDuplicateEmail
	}
	if err := r.s.write(); err != nil {
		return err
	}
	c := cp(rc)
	c.ClientID = ""
	r.s.st.recipients[rc.ID] = c
	return nil
}

func (r *recipientRepo) Delete(_ context.Context, envelopeID, id string) error {
	defer r.s.enter(r.db)()
	cur, ok := r.s.st.recipients[id]
	if !ok || cur.EnvelopeID != envelopeID {
		return common.ErrRecipientNotFound
	}
	if err := r.s.write(); err != nil {
		return err
	}
	delete(r.s.st.recipients, id)
	return nil
}

type fieldRepo struct {
	s  *Store
	db dbx.DBTX
}

func (r *fieldRepo) Create(_ context.Context, f *models.Field) error {
	defer r.s.enter(r.db)()
	if err := r.s.write(); err != nil {
		return err
	}
	r.s.st.fields[f.ID] = cp(f)
	r.s.st.touch(f.ID)
	return nil
}

func (r *fieldRepo) ListByEnvelope(_ context.Context, envelopeID string) ([]*models.Field, error) {
	defer r.s.enter(r.db)()
	return byCreation(r.s.st, r.s.st.fields,
		func(f *models.Field) string { return f.ID },
		func(f *models.Field) bool { return f.EnvelopeID == envelopeID }), nil
}

func (r *fieldRepo) Update(_ context.Context, f *models.Field) error {
	defer r.s.enter(r.db)()
	cur, ok := r.s.st.fields[f.ID]
	if !ok || cur.EnvelopeID != f.EnvelopeID {
		return common.ErrorNotFound
	}
	if err := r.s.write(); err != nil {
		return err
	}
	r.s.st.fields[f.ID] = cp(f)
	return nil
}

func (r *fieldRepo) Delete(_ context.Context, envelopeID, id string) error {
	defer r.s.enter(r.db)()
	cur, ok := r.s.st.fields[id]
	if !ok || cur.EnvelopeID != envelopeID {
		return common.ErrorNotFound
	}
	if err := r.s.write(); err != nil {
		return err
	}
	delete(r.s.st.fields, id)
	return nil
}

func (r *fieldRepo) deleteWhere(match func(*models.Field) bool) (int64, error) {
	if err := r.s.write(); err != nil {
		return 0, err
	}
	var n int64
	for id, f := range r.s.st.fields {
		if match(f) {
			delete(r.s.st.fields, id)
			n++
		}
	}
	return n, nil
}

func (r *fieldRepo) DeleteByItem(_ context.Context, envelopeID, itemID string) (int64, error) {
	defer r.s.enter(r.db)()
	return r.deleteWhere(func(f *models.Field) bool { return f.EnvelopeID == envelopeID && f.EnvelopeItemID == itemID })
}

func (r *fieldRepo) DeleteByRecipient(_ context.Context, envelopeID, recipientID string) (int64, error) {
	defer r.s.enter(r.db)()
	return r.deleteWhere(func(f *models.Field) bool { return f.EnvelopeID == envelopeID && f.RecipientID == recipientID })
}

type documentRepo struct {
	s  *Store
	db dbx.DBTX
}

func (r *documentRepo) Create(_ context.Context, d *models.DocumentData) error {
	defer r.s.enter(r.db)()
	if err := r.s.write(); err != nil {
		return err
	}
	r.s.st.documents[d.ID] = cp(d)
	return nil
}

func (r *documentRepo) GetByID(_ context.Context, id string) (*models.DocumentData, error) {
	defer r.s.enter(r.db)()
	d, ok := r.s.st.documents[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cp(d), nil
}

// GetForUpdate and GetForShare need no extra locking: transactions already
// hold the store lock.
func (r *documentRepo) GetForUpdate(ctx context.Context, id string) (*models.DocumentData, error) {
	return r.GetByID(ctx, id)
}

func (r *documentRepo) GetForShare(ctx context.Context, id string) (*models.DocumentData, error) {
	return r.GetByID(ctx, id)
}

func (r *documentRepo) SetPageCount(_ context.Context, id string, pages int) error {
	defer r.s.enter(r.db)()
	d, ok := r.s.st.documents[id]
	if !ok {
		return common.ErrorNotFound
	}
	if err := r.s.write(); err != nil {
		return err
	}
	next := cp(d)
	next.PageCount = pages
	r.s.st.documents[id] = next
	return nil
}

type auditRepo struct {
	s  *Store
	db dbx.DBTX
}

func (r *auditRepo) Append(_ context.Context, e *models.AuditLogEntry) error {
	defer r.s.enter(r.db)()
	if err := r.s.write(); err != nil {
		return err
	}
	r.s.st.audit = append(r.s.st.audit, cp(e))
	return nil
}

func (r *auditRepo) ListByEnvelope(_ context.Context, envelopeID string) ([]*models.AuditLogEntry, error) {
	defer r.s.enter(r.db)()
	var out []*models.AuditLogEntry
	for _, e := range r.s.st.audit {
		if e.EnvelopeID == envelopeID {
			out = append(out, cp(e))
		}
	}
	return out, nil
}

type tokenRepo struct {
	s  *Store
	db dbx.DBTX
}

func (r *tokenRepo) Create(_ context.Context, t *models.SigningTwoFactorToken) error {
	defer r.s.enter(r.db)()
	if err := r.s.write(); err != nil {
		return err
	}
	r.s.st.tokens[t.ID] = cp(t)
	return nil
}

func (r *tokenRepo) GetByID(_ context.Context, id string) (*models.SigningTwoFactorToken, error) {
	defer r.s.enter(r.db)()
	t, ok := r.s.st.tokens[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cp(t), nil
}

func (r *tokenRepo) GetForUpdate(ctx context.Context, id string) (*models.SigningTwoFactorToken, error) {
	return r.GetByID(ctx, id)
}

func (r *tokenRepo) RegisterFailure(_ context.Context, id string) (int, error) {
	defer r.s.enter(r.db)()
	t, ok := r.s.st.tokens[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	if err := r.s.write(); err != nil {
		return 0, err
	}
	next := cp(t)
	next.Attempts++
	r.s.st.tokens[id] = next
	return next.Attempts, nil
}

func (r *tokenRepo) MarkUsed(_ context.Context, id string, at time.Time) error {
	defer r.s.enter(r.db)()
	t, ok := r.s.st.tokens[id]
	if !ok || t.UsedAt != nil || t.RevokedAt != nil {
		return common.ErrInvalidToken
	}
	if err := r.s.write(); err != nil {
		return err
	}
	next := cp(t)
	next.UsedAt = &at
	r.s.st.tokens[id] = next
	return nil
}

func (r *tokenRepo) RevokeOutstanding(_ context.Context, recipientID string, at time.Time) (int64, error) {
	defer r.s.enter(r.db)()
	if err := r.s.write(); err != nil {
		return 0, err
	}
	var n int64
	for id, t := range r.s.st.tokens {
		if t.RecipientID == recipientID && t.UsedAt == nil && t.RevokedAt == nil {
			next := cp(t)
			next.RevokedAt = &at
			r.s.st.tokens[id] = next
			n++
		}
	}
	return n, nil
}

type quotaRepo struct {
	s  *Store
	db dbx.DBTX
}

func (r *quotaRepo) Consume(_ context.Context, owner string, period time.Time, limit int) (int, error) {
	defer r.s.enter(r.db)()
	k := quotaKey{owner, period.Unix()}
	used := r.s.st.quota[k]
	if limit >= 0 && used >= limit {
		return 0, common.ErrQuotaExceeded
	}
	if err := r.s.write(); err != nil {
		return 0, err
	}
	r.s.st.quota[k] = used + 1
	return used + 1, nil
}

func (r *quotaRepo) Used(_ context.Context, owner string, period time.Time) (int, error) {
	defer r.s.enter(r.db)()
	return r.s.st.quota[quotaKey{owner, period.Unix()}], nil
}

type credentialRepo struct {
	s  *Store
	db dbx.DBTX
}

func (r *credentialRepo) Create(_ context.Context, c *models.ApiCredential) error {
	defer r.s.enter(r.db)()
	if err := r.s.write(); err != nil {
		return err
	}
	r.s.st.credentials[c.ID] = cp(c)
	return nil
}

func (r *credentialRepo) GetByTokenHash(_ context.Context, hash string) (*models.ApiCredential, error) {
	defer r.s.enter(r.db)()
	for _, c := range r.s.st.credentials {
		if c.TokenHash == hash {
			return cp(c), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *credentialRepo) GetByID(_ context.Context, id string) (*models.ApiCredential, error) {
	defer r.s.enter(r.db)()
	c, ok := r.s.st.credentials[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cp(c), nil
}

type idempotencyRepo struct {
	s  *Store
	db dbx.DBTX
}

func (r *idempotencyRepo) Get(_ context.Context, credentialID, key, endpoint string) (*models.IdempotencyRecord, error) {
	defer r.s.enter(r.db)()
	rec, ok := r.s.st.idempotency[idemKey{credentialID, key, endpoint}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cp(rec), nil
}

func (r *idempotencyRepo) Reserve(_ context.Context, rec *models.IdempotencyRecord, staleBefore time.Time) (bool, error) {
	defer r.s.enter(r.db)()
	k := idemKey{rec.CredentialID, rec.Key, rec.Endpoint}
	if cur, ok := r.s.st.idempotency[k]; ok && (!cur.Pending() || !cur.CreatedAt.Before(staleBefore)) {
		return false, nil
	}
	if err := r.s.write(); err != nil {
		return false, err
	}
	c := cp(rec)
	c.ResponseStatus = 0
	c.ResponseBody = nil
	r.s.st.idempotency[k] = c
	return true, nil
}

func (r *idempotencyRepo) Complete(_ context.Context, rec *models.IdempotencyRecord) error {
	defer r.s.enter(r.db)()
	k := idemKey{rec.CredentialID, rec.Key, rec.Endpoint}
	cur, ok := r.s.st.idempotency[k]
	if !ok || !cur.Pending() {
		return common.ErrorNotFound
	}
	if err := r.s.write(); err != nil {
		return err
	}
	next := cp(cur)
	next.ResponseStatus = rec.ResponseStatus
	next.ResponseBody = append([]byte(nil), rec.ResponseBody...)
	r.s.st.idempotency[k] = next
	return nil
}

func (r *idempotencyRepo) Release(_ context.Context, credentialID, key, endpoint string) error {
	defer r.s.enter(r.db)()
	k := idemKey{credentialID, key, endpoint}
	if cur, ok := r.s.st.idempotency[k]; !ok || !cur.Pending() {
		return nil
	}
	if err := r.s.write(); err != nil {
		return err
	}
	delete(r.s.st.idempotency, k)
	return nil
}
