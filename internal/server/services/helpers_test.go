package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/envelopekeeper/internal/logging"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/auth"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/config"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/envelopeid"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/quota"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *memory.Store
	cfg       *config.Config
	plans     *quota.StaticPlans
	envelopes *EnvelopeService
	twoFactor *TwoFactorService
	auth      *AuthService
	documents *DocumentService
	owner     models.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	cfg := &config.Config{}
	cfg.LoadDefaults()

	ids, err := envelopeid.NewTranslator(cfg.IDAlphabet)
	require.NoError(t, err)

	plans := quota.NewStaticPlans(quota.Limits{UnitsPerPeriod: quota.Unlimited, MaxItemsPerEnvelope: cfg.MaxItemsPerEnvelope})
	audit := NewAuditRecorder(store)
	envelopes := NewEnvelopeService(store, store, ids, plans, audit, logging.Nop{})
	presign := auth.NewPresignService([]byte(cfg.SecretKey), cfg.PresignDefaultTTL)

	return &fixture{
		store:     store,
		cfg:       cfg,
		plans:     plans,
		envelopes: envelopes,
		twoFactor: NewTwoFactorService(store, store, envelopes, audit, cfg, logging.Nop{}),
		auth:      NewAuthService(store, store, presign, envelopes, logging.Nop{}),
		documents: NewDocumentService(store, store, cfg, logging.Nop{}),
		owner:     models.Principal{UserID: "user-1", CredentialID: "cred-1"},
	}
}

func intp(v int) *int { return &v }

func strp(v string) *string { return &v }

// seedPDF stores a PDF document with the given page count and returns its id.
func (f *fixture) seedPDF(t *testing.T, pages int) string {
	t.Helper()
	d := &models.DocumentData{
		ID:        uuid.NewString(),
		Type:      models.DocumentDataBytes64,
		Data:      "JVBERi0xLjQK",
		MimeType:  models.MimeTypePDF,
		PageCount: pages,
		UserID:    "user-1",
	}
	require.NoError(t, f.store.DocumentData(f.store.Conn()).Create(context.Background(), d))
	return d.ID
}

func signer(email string, fields ...CreateFieldInput) CreateRecipientInput {
	return CreateRecipientInput{
		Email:  email,
		Name:   email,
		Role:   models.RoleSigner,
		Fields: fields,
	}
}

func sigField(itemIndex int) CreateFieldInput {
	return CreateFieldInput{
		ItemIndex: intp(itemIndex),
		Type:      models.FieldSignature,
		Page:      1,
		PositionX: 0.1,
		PositionY: 0.1,
		Width:     0.2,
		Height:    0.05,
	}
}

// createDraft creates a one-item DOCUMENT envelope with the given recipients.
func (f *fixture) createDraft(t *testing.T, recipients ...CreateRecipientInput) *models.EnvelopeGraph {
	t.Helper()
	g, err := f.envelopes.Create(context.Background(), f.owner, CreateEnvelopeInput{
		Type:       models.EnvelopeTypeDocument,
		Title:      "Contract",
		Items:      []CreateItemInput{{Title: "A.pdf", DocumentDataID: f.seedPDF(t, 3)}},
		Recipients: recipients,
	})
	require.NoError(t, err)
	return g
}

func ref(g *models.EnvelopeGraph) EnvelopeRef {
	return EnvelopeRef{ID: g.Envelope.ID}
}

// patchRecipient rewrites a stored recipient, bypassing the service.
func (f *fixture) patchRecipient(t *testing.T, envelopeID, email string, mut func(r *models.Recipient)) *models.Recipient {
	t.Helper()
	ctx := context.Background()
	repo := f.store.Recipients(f.store.Conn())
	rs, err := repo.ListByEnvelope(ctx, envelopeID)
	require.NoError(t, err)
	for _, r := range rs {
		if r.Email == email {
			mut(r)
			require.NoError(t, repo.Update(ctx, r))
			return r
		}
	}
	t.Fatalf("recipient %s not found", email)
	return nil
}

func auditTypes(t *testing.T, f *fixture, envelopeID string) []models.AuditLogType {
	t.Helper()
	entries, err := f.store.AuditLogs(f.store.Conn()).ListByEnvelope(context.Background(), envelopeID)
	require.NoError(t, err)
	var out []models.AuditLogType
	for _, e := range entries {
		out = append(out, e.Type)
	}
	return out
}
