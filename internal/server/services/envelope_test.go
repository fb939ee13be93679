package services

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/quota"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_TwoItemsFieldOnSecond(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.envelopes.Create(ctx, f.owner, CreateEnvelopeInput{
		Type:  models.EnvelopeTypeDocument,
		Title: "Lease",
		Items: []CreateItemInput{
			{Title: "A.pdf", DocumentDataID: f.seedPDF(t, 2)},
			{Title: "B.pdf", DocumentDataID: f.seedPDF(t, 1)},
		},
		Recipients: []CreateRecipientInput{
			signer("signer@example.com", CreateFieldInput{
				ItemTitle: "B.pdf",
				Type:      models.FieldSignature,
				Page:      1,
				PositionX: 0.1,
				PositionY: 0.1,
				Width:     0.2,
				Height:    0.05,
			}),
		},
	})
	require.NoError(t, err)

	stored, err := f.envelopes.Get(ctx, f.owner, ref(g))
	require.NoError(t, err)

	require.Len(t, stored.Items, 2)
	assert.Equal(t, "A.pdf", stored.Items[0].Title)
	assert.Equal(t, 1, stored.Items[0].Order)
	assert.Equal(t, "B.pdf", stored.Items[1].Title)
	assert.Equal(t, 2, stored.Items[1].Order)

	require.Len(t, stored.Recipients, 1)
	require.Len(t, stored.Fields, 1)
	assert.Equal(t, stored.Items[1].ID, stored.Fields[0].EnvelopeItemID)
	assert.Equal(t, stored.Recipients[0].ID, stored.Fields[0].RecipientID)

	assert.Equal(t, models.StatusDraft, stored.Envelope.Status)
	assert.Equal(t, int64(1), stored.Envelope.LegacyID)
	assert.NotEmpty(t, stored.Envelope.SecondaryID)
	assert.Equal(t, models.SigningOrderParallel, stored.Meta.SigningOrder)
	assert.Equal(t, []models.AuditLogType{models.AuditEnvelopeCreated}, auditTypes(t, f, g.Envelope.ID))
}

func TestCreate_AllOrNothingUnderInjectedFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.seedPDF(t, 2), f.seedPDF(t, 2)
	period := quota.Period(f.envelopes.clock())

	in := CreateEnvelopeInput{
		Type:  models.EnvelopeTypeDocument,
		Title: "Crash test",
		Items: []CreateItemInput{{Title: "a", DocumentDataID: a}, {Title: "b", DocumentDataID: b}},
		Recipients: []CreateRecipientInput{
			signer("one@example.com", sigField(0)),
			signer("two@example.com", sigField(1)),
		},
		Attachments: []CreateAttachmentInput{{Label: "terms", URL: "https://example.com/terms"}},
	}

	var g *models.EnvelopeGraph
	failures := 0
	for n := 0; ; n++ {
		f.store.FailAfterWrites(n)
		var err error
		g, err = f.envelopes.Create(ctx, f.owner, in)
		if err == nil {
			break
		}
		require.ErrorIs(t, err, memory.ErrInjectedFailure)
		failures++

		used, err := f.store.Quotas(f.store.Conn()).Used(ctx, f.owner.OwnerKey(), period)
		require.NoError(t, err)
		require.Zero(t, used, "quota leaked after failure at write %d", n)
		require.Less(t, n, 100)
	}
	f.store.FailAfterWrites(-1)
	assert.Greater(t, failures, 5)

	// No failed attempt left a legacy number or a row behind.
	assert.Equal(t, int64(1), g.Envelope.LegacyID)
	stored, err := f.envelopes.Get(ctx, f.owner, EnvelopeRef{ID: "1", Kind: models.EnvelopeTypeDocument})
	require.NoError(t, err)
	assert.Equal(t, g.Envelope.ID, stored.Envelope.ID)
	assert.Len(t, stored.Items, 2)
	assert.Len(t, stored.Recipients, 2)
	assert.Len(t, stored.Fields, 2)
	assert.Len(t, stored.Attachments, 1)
	assert.Equal(t, []models.AuditLogType{models.AuditEnvelopeCreated}, auditTypes(t, f, g.Envelope.ID))
}

func TestCreate_QuotaUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	f.plans.Default.UnitsPerPeriod = 3
	ctx := context.Background()
	doc := f.seedPDF(t, 1)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.envelopes.Create(ctx, f.owner, CreateEnvelopeInput{
				Type:  models.EnvelopeTypeDocument,
				Title: "doc " + strconv.Itoa(i),
				Items: []CreateItemInput{{DocumentDataID: doc}},
			})
		}(i)
	}
	wg.Wait()

	ok, exceeded := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, common.ErrQuotaExceeded):
			exceeded++
		}
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, n-3, exceeded)

	// templates are free
	_, err := f.envelopes.Create(ctx, f.owner, CreateEnvelopeInput{
		Type:  models.EnvelopeTypeTemplate,
		Title: "template",
		Items: []CreateItemInput{{DocumentDataID: doc}},
	})
	require.NoError(t, err)
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pdf := f.seedPDF(t, 1)

	png := &models.DocumentData{ID: "png-1", Type: models.DocumentDataBytes64, Data: "iVBORw0K", MimeType: "image/png", UserID: "user-1"}
	require.NoError(t, f.store.DocumentData(f.store.Conn()).Create(ctx, png))

	base := func(mut func(in *CreateEnvelopeInput)) CreateEnvelopeInput {
		in := CreateEnvelopeInput{
			Type:  models.EnvelopeTypeDocument,
			Title: "t",
			Items: []CreateItemInput{{DocumentDataID: pdf}},
		}
		mut(&in)
		return in
	}

	tests := []struct {
		name string
		in   CreateEnvelopeInput
		want error
	}{
		{"no items", base(func(in *CreateEnvelopeInput) { in.Items = nil }), common.ErrInvalidRequest},
		{"bad type", base(func(in *CreateEnvelopeInput) { in.Type = "FORM" }), common.ErrInvalidRequest},
		{"blank title", base(func(in *CreateEnvelopeInput) { in.Title = "  " }), common.ErrInvalidRequest},
		{"unknown document", base(func(in *CreateEnvelopeInput) { in.Items[0].DocumentDataID = "nope" }), common.ErrInvalidRequest},
		{"not a pdf", base(func(in *CreateEnvelopeInput) { in.Items[0].DocumentDataID = png.ID }), common.ErrInvalidFileType},
		{"duplicate email", base(func(in *CreateEnvelopeInput) {
			in.Recipients = []CreateRecipientInput{signer("a@example.com"), signer("A@Example.com")}
		}), common.ErrDuplicateEmail},
		{"bad email", base(func(in *CreateEnvelopeInput) {
			in.Recipients = []CreateRecipientInput{signer("not-an-email")}
		}), common.ErrInvalidRequest},
		{"cc with fields", base(func(in *CreateEnvelopeInput) {
			r := signer("cc@example.com", sigField(0))
			r.Role = models.RoleCC
			in.Recipients = []CreateRecipientInput{r}
		}), common.ErrInvalidRequest},
		{"item index out of range", base(func(in *CreateEnvelopeInput) {
			in.Recipients = []CreateRecipientInput{signer("a@example.com", sigField(3))}
		}), common.ErrInvalidFieldReference},
		{"page beyond document", base(func(in *CreateEnvelopeInput) {
			fld := sigField(0)
			fld.Page = 2
			in.Recipients = []CreateRecipientInput{signer("a@example.com", fld)}
		}), common.ErrInvalidPosition},
		{"field off the page", base(func(in *CreateEnvelopeInput) {
			fld := sigField(0)
			fld.PositionX = 0.9
			in.Recipients = []CreateRecipientInput{signer("a@example.com", fld)}
		}), common.ErrInvalidPosition},
		{"too many items", base(func(in *CreateEnvelopeInput) {
			for i := 0; i < f.cfg.MaxItemsPerEnvelope; i++ {
				in.Items = append(in.Items, CreateItemInput{DocumentDataID: pdf})
			}
		}), common.ErrItemLimitExceeded},
		{"bad attachment url", base(func(in *CreateEnvelopeInput) {
			in.Attachments = []CreateAttachmentInput{{Label: "x", URL: "ftp://example.com/x"}}
		}), common.ErrInvalidRequest},
		{"explicit none mixed", base(func(in *CreateEnvelopeInput) {
			in.AuthOptions.ActionAuth = []models.ActionAuth{models.ActionAuthExplicitNone, models.ActionAuthPassword}
		}), common.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.store.WriteCount()
			_, err := f.envelopes.Create(ctx, f.owner, tt.in)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, f.store.WriteCount())
		})
	}
}

func TestCreate_ScopedPrincipalRejected(t *testing.T) {
	f := newFixture(t)
	p := f.owner
	p.Scope = "envelope:envelope_x"

	_, err := f.envelopes.Create(context.Background(), p, CreateEnvelopeInput{
		Type:  models.EnvelopeTypeDocument,
		Title: "t",
		Items: []CreateItemInput{{DocumentDataID: f.seedPDF(t, 1)}},
	})
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestGet_ReferencesAndVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createDraft(t)

	for _, r := range []EnvelopeRef{
		{ID: g.Envelope.ID},
		{ID: g.Envelope.SecondaryID},
		{ID: strconv.FormatInt(g.Envelope.LegacyID, 10), Kind: models.EnvelopeTypeDocument},
	} {
		got, err := f.envelopes.Get(ctx, f.owner, r)
		require.NoError(t, err, r.ID)
		assert.Equal(t, g.Envelope.ID, got.Envelope.ID)
	}

	_, err := f.envelopes.Get(ctx, f.owner, EnvelopeRef{ID: "1", Kind: models.EnvelopeTypeTemplate})
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = f.envelopes.Get(ctx, f.owner, EnvelopeRef{ID: "1"})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	stranger := models.Principal{UserID: "user-2"}
	_, err = f.envelopes.Get(ctx, stranger, ref(g))
	assert.ErrorIs(t, err, common.ErrorNotFound)

	team := "team-1"
	_, err = f.envelopes.Get(ctx, models.Principal{UserID: "user-1", TeamID: &team}, ref(g))
	assert.ErrorIs(t, err, common.ErrorNotFound)

	scoped := f.owner
	scoped.Scope = "envelope:envelope_other"
	_, err = f.envelopes.Get(ctx, scoped, ref(g))
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	scoped.Scope = "envelope:" + g.Envelope.ID
	_, err = f.envelopes.Get(ctx, scoped, EnvelopeRef{ID: g.Envelope.SecondaryID})
	assert.NoError(t, err)
}

func TestUpdate_PatchesEnvelopeAndMeta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createDraft(t)

	title := "Renamed"
	order := models.SigningOrderSequential
	in := UpdateEnvelopeInput{
		Envelope: EnvelopePatch{Title: &title},
		Meta:     &models.DocumentMetaPatch{SigningOrder: &order},
	}

	got, err := f.envelopes.Update(ctx, f.owner, ref(g), in)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Envelope.Title)
	assert.Equal(t, models.SigningOrderSequential, got.Meta.SigningOrder)

	again, err := f.envelopes.Update(ctx, f.owner, ref(g), in)
	require.NoError(t, err)
	assert.Equal(t, got.Envelope.Title, again.Envelope.Title)
	assert.Equal(t, got.Meta.SigningOrder, again.Meta.SigningOrder)

	_, err = f.envelopes.Cancel(ctx, f.owner, ref(g))
	require.NoError(t, err)

	_, err = f.envelopes.Update(ctx, f.owner, ref(g), in)
	assert.ErrorIs(t, err, common.ErrEnvelopeNotEditable)
}
