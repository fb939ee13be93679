package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRoleTables(t *testing.T) {
	require.NoError(t, CheckRoleTables())

	for _, r := range AllRoles {
		assert.True(t, r.Valid(), r)
		assert.NotEmpty(t, r.ActionVerb(), r)
	}
	assert.False(t, RecipientRole("WITNESS").Valid())
	assert.False(t, RoleCC.RequiresAction())
	assert.False(t, RoleViewer.CanHaveFields())
	assert.True(t, RoleSigner.CanHaveFields())
}

func TestCheckRoleTables_DetectsMissingRole(t *testing.T) {
	orig := AllRoles
	t.Cleanup(func() { AllRoles = orig })

	AllRoles = append(append([]RecipientRole{}, orig...), "WITNESS")
	require.Error(t, CheckRoleTables())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to EnvelopeStatus
		want     bool
	}{
		{StatusDraft, StatusPending, true},
		{StatusDraft, StatusCancelled, true},
		{StatusDraft, StatusCompleted, false},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusDraft, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusDeleted, true},
		{StatusCancelled, StatusDeleted, true},
		{StatusDeleted, StatusDeleted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestField_ValidatePlacement(t *testing.T) {
	ok := Field{Page: 1, PositionX: 0.1, PositionY: 0.1, Width: 0.2, Height: 0.05}

	tests := []struct {
		name      string
		mutate    func(f *Field)
		pageCount int
		wantErr   bool
	}{
		{name: "valid", mutate: func(f *Field) {}},
		{name: "page zero", mutate: func(f *Field) { f.Page = 0 }, wantErr: true},
		{name: "page beyond document", mutate: func(f *Field) { f.Page = 3 }, pageCount: 2, wantErr: true},
		{name: "unknown page count", mutate: func(f *Field) { f.Page = 30 }},
		{name: "negative x", mutate: func(f *Field) { f.PositionX = -0.01 }, wantErr: true},
		{name: "width above one", mutate: func(f *Field) { f.Width = 1.5 }, wantErr: true},
		{name: "overflows page", mutate: func(f *Field) { f.PositionY = 0.99 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ok
			tt.mutate(&f)
			err := f.ValidatePlacement(tt.pageCount)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDocumentMetaPatch_Apply(t *testing.T) {
	m := DefaultDocumentMeta("env")
	subject := "Please sign"
	order := SigningOrderSequential
	require.NoError(t, (&DocumentMetaPatch{Subject: &subject, SigningOrder: &order}).Apply(m))
	assert.Equal(t, "Please sign", m.Subject)
	assert.Equal(t, SigningOrderSequential, m.SigningOrder)
	assert.Equal(t, "Etc/UTC", m.Timezone)

	bad := SigningOrder("RANDOM")
	assert.Error(t, (&DocumentMetaPatch{SigningOrder: &bad}).Apply(m))

	off := false
	err := (&DocumentMetaPatch{TypedSignatureEnabled: &off, UploadSignatureEnabled: &off, DrawSignatureEnabled: &off}).Apply(DefaultDocumentMeta("x"))
	assert.Error(t, err)

	var nilPatch *DocumentMetaPatch
	assert.NoError(t, nilPatch.Apply(m))
}

func TestAuthOptions(t *testing.T) {
	assert.NoError(t, AuthOptions{ActionAuth: []ActionAuth{ActionAuthTwoFactorAuth}}.Validate())
	assert.Error(t, AuthOptions{ActionAuth: []ActionAuth{ActionAuthExplicitNone, ActionAuthPasskey}}.Validate())
	assert.Error(t, AuthOptions{AccessAuth: []AccessAuth{"SMS"}}.Validate())
	assert.True(t, AuthOptions{ActionAuth: []ActionAuth{ActionAuthTwoFactorAuth}}.RequiresTwoFactor())

	b, err := MarshalAuthOptions(AuthOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"accessAuth":[],"actionAuth":[]}`, string(b))

	a, err := UnmarshalAuthOptions(nil)
	require.NoError(t, err)
	assert.Empty(t, a.ActionAuth)
}

func TestRecipient_ActedAndRemovable(t *testing.T) {
	fresh := &Recipient{SendStatus: SendStatusNotSent, SigningStatus: SigningStatusNotSigned, ReadStatus: ReadStatusNotOpened}
	assert.False(t, fresh.HasActed())
	assert.True(t, fresh.Removable())

	sent := *fresh
	sent.SendStatus = SendStatusSent
	assert.True(t, sent.HasActed())
	assert.False(t, sent.Removable())

	signed := *fresh
	signed.SigningStatus = SigningStatusSigned
	assert.False(t, signed.Removable())
	assert.True(t, signed.Finished())
	assert.False(t, sent.Finished())

	opened := *fresh
	opened.ReadStatus = ReadStatusOpened
	assert.True(t, opened.HasActed())
	assert.True(t, opened.Removable())
}

func TestPrincipal_CanSeeAndOwnerKey(t *testing.T) {
	team := "t1"
	other := "t2"
	p := Principal{UserID: "u1", TeamID: &team}

	assert.True(t, p.CanSee(&Envelope{UserID: "u9", TeamID: &team}))
	assert.False(t, p.CanSee(&Envelope{UserID: "u1", TeamID: &other}))
	assert.False(t, p.CanSee(&Envelope{UserID: "u1"}), "personal envelopes are not visible from a team context")
	assert.Equal(t, "team:t1", p.OwnerKey())

	personal := Principal{UserID: "u1"}
	assert.True(t, personal.CanSee(&Envelope{UserID: "u1"}))
	assert.Equal(t, "user:u1", personal.OwnerKey())
}
