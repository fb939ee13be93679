package envelopeid

import (
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/config"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTranslator(t *testing.T) *Translator {
	t.Helper()
	tr, err := NewTranslator(config.DefaultIDAlphabet)
	require.NoError(t, err)
	return tr
}

func TestRoundTrip(t *testing.T) {
	tr := newTranslator(t)

	for _, kind := range []models.EnvelopeType{models.EnvelopeTypeDocument, models.EnvelopeTypeTemplate} {
		for _, legacy := range []int64{1, 2, 7, 42, 999, 123456, 1 << 40} {
			sec, err := tr.ToSecondaryID(kind, legacy)
			require.NoError(t, err)

			got, err := tr.ToLegacyID(sec)
			require.NoError(t, err)
			assert.Equal(t, legacy, got)

			got, err = tr.ToLegacyIDForKind(sec, kind)
			require.NoError(t, err)
			assert.Equal(t, legacy, got)
		}
	}
}

func TestDeterministicAndKindDistinct(t *testing.T) {
	tr := newTranslator(t)

	a, err := tr.ToSecondaryID(models.EnvelopeTypeDocument, 5)
	require.NoError(t, err)
	b, err := tr.ToSecondaryID(models.EnvelopeTypeDocument, 5)
	require.NoError(t, err)
	c, err := tr.ToSecondaryID(models.EnvelopeTypeTemplate, 5)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "document_"))
	assert.True(t, strings.HasPrefix(c, "template_"))
}

func TestWrongKindFailsClosed(t *testing.T) {
	tr := newTranslator(t)

	doc, err := tr.ToSecondaryID(models.EnvelopeTypeDocument, 10)
	require.NoError(t, err)

	_, err = tr.ToLegacyIDForKind(doc, models.EnvelopeTypeTemplate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKindMismatch))
	assert.True(t, errors.Is(err, common.ErrorNotFound))

	// Swapping the visible prefix does not smuggle a document id in as a template.
	forged := "template_" + strings.TrimPrefix(doc, "document_")
	_, err = tr.ToLegacyIDForKind(forged, models.EnvelopeTypeTemplate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedID))
}

func TestMalformed(t *testing.T) {
	tr := newTranslator(t)

	for _, in := range []string{"", "document_", "document_!!!", "invoice_abc", "document_a"} {
		_, err := tr.ToLegacyID(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrMalformedID), in)
		assert.True(t, errors.Is(err, common.ErrInvalidRequest), in)
	}
}

func TestToSecondaryID_Invalid(t *testing.T) {
	tr := newTranslator(t)

	_, err := tr.ToSecondaryID(models.EnvelopeTypeDocument, 0)
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	_, err = tr.ToSecondaryID("FOLDER", 1)
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestResolve(t *testing.T) {
	tr := newTranslator(t)
	doc, err := tr.ToSecondaryID(models.EnvelopeTypeDocument, 3)
	require.NoError(t, err)

	ref, err := tr.Resolve("envelope_abc", "")
	require.NoError(t, err)
	assert.Equal(t, Reference{PrimaryID: "envelope_abc"}, ref)

	ref, err = tr.Resolve(doc, models.EnvelopeTypeDocument)
	require.NoError(t, err)
	assert.Equal(t, Reference{SecondaryID: doc}, ref)

	ref, err = tr.Resolve("3", models.EnvelopeTypeDocument)
	require.NoError(t, err)
	assert.Equal(t, Reference{SecondaryID: doc}, ref)

	_, err = tr.Resolve(doc, models.EnvelopeTypeTemplate)
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = tr.Resolve("3", "")
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	_, err = tr.Resolve("envelope_", "")
	assert.ErrorIs(t, err, ErrMalformedID)

	_, err = tr.Resolve("nope", models.EnvelopeTypeDocument)
	assert.ErrorIs(t, err, ErrMalformedID)
}

func TestNewPrimaryID(t *testing.T) {
	a, b := NewPrimaryID(), NewPrimaryID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, PrimaryPrefix))
	assert.Len(t, a, len(PrimaryPrefix)+32)
}
